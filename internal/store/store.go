// Package store persists pipeline runs: one mutable row per run plus an
// append-only log table. Two backends share the same SQL surface, postgres
// for client-server deployments and embedded sqlite for everything else.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/state"
)

type Store struct {
	DB     *sql.DB
	driver string
	logger *log.Logger
}

// RunRecord is the durable projection of one run. JSON sub-sections are kept
// raw so callers can forward them without re-marshaling.
type RunRecord struct {
	ID                   int64           `json:"id"`
	RunUUID              string          `json:"run_uuid"`
	SessionID            string          `json:"session_id"`
	CreatedAt            string          `json:"created_at"`
	UpdatedAt            string          `json:"updated_at"`
	Status               string          `json:"status"`
	WorkflowPhase        string          `json:"workflow_phase"`
	ApprovalRequired     bool            `json:"approval_required"`
	ApprovalStatus       string          `json:"approval_status"`
	UserInput            string          `json:"user_input"`
	OutputPath           string          `json:"output_path,omitempty"`
	QAScores             json.RawMessage `json:"qa_scores,omitempty"`
	Outline              json.RawMessage `json:"outline,omitempty"`
	Content              json.RawMessage `json:"content,omitempty"`
	Research             json.RawMessage `json:"research,omitempty"`
	QAFeedback           string          `json:"qa_feedback,omitempty"`
	ModelInfo            json.RawMessage `json:"model_info,omitempty"`
	EducationalMode      bool            `json:"educational_mode"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds"`
	ErrorMessages        json.RawMessage `json:"error_messages,omitempty"`
	StateBlob            json.RawMessage `json:"-"`
	PreviewManifest      string          `json:"preview_manifest,omitempty"`
}

// LogRecord is one immutable diagnostic line tied to a run.
type LogRecord struct {
	ID      int64  `json:"id"`
	RunID   int64  `json:"run_id"`
	TS      string `json:"ts"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Open connects to the configured checkpoint backend and verifies it.
func Open(ctx context.Context, cfg config.CheckpointConfig, logger *log.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Backend {
	case "postgres":
		dsn, derr := cfg.Postgres.DSN()
		if derr != nil {
			return nil, derr
		}
		db, err = sql.Open("postgres", dsn)
	case "sqlite":
		db, err = sql.Open("sqlite", cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Backend, err)
	}
	if cfg.Backend == "sqlite" {
		// modernc sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent runs.
		db.SetMaxOpenConns(1)
	}
	return NewWithDB(db, cfg.Backend, logger), nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, driver string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{DB: db, driver: driver, logger: logger}
}

func (s *Store) Close() error { return s.DB.Close() }

// q rewrites $n placeholders to ? for the sqlite driver. Queries are written
// with placeholders in ascending order so a plain substitution is safe.
func (s *Store) q(query string) string {
	if s.driver != "sqlite" {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// jsonOrNull marshals v for a JSON-text column, degrading to NULL on failure
// so one bad sub-section never aborts a whole checkpoint.
func jsonOrNull(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

// researchSection groups the research-phase payload into one column.
type researchSection struct {
	Claims     []state.Claim    `json:"claims,omitempty"`
	Evidences  []state.Evidence `json:"evidences,omitempty"`
	Citations  []state.Citation `json:"citations,omitempty"`
	References []string         `json:"references,omitempty"`
}

func researchOf(st *state.RunState) any {
	if len(st.Claims) == 0 && len(st.Evidences) == 0 && len(st.Citations) == 0 && len(st.References) == 0 {
		return nil
	}
	return jsonOrNull(researchSection{
		Claims:     st.Claims,
		Evidences:  st.Evidences,
		Citations:  st.Citations,
		References: st.References,
	})
}

func outlineOf(st *state.RunState) any {
	if st.Outline == nil {
		return nil
	}
	return jsonOrNull(st.Outline)
}

func contentOf(st *state.RunState) any {
	if len(st.Content) == 0 {
		return nil
	}
	return jsonOrNull(st.Content)
}

func qaScoresOf(st *state.RunState) any {
	if st.QAReport == nil {
		return nil
	}
	return jsonOrNull(map[string]float64{
		"content":   st.QAReport.ContentScore,
		"design":    st.QAReport.DesignScore,
		"coherence": st.QAReport.CoherenceScore,
	})
}

func qaFeedbackOf(st *state.RunState) string {
	if st.QAReport == nil {
		return ""
	}
	return st.QAReport.Feedback
}

func errorsOf(st *state.RunState) any {
	if len(st.Errors) == 0 {
		return nil
	}
	return jsonOrNull(st.Errors)
}

func modelInfoOf(st *state.RunState) any {
	if len(st.ModelInfo) == 0 {
		return nil
	}
	return jsonOrNull(st.ModelInfo)
}

// StartRun inserts a new run row and mirrors the assigned id onto the state.
// Every call creates a distinct row; callers invoke it once per logical run.
func (s *Store) StartRun(ctx context.Context, st *state.RunState) (int64, error) {
	now := state.NowISO()
	if st.CreatedAt == "" {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	var id int64
	err := s.DB.QueryRowContext(ctx, s.q(`INSERT INTO runs
        (run_uuid, session_id, created_at, updated_at, status, workflow_phase,
         approval_required, approval_status, user_input, educational_mode, state_blob)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`),
		uuid.NewString(), st.SessionID, st.CreatedAt, st.UpdatedAt,
		st.WorkflowStatus, st.CurrentPhase, st.ApprovalRequired, st.ApprovalStatus,
		st.UserInput, st.EducationalMode, jsonOrNull(st)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	st.RunID = id
	return id, nil
}

// SaveState checkpoints the state over its existing row. A run_id that
// matches no row is a silent no-op; a caller holding a stale identifier
// must not crash the pipeline.
func (s *Store) SaveState(ctx context.Context, st *state.RunState, execSeconds float64) error {
	if st.RunID == 0 {
		return nil
	}
	st.UpdatedAt = state.NowISO()

	res, err := s.DB.ExecContext(ctx, s.q(`UPDATE runs SET
        updated_at=$1, status=$2, workflow_phase=$3, approval_required=$4, approval_status=$5,
        output_path=$6, qa_scores=$7, outline=$8, content=$9, research=$10, qa_feedback=$11,
        model_info=$12, educational_mode=$13, execution_time_seconds=$14, error_messages=$15,
        state_blob=$16, preview_manifest=$17
        WHERE id=$18`),
		st.UpdatedAt, st.WorkflowStatus, st.CurrentPhase, st.ApprovalRequired, st.ApprovalStatus,
		nullableString(st.PPTXPath), qaScoresOf(st), outlineOf(st), contentOf(st), researchOf(st),
		nullableString(qaFeedbackOf(st)), modelInfoOf(st), st.EducationalMode, execSeconds,
		errorsOf(st), jsonOrNull(st), nullableString(st.PreviewManifestPath), st.RunID)
	if err != nil {
		return fmt.Errorf("save state run %d: %w", st.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Printf("save_state: run %d not found, skipping", st.RunID)
	}
	return nil
}

// RecordRunComplete finalizes a run as completed and checkpoints it. A state
// that was never persisted gets a row first.
func (s *Store) RecordRunComplete(ctx context.Context, st *state.RunState, outputPath string, execSeconds float64) error {
	if st.RunID == 0 {
		if _, err := s.StartRun(ctx, st); err != nil {
			return err
		}
	}
	st.WorkflowStatus = state.StatusCompleted
	st.CurrentPhase = "completed"
	if outputPath != "" {
		st.PPTXPath = outputPath
	}
	return s.SaveState(ctx, st, execSeconds)
}

// RecordLog appends one immutable log line. Failures propagate; a dropped
// log line means the storage layer itself is unavailable.
func (s *Store) RecordLog(ctx context.Context, runID int64, message, level string) error {
	if level == "" {
		level = "INFO"
	}
	_, err := s.DB.ExecContext(ctx, s.q(`INSERT INTO run_logs (run_id, ts, level, message) VALUES ($1,$2,$3,$4)`),
		runID, state.NowISO(), level, message)
	if err != nil {
		return fmt.Errorf("record log run %d: %w", runID, err)
	}
	return nil
}

const runColumns = `id, run_uuid, session_id, created_at, updated_at, status, workflow_phase,
        approval_required, approval_status, user_input, output_path, qa_scores, outline, content,
        research, qa_feedback, model_info, educational_mode, execution_time_seconds, error_messages,
        state_blob, preview_manifest`

// GetRunDetails returns the full projection for one run.
func (s *Store) GetRunDetails(ctx context.Context, runID int64) (RunRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE id=$1`), runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("get run %d: %w", runID, err)
	}
	return rec, true, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, s.q(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListLogs returns log lines for a run in insertion order.
func (s *Store) ListLogs(ctx context.Context, runID int64, limit int) ([]LogRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, s.q(`SELECT id, run_id, ts, level, message FROM run_logs WHERE run_id=$1 ORDER BY id ASC LIMIT $2`), runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs run %d: %w", runID, err)
	}
	defer rows.Close()
	var out []LogRecord
	for rows.Next() {
		var l LogRecord
		if err := rows.Scan(&l.ID, &l.RunID, &l.TS, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RestoreState rebuilds a RunState from a run's stored full-state blob.
// The bool is false when the row exists but carries no blob.
func (s *Store) RestoreState(ctx context.Context, runID int64) (*state.RunState, bool, error) {
	rec, ok, err := s.GetRunDetails(ctx, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(rec.StateBlob) == 0 {
		return nil, false, nil
	}
	var st state.RunState
	if err := json.Unmarshal(rec.StateBlob, &st); err != nil {
		return nil, false, fmt.Errorf("decode state blob run %d: %w", runID, err)
	}
	st.RunID = runID
	return &st, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec                                            RunRecord
		outputPath, qaScores, outline, content         sql.NullString
		research, qaFeedback, modelInfo, errorMessages sql.NullString
		stateBlob, previewManifest                     sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.RunUUID, &rec.SessionID, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.Status, &rec.WorkflowPhase, &rec.ApprovalRequired, &rec.ApprovalStatus,
		&rec.UserInput, &outputPath, &qaScores, &outline, &content, &research,
		&qaFeedback, &modelInfo, &rec.EducationalMode, &rec.ExecutionTimeSeconds,
		&errorMessages, &stateBlob, &previewManifest)
	if err != nil {
		return RunRecord{}, err
	}
	rec.OutputPath = outputPath.String
	rec.QAScores = rawOrNil(qaScores)
	rec.Outline = rawOrNil(outline)
	rec.Content = rawOrNil(content)
	rec.Research = rawOrNil(research)
	rec.QAFeedback = qaFeedback.String
	rec.ModelInfo = rawOrNil(modelInfo)
	rec.ErrorMessages = rawOrNil(errorMessages)
	rec.StateBlob = rawOrNil(stateBlob)
	rec.PreviewManifest = previewManifest.String
	return rec, nil
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
