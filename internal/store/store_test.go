package store

import (
	"context"
	"io"
	"log"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/slidesmith/slidesmith/internal/state"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, "postgres", log.New(io.Discard, "", 0)), mock
}

func TestStartRunAssignsID(t *testing.T) {
	s, mock := newMockStore(t)
	st := state.New("intro to wind power", "sess-1")
	st.WorkflowStatus = state.StatusRunning

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO runs")).
		WithArgs(sqlmock.AnyArg(), "sess-1", sqlmock.AnyArg(), sqlmock.AnyArg(),
			state.StatusRunning, "", false, state.ApprovalNotRequired,
			"intro to wind power", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.StartRun(context.Background(), st)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if id != 7 || st.RunID != 7 {
		t.Fatalf("id not mirrored onto state: id=%d state=%d", id, st.RunID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveStateWithoutRunIDIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	st := state.New("topic", "sess-1")

	if err := s.SaveState(context.Background(), st, 0); err != nil {
		t.Fatalf("save without run id: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected SQL issued: %v", err)
	}
}

func TestSaveStateMissingRowIsSilent(t *testing.T) {
	s, mock := newMockStore(t)
	st := state.New("topic", "sess-1")
	st.RunID = 999

	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SaveState(context.Background(), st, 1.5); err != nil {
		t.Fatalf("save against missing row should not error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordRunCompleteStartsRowWhenMissing(t *testing.T) {
	s, mock := newMockStore(t)
	st := state.New("topic", "sess-9")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO runs")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordRunComplete(context.Background(), st, "artifacts/deck.pptx", 12.5); err != nil {
		t.Fatalf("record complete: %v", err)
	}
	if st.RunID != 3 {
		t.Fatalf("run id not assigned: %d", st.RunID)
	}
	if st.WorkflowStatus != state.StatusCompleted || st.CurrentPhase != "completed" {
		t.Fatalf("not finalized: %s/%s", st.WorkflowStatus, st.CurrentPhase)
	}
	if st.PPTXPath != "artifacts/deck.pptx" {
		t.Fatalf("output path not set: %q", st.PPTXPath)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordRunCompleteKeepsExistingPathOnEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	st := state.New("topic", "sess-9")
	st.RunID = 4
	st.PPTXPath = "artifacts/earlier.pptx"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE runs SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordRunComplete(context.Background(), st, "", 1); err != nil {
		t.Fatalf("record complete: %v", err)
	}
	if st.PPTXPath != "artifacts/earlier.pptx" {
		t.Fatalf("existing path clobbered: %q", st.PPTXPath)
	}
}

func TestRecordLogPropagatesFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_logs")).
		WillReturnError(errClosed)

	if err := s.RecordLog(context.Background(), 1, "phase started", ""); err == nil {
		t.Fatalf("log failure must propagate")
	}
}

var errClosed = io.ErrClosedPipe

func TestGetRunDetailsUnknownRun(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := s.GetRunDetails(context.Background(), 404)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if ok {
		t.Fatalf("missing run reported as found")
	}
}

func TestSqliteRebind(t *testing.T) {
	s := &Store{driver: "sqlite"}
	got := s.q(`UPDATE runs SET status=$1, workflow_phase=$2 WHERE id=$13`)
	want := `UPDATE runs SET status=?, workflow_phase=? WHERE id=?`
	if got != want {
		t.Fatalf("rebind mismatch:\n got %s\nwant %s", got, want)
	}

	pg := &Store{driver: "postgres"}
	if q := pg.q(`SELECT $1`); q != `SELECT $1` {
		t.Fatalf("postgres query rewritten: %s", q)
	}
}
