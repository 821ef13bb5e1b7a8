// Package state defines the run state threaded through every pipeline phase
// and the domain payload types the phases populate.
package state

import (
	"encoding/json"
	"time"
)

// Workflow statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusWaiting   = "waiting_for_approval"
	StatusCompleted = "completed"
)

// Approval statuses.
const (
	ApprovalNotRequired = "not_required"
	ApprovalPending     = "pending"
	ApprovalApproved    = "approved"
)

// Phase names in execution order.
const (
	PhaseOutline  = "outline"
	PhaseResearch = "research"
	PhaseContent  = "content"
	PhaseDesign   = "design"
	PhaseQA       = "qa"
)

// PhaseOrder is the fixed phase sequence. content depends on outline,
// design on content, qa on content and design; do not reorder.
var PhaseOrder = []string{PhaseOutline, PhaseResearch, PhaseContent, PhaseDesign, PhaseQA}

// PhaseIndex returns the position of a phase in PhaseOrder.
func PhaseIndex(name string) (int, bool) {
	for i, p := range PhaseOrder {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// NowISO returns the current UTC time in a fixed-width ISO-8601 form.
// The width is fixed so timestamp strings compare lexicographically.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

// LearningObjective is one measurable objective attached to an outline.
type LearningObjective struct {
	Objective  string `json:"objective"`
	BloomLevel string `json:"bloom_level,omitempty"`
}

// OutlineSection is a single section of the deck outline.
type OutlineSection struct {
	Title  string   `json:"title"`
	Points []string `json:"points,omitempty"`
}

// UnmarshalJSON accepts either a bare section title string or the full
// object form; models emit both.
func (s *OutlineSection) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		s.Title = title
		s.Points = nil
		return nil
	}
	type alias OutlineSection
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = OutlineSection(a)
	return nil
}

// Outline is the deck skeleton produced by the outline phase.
type Outline struct {
	Topic                 string              `json:"topic"`
	Audience              string              `json:"audience,omitempty"`
	Sections              []OutlineSection    `json:"sections"`
	LearningObjectives    []LearningObjective `json:"learning_objectives,omitempty"`
	PrerequisiteKnowledge []string            `json:"prerequisite_knowledge,omitempty"`
	EducationalLevel      string              `json:"educational_level,omitempty"`
}

// Claim is a factual statement extracted from the outline for verification.
type Claim struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Evidence is one corpus snippet supporting a claim.
type Evidence struct {
	Claim   string  `json:"claim"`
	Snippet string  `json:"snippet"`
	Source  string  `json:"source"`
	Date    string  `json:"date,omitempty"`
	Score   float64 `json:"score"`
}

// Citation binds a numbered marker to its source.
type Citation struct {
	Marker string `json:"marker"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Date   string `json:"date,omitempty"`
}

// SlideContent is one generated slide. The educational fields are populated
// only when the run has educational mode enabled.
type SlideContent struct {
	Title                string   `json:"title"`
	Bullets              []string `json:"bullets"`
	SpeakerNotes         string   `json:"speaker_notes,omitempty"`
	CitationsUsed        []string `json:"citations_used,omitempty"`
	EngagementHook       string   `json:"engagement_hook,omitempty"`
	ActiveLearningPrompt string   `json:"active_learning_prompt,omitempty"`
	FormativeCheck       string   `json:"formative_check,omitempty"`
	BloomLevel           string   `json:"bloom_level,omitempty"`
	TimeEstimateMinutes  float64  `json:"time_estimate_minutes,omitempty"`
}

// QAReport carries the quality scores for a finished deck, each in [1,5].
type QAReport struct {
	ContentScore   float64 `json:"content_score"`
	DesignScore    float64 `json:"design_score"`
	CoherenceScore float64 `json:"coherence_score"`
	Feedback       string  `json:"feedback,omitempty"`
}

// RunState is the mutable object threaded through all phases. Fields not
// declared here survive serialization through the Extra map, so collaborators
// can attach values without a schema change.
type RunState struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
	RunID     int64  `json:"run_id"`

	WorkflowStatus string `json:"workflow_status"`
	CurrentPhase   string `json:"current_phase"`
	PhaseVersion   int    `json:"phase_version"`

	ApprovalRequired bool   `json:"approval_required"`
	ApprovalStatus   string `json:"approval_status"`
	ApprovalNotes    string `json:"approval_notes,omitempty"`
	WaitingForPhase  string `json:"waiting_for_phase,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	Outline    *Outline       `json:"outline,omitempty"`
	Claims     []Claim        `json:"claims,omitempty"`
	Evidences  []Evidence     `json:"evidences,omitempty"`
	Citations  []Citation     `json:"citations,omitempty"`
	References []string       `json:"references,omitempty"`
	Content    []SlideContent `json:"content,omitempty"`
	QAReport   *QAReport      `json:"qa_report,omitempty"`
	PPTXPath   string         `json:"pptx_path,omitempty"`

	Errors              []string          `json:"errors,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
	TeachingSuggestions []string          `json:"teaching_suggestions,omitempty"`
	AuditFlags          []string          `json:"audit_flags,omitempty"`
	PreviewImages       map[string]string `json:"preview_images,omitempty"`
	PreviewManifestPath string            `json:"preview_manifest_path,omitempty"`

	EducationalMode bool              `json:"educational_mode"`
	TemplateName    string            `json:"template_name,omitempty"`
	ModelInfo       map[string]string `json:"model_info,omitempty"`

	Extra map[string]any `json:"-"`
}

// New builds a fresh RunState for one pipeline invocation.
func New(userInput, sessionID string) *RunState {
	now := NowISO()
	return &RunState{
		UserInput:      userInput,
		SessionID:      sessionID,
		WorkflowStatus: StatusPending,
		ApprovalStatus: ApprovalNotRequired,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Touch refreshes the updated_at timestamp.
func (s *RunState) Touch() { s.UpdatedAt = NowISO() }

// AddError appends a phase-local error string.
func (s *RunState) AddError(msg string) { s.Errors = append(s.Errors, msg) }

// AddWarning appends a non-fatal warning string.
func (s *RunState) AddWarning(msg string) { s.Warnings = append(s.Warnings, msg) }

// SetExtra attaches an undeclared field that survives serialization.
func (s *RunState) SetExtra(key string, value any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[key] = value
}

// GetExtra reads an undeclared field.
func (s *RunState) GetExtra(key string) (any, bool) {
	v, ok := s.Extra[key]
	return v, ok
}

// knownKeys lists every declared json tag, so unmarshaling can route the
// remainder into Extra. Keep in sync with the struct tags above.
var knownKeys = map[string]struct{}{
	"user_input": {}, "session_id": {}, "run_id": {},
	"workflow_status": {}, "current_phase": {}, "phase_version": {},
	"approval_required": {}, "approval_status": {}, "approval_notes": {}, "waiting_for_phase": {},
	"created_at": {}, "updated_at": {},
	"outline": {}, "claims": {}, "evidences": {}, "citations": {}, "references": {},
	"content": {}, "qa_report": {}, "pptx_path": {},
	"errors": {}, "warnings": {}, "teaching_suggestions": {}, "audit_flags": {},
	"preview_images": {}, "preview_manifest_path": {},
	"educational_mode": {}, "template_name": {}, "model_info": {},
}

type runStateAlias RunState

// MarshalJSON merges Extra keys into the top-level object. Declared fields
// win on key collision.
func (s RunState) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(runStateAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, declared := knownKeys[k]; declared {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills declared fields and routes unknown keys into Extra.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var a runStateAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = RunState(a)
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for k, raw := range m {
		if _, declared := knownKeys[k]; declared {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = v
	}
	return nil
}
