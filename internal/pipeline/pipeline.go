// Package pipeline drives a run through the fixed phase sequence, enforcing
// approval gates and persisting a checkpoint plus an event at every phase
// boundary. The last successful checkpoint is always the recovery point: a
// crash mid-phase resumes from the preceding boundary, never mid-phase.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slidesmith/slidesmith/internal/agents"
	"github.com/slidesmith/slidesmith/internal/auditor"
	"github.com/slidesmith/slidesmith/internal/events"
	"github.com/slidesmith/slidesmith/internal/state"
	"github.com/slidesmith/slidesmith/internal/store"
)

// ErrNotResumable marks a resume attempt on a run without a stored
// full-state snapshot.
var ErrNotResumable = errors.New("run not resumable")

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidesmith_runs_started_total",
		Help: "Pipeline runs started.",
	})
	runsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidesmith_runs_completed_total",
		Help: "Pipeline runs that reached completed status.",
	})
	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slidesmith_phase_duration_seconds",
		Help:    "Wall-clock duration of each pipeline phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
)

// PhaseFunc transforms the run state. Domain failures go into the state's
// error list; a returned error is fatal to the run.
type PhaseFunc func(ctx context.Context, st *state.RunState) (*state.RunState, error)

// Phase pairs a fixed phase name with its implementation.
type Phase struct {
	Name string
	Run  PhaseFunc
}

// Previewer renders slide previews after the design phase. Implementations
// never fail; they append warnings instead.
type Previewer interface {
	Render(ctx context.Context, st *state.RunState) *state.RunState
}

// gateEligible lists the phases an approval gate may pause on.
var gateEligible = map[string]bool{
	state.PhaseOutline:  true,
	state.PhaseResearch: true,
	state.PhaseDesign:   true,
}

// Options controls gating for one start or resume call.
type Options struct {
	AutoApprove    bool
	ApprovalPhases []string
	ApprovalNotes  string
}

func (o Options) gated() map[string]bool {
	m := make(map[string]bool, len(o.ApprovalPhases))
	for _, p := range o.ApprovalPhases {
		m[p] = true
	}
	return m
}

// Controller orchestrates the phase runner, checkpoint store, and event
// store for concurrent runs. It holds no per-run mutable state.
type Controller struct {
	store    *store.Store
	events   *events.Store
	phases   []Phase
	previews Previewer
	logger   *log.Logger
}

// DefaultPhases binds the five phase implementations in their fixed order.
func DefaultPhases(a *agents.Agents) []Phase {
	return []Phase{
		{Name: state.PhaseOutline, Run: a.Outline},
		{Name: state.PhaseResearch, Run: a.Research},
		{Name: state.PhaseContent, Run: a.Content},
		{Name: state.PhaseDesign, Run: a.Design},
		{Name: state.PhaseQA, Run: a.QA},
	}
}

// NewController builds a pipeline controller over the given collaborators.
func NewController(st *store.Store, ev *events.Store, phases []Phase, previews Previewer, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Controller{store: st, events: ev, phases: phases, previews: previews, logger: logger}
}

// Run starts a new pipeline run from a fresh state and executes phases until
// completion or the first approval gate.
func (c *Controller) Run(ctx context.Context, st *state.RunState, opts Options) (*state.RunState, error) {
	start := time.Now()

	st.WorkflowStatus = state.StatusRunning
	st.CurrentPhase = "initializing"
	st.Touch()

	runID, err := c.store.StartRun(ctx, st)
	if err != nil {
		return st, err
	}
	if err := c.store.RecordLog(ctx, runID, "run started", "INFO"); err != nil {
		return st, err
	}
	c.events.Publish(ctx, runID, events.TypeRunStarted, map[string]any{
		"user_input": st.UserInput,
		"session_id": st.SessionID,
	})
	runsStarted.Inc()
	c.logger.Printf("run %d started (session %s)", runID, st.SessionID)

	st, err = c.executePhases(ctx, st, 0, opts)
	if err != nil {
		return st, err
	}
	if st.WorkflowStatus == state.StatusWaiting {
		return st, nil
	}
	return c.finalize(ctx, st, start)
}

// Resume re-enters a paused run at the phase after the one that gated,
// marking the pause approved.
func (c *Controller) Resume(ctx context.Context, runID int64, opts Options) (*state.RunState, error) {
	start := time.Now()

	st, ok, err := c.store.RestoreState(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: run %d", ErrNotResumable, runID)
	}

	st.ApprovalRequired = false
	st.ApprovalStatus = state.ApprovalApproved
	if opts.ApprovalNotes != "" {
		st.ApprovalNotes = opts.ApprovalNotes
	}
	st.WorkflowStatus = state.StatusRunning
	st.Touch()

	startIdx := c.resumeIndex(st)
	st.WaitingForPhase = ""

	if err := c.store.SaveState(ctx, st, 0); err != nil {
		return st, err
	}
	if err := c.store.RecordLog(ctx, runID, "run resumed", "INFO"); err != nil {
		return st, err
	}
	c.events.Publish(ctx, runID, events.TypeRunResumed, map[string]any{
		"resume_phase_index": startIdx,
		"notes":              opts.ApprovalNotes,
	})
	c.logger.Printf("run %d resumed at phase index %d", runID, startIdx)

	st, err = c.executePhases(ctx, st, startIdx, opts)
	if err != nil {
		return st, err
	}
	if st.WorkflowStatus == state.StatusWaiting {
		return st, nil
	}
	return c.finalize(ctx, st, start)
}

// resumeIndex picks the continuation point: the phase after the gated one,
// or the recorded current phase, or index 0 when neither resolves.
func (c *Controller) resumeIndex(st *state.RunState) int {
	if st.WaitingForPhase != "" {
		if idx, ok := c.phaseIndex(st.WaitingForPhase); ok {
			return idx + 1
		}
		return 0
	}
	if st.CurrentPhase != "" {
		if idx, ok := c.phaseIndex(st.CurrentPhase); ok {
			return idx
		}
	}
	return 0
}

func (c *Controller) phaseIndex(name string) (int, bool) {
	for i, p := range c.phases {
		if p.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (c *Controller) executePhases(ctx context.Context, st *state.RunState, startIdx int, opts Options) (*state.RunState, error) {
	gated := opts.gated()

	for i := startIdx; i < len(c.phases); i++ {
		phase := c.phases[i]

		st.CurrentPhase = phase.Name
		st.WorkflowStatus = state.StatusRunning
		st.Touch()
		if err := c.store.SaveState(ctx, st, 0); err != nil {
			return st, err
		}
		if err := c.store.RecordLog(ctx, st.RunID, fmt.Sprintf("phase %s started", phase.Name), "INFO"); err != nil {
			return st, err
		}
		c.events.Publish(ctx, st.RunID, events.TypePhaseStarted, map[string]any{"phase": phase.Name})

		phaseStart := time.Now()
		next, err := phase.Run(ctx, st)
		if err != nil {
			// fatal: surface to the caller, last checkpoint stays the
			// recovery point
			return st, fmt.Errorf("phase %s: %w", phase.Name, err)
		}
		st = next
		phaseDuration.WithLabelValues(phase.Name).Observe(time.Since(phaseStart).Seconds())

		if phase.Name == state.PhaseDesign && c.previews != nil {
			st = c.previews.Render(ctx, st)
			c.events.Publish(ctx, st.RunID, events.TypePreviewsUpdated, map[string]any{
				"preview_count": len(st.PreviewImages),
			})
		}
		if gateEligible[phase.Name] {
			st = auditor.Audit(st, phase.Name)
		}

		st.Touch()
		if err := c.store.SaveState(ctx, st, 0); err != nil {
			return st, err
		}
		c.events.Publish(ctx, st.RunID, events.TypePhaseCompleted, map[string]any{
			"phase":       phase.Name,
			"suggestions": st.TeachingSuggestions,
			"warnings":    st.Warnings,
		})

		if gated[phase.Name] && gateEligible[phase.Name] && !opts.AutoApprove {
			st.WorkflowStatus = state.StatusWaiting
			st.WaitingForPhase = phase.Name
			st.ApprovalRequired = true
			st.ApprovalStatus = state.ApprovalPending
			st.Touch()
			if err := c.store.SaveState(ctx, st, 0); err != nil {
				return st, err
			}
			if err := c.store.RecordLog(ctx, st.RunID, fmt.Sprintf("awaiting approval after phase %s", phase.Name), "INFO"); err != nil {
				return st, err
			}
			c.events.Publish(ctx, st.RunID, events.TypeApprovalRequired, map[string]any{"phase": phase.Name})
			c.logger.Printf("run %d waiting for approval after %s", st.RunID, phase.Name)
			return st, nil
		}
	}

	st.ApprovalRequired = false
	if st.ApprovalStatus == state.ApprovalNotRequired {
		st.ApprovalStatus = state.ApprovalApproved
	}
	st.WaitingForPhase = ""
	return st, nil
}

func (c *Controller) finalize(ctx context.Context, st *state.RunState, start time.Time) (*state.RunState, error) {
	elapsed := time.Since(start).Seconds()
	if err := c.store.RecordRunComplete(ctx, st, st.PPTXPath, elapsed); err != nil {
		return st, err
	}
	if err := c.store.RecordLog(ctx, st.RunID, fmt.Sprintf("run completed in %.2fs", elapsed), "INFO"); err != nil {
		return st, err
	}
	c.events.Publish(ctx, st.RunID, events.TypeRunCompleted, map[string]any{
		"output_path":     st.PPTXPath,
		"approval_status": st.ApprovalStatus,
		"errors":          st.Errors,
	})
	runsCompleted.Inc()
	c.logger.Printf("run %d completed in %.2fs", st.RunID, elapsed)
	return st, nil
}
