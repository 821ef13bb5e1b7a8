// Package events provides the per-run in-memory event feed consumed by
// polling and streaming clients, with optional redis fan-out for
// multi-process deployments. Events are observability, not a correctness
// channel; only checkpoints are durable.
package events

import (
	"context"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slidesmith/slidesmith/internal/state"
)

// Event types published by the pipeline.
const (
	TypeRunStarted       = "run_started"
	TypeRunResumed       = "run_resumed"
	TypeRunCompleted     = "run_completed"
	TypePhaseStarted     = "phase_started"
	TypePhaseCompleted   = "phase_completed"
	TypeApprovalRequired = "approval_required"
	TypePreviewsUpdated  = "previews_updated"
	TypeHeartbeat        = "heartbeat"
	TypeStreamClosed     = "stream_closed"
)

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "slidesmith_events_published_total",
	Help: "Events published to the in-memory event store, by type.",
}, []string{"type"})

// Event is one ephemeral notification of a run transition.
type Event struct {
	RunID   int64          `json:"run_id"`
	Type    string         `json:"event_type"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Store keeps a bounded, ordered event list per run. One mutex guards all
// lists; critical sections are short and contention is low.
type Store struct {
	mu     sync.Mutex
	events map[int64][]Event
	max    int
	bus    Bus
	logger *log.Logger
}

// NewStore builds an event store retaining at most max events per run.
func NewStore(max int, bus Bus, logger *log.Logger) *Store {
	if max <= 0 {
		max = 500
	}
	if bus == nil {
		bus = NoopBus{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EVENTS] ", log.LstdFlags)
	}
	return &Store{events: make(map[int64][]Event), max: max, bus: bus, logger: logger}
}

// Publish appends an event for a run, evicting the oldest entries past the
// retention bound, and fans out to the bus best-effort.
func (s *Store) Publish(ctx context.Context, runID int64, eventType string, payload map[string]any) Event {
	ev := Event{RunID: runID, Type: eventType, TS: state.NowISO(), Payload: payload}

	s.mu.Lock()
	list := append(s.events[runID], ev)
	if len(list) > s.max {
		list = list[len(list)-s.max:]
	}
	s.events[runID] = list
	s.mu.Unlock()

	eventsPublished.WithLabelValues(eventType).Inc()

	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Printf("bus publish run %d %s: %v", runID, eventType, err)
	}
	return ev
}

// List returns the retained events for a run in publish order. A non-empty
// sinceTS keeps only events strictly newer than it; ISO-8601 strings of
// fixed width compare correctly as plain strings.
func (s *Store) List(runID int64, sinceTS string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.events[runID]
	out := make([]Event, 0, len(list))
	for _, ev := range list {
		if sinceTS != "" && ev.TS <= sinceTS {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Known reports whether the store has retained anything for the run.
func (s *Store) Known(runID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[runID]
	return ok
}
