// Package auditor runs deterministic instructional-quality checks between
// phases. No model inference is involved, so the checks work offline and
// never fail a run; they only annotate it.
package auditor

import (
	"github.com/slidesmith/slidesmith/internal/state"
)

func appendUnique(items []string, value string) []string {
	if value == "" {
		return items
	}
	for _, v := range items {
		if v == value {
			return items
		}
	}
	return append(items, value)
}

// Audit evaluates pedagogical quality after a phase and appends advisory
// suggestions and flag tags. Prior annotations are never removed.
func Audit(st *state.RunState, phase string) *state.RunState {
	suggest := func(suggestion, flag string) {
		st.TeachingSuggestions = appendUnique(st.TeachingSuggestions, suggestion)
		st.AuditFlags = appendUnique(st.AuditFlags, flag)
	}

	switch phase {
	case state.PhaseOutline:
		if st.Outline == nil {
			return st
		}
		if len(st.Outline.LearningObjectives) == 0 {
			suggest("Add at least 2 measurable learning objectives before content generation.",
				"outline_missing_learning_objectives")
		}
		if len(st.Outline.PrerequisiteKnowledge) == 0 {
			suggest("Specify prerequisite knowledge to calibrate slide complexity.",
				"outline_missing_prerequisites")
		}

	case state.PhaseResearch:
		if len(st.Claims) == 0 {
			suggest("Research phase produced no explicit claims; add verifiable claims for factual grounding.",
				"research_missing_claims")
		}
		if len(st.Evidences) == 0 {
			suggest("Collect evidence snippets for key claims before drafting content.",
				"research_missing_evidence")
		}

	case state.PhaseDesign:
		total := len(st.Content)
		if total == 0 {
			return st
		}
		hooks, formative := 0, 0
		for _, slide := range st.Content {
			if slide.EngagementHook != "" {
				hooks++
			}
			if slide.FormativeCheck != "" {
				formative++
			}
		}
		if hooks < max(1, int(float64(total)*0.4)) {
			suggest("Increase engagement hooks to maintain learner attention across the deck.",
				"design_low_engagement_hooks")
		}
		if formative < max(1, int(float64(total)*0.3)) {
			suggest("Add more formative checks to validate understanding during presentation.",
				"design_low_formative_checks")
		}
	}
	return st
}
