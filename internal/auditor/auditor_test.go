package auditor

import (
	"testing"

	"github.com/slidesmith/slidesmith/internal/state"
)

func TestOutlineChecks(t *testing.T) {
	st := state.New("topic", "s")
	st.Outline = &state.Outline{Topic: "topic", Sections: []state.OutlineSection{{Title: "a"}}}

	Audit(st, state.PhaseOutline)
	if len(st.AuditFlags) != 2 {
		t.Fatalf("flags: %v", st.AuditFlags)
	}
	if st.AuditFlags[0] != "outline_missing_learning_objectives" || st.AuditFlags[1] != "outline_missing_prerequisites" {
		t.Fatalf("unexpected flags: %v", st.AuditFlags)
	}

	// running twice must not duplicate
	Audit(st, state.PhaseOutline)
	if len(st.AuditFlags) != 2 || len(st.TeachingSuggestions) != 2 {
		t.Fatalf("annotations duplicated: %v %v", st.AuditFlags, st.TeachingSuggestions)
	}
}

func TestOutlineWithObjectivesPasses(t *testing.T) {
	st := state.New("topic", "s")
	st.Outline = &state.Outline{
		Topic:                 "topic",
		LearningObjectives:    []state.LearningObjective{{Objective: "explain x"}},
		PrerequisiteKnowledge: []string{"basics"},
	}
	Audit(st, state.PhaseOutline)
	if len(st.AuditFlags) != 0 {
		t.Fatalf("unexpected flags: %v", st.AuditFlags)
	}
}

func TestResearchChecks(t *testing.T) {
	st := state.New("topic", "s")
	Audit(st, state.PhaseResearch)
	if len(st.AuditFlags) != 2 {
		t.Fatalf("flags: %v", st.AuditFlags)
	}

	st2 := state.New("topic", "s")
	st2.Claims = []state.Claim{{Text: "c"}}
	st2.Evidences = []state.Evidence{{Claim: "c", Snippet: "s"}}
	Audit(st2, state.PhaseResearch)
	if len(st2.AuditFlags) != 0 {
		t.Fatalf("unexpected flags: %v", st2.AuditFlags)
	}
}

func TestDesignCoverageThresholds(t *testing.T) {
	st := state.New("topic", "s")
	for i := 0; i < 10; i++ {
		st.Content = append(st.Content, state.SlideContent{Title: "slide"})
	}
	// 3 hooks out of 10 is below the 40% bar; 2 checks below 30%
	for i := 0; i < 3; i++ {
		st.Content[i].EngagementHook = "hook"
	}
	for i := 0; i < 2; i++ {
		st.Content[i].FormativeCheck = "check"
	}
	Audit(st, state.PhaseDesign)
	if len(st.AuditFlags) != 2 {
		t.Fatalf("flags: %v", st.AuditFlags)
	}

	st2 := state.New("topic", "s")
	for i := 0; i < 10; i++ {
		slide := state.SlideContent{Title: "slide"}
		if i < 4 {
			slide.EngagementHook = "hook"
		}
		if i < 3 {
			slide.FormativeCheck = "check"
		}
		st2.Content = append(st2.Content, slide)
	}
	Audit(st2, state.PhaseDesign)
	if len(st2.AuditFlags) != 0 {
		t.Fatalf("coverage at thresholds should pass: %v", st2.AuditFlags)
	}
}

func TestAuditPureOnUnknownPhase(t *testing.T) {
	st := state.New("topic", "s")
	st.TeachingSuggestions = []string{"keep me"}
	Audit(st, state.PhaseContent)
	if len(st.TeachingSuggestions) != 1 || st.TeachingSuggestions[0] != "keep me" {
		t.Fatalf("prior suggestions disturbed: %v", st.TeachingSuggestions)
	}
}
