package agents

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slidesmith/slidesmith/internal/corpus"
	"github.com/slidesmith/slidesmith/internal/state"
	"github.com/slidesmith/slidesmith/provider"
)

// brokenProvider forces every phase onto its deterministic fallback.
type brokenProvider struct{}

func (brokenProvider) Name() string { return "broken" }
func (brokenProvider) Generate(context.Context, string, string, string) (string, error) {
	return "", errors.New("model unavailable")
}

func testAgents(t *testing.T, llm provider.Provider) *Agents {
	t.Helper()
	ix, err := corpus.Load("", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("empty corpus: %v", err)
	}
	return New(llm, ix, t.TempDir(), log.New(io.Discard, "", 0))
}

func TestOutlineFromMockProvider(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("Benefits of renewable energy for cities", "s")

	st, err := a.Outline(context.Background(), st)
	if err != nil {
		t.Fatalf("outline: %v", err)
	}
	if st.Outline == nil || len(st.Outline.Sections) == 0 {
		t.Fatalf("no outline produced")
	}
	if !strings.Contains(st.Outline.Topic, "renewable energy") {
		t.Fatalf("topic not derived from brief: %q", st.Outline.Topic)
	}
	if st.ModelInfo["provider"] != "mock" {
		t.Fatalf("model info missing: %v", st.ModelInfo)
	}
}

func TestOutlineFallbackOnBrokenModel(t *testing.T) {
	a := testAgents(t, brokenProvider{})
	st := state.New("quantum computing basics", "s")

	st, _ = a.Outline(context.Background(), st)
	if st.Outline == nil {
		t.Fatalf("fallback outline missing")
	}
	if st.Outline.Topic != "quantum computing basics" || len(st.Outline.Sections) != 3 {
		t.Fatalf("unexpected fallback outline: %+v", st.Outline)
	}
}

func TestOutlineEducationalDefaults(t *testing.T) {
	a := testAgents(t, brokenProvider{})
	st := state.New("intro to fractions", "s")
	st.EducationalMode = true

	st, _ = a.Outline(context.Background(), st)
	if len(st.Outline.LearningObjectives) != 2 {
		t.Fatalf("default objectives not injected: %+v", st.Outline.LearningObjectives)
	}
	if len(st.Outline.PrerequisiteKnowledge) != 2 {
		t.Fatalf("default prerequisites not injected: %+v", st.Outline.PrerequisiteKnowledge)
	}
}

func TestResearchWithCorpusEvidence(t *testing.T) {
	dir := t.TempDir()
	doc := `---
title: Urban solar report
source: solar-report
published_at: 2024-01-15
---
Rooftop solar lowers city electricity costs. Solar adoption in cities keeps rising.`
	if err := os.WriteFile(filepath.Join(dir, "solar.md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	ix, err := corpus.Load(dir, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	a := New(provider.NewMock(), ix, t.TempDir(), log.New(io.Discard, "", 0))

	st := state.New("Solar power lowers electricity costs in cities. It also creates jobs.", "s")
	st, _ = a.Research(context.Background(), st)

	if len(st.Claims) != 2 {
		t.Fatalf("claims: %+v", st.Claims)
	}
	if len(st.Evidences) != 2 {
		t.Fatalf("evidences: %+v", st.Evidences)
	}
	found := false
	for _, ev := range st.Evidences {
		if ev.Source == "solar-report" {
			found = true
			if ev.Score <= 0 || ev.Score > 1 {
				t.Fatalf("confidence out of range: %v", ev.Score)
			}
		}
	}
	if !found {
		t.Fatalf("corpus evidence not attached: %+v", st.Evidences)
	}
	if len(st.Citations) == 0 || st.Citations[0].Marker != "[1]" {
		t.Fatalf("citations: %+v", st.Citations)
	}
	if len(st.References) == 0 || !strings.HasPrefix(st.References[0], "[1] ") {
		t.Fatalf("references: %+v", st.References)
	}
}

func TestResearchWithoutCorpusDegrades(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("Some unverifiable statement.", "s")

	st, _ = a.Research(context.Background(), st)
	if len(st.Claims) != 1 {
		t.Fatalf("claims: %+v", st.Claims)
	}
	if len(st.Evidences) != 1 || st.Evidences[0].Source != "" {
		t.Fatalf("expected empty-source evidence: %+v", st.Evidences)
	}
	if len(st.Citations) != 0 || len(st.References) != 0 {
		t.Fatalf("citations invented without sources")
	}
	if len(st.Errors) != 0 {
		t.Fatalf("no-evidence case must not error: %v", st.Errors)
	}
}

func TestContentOneSlidePerSection(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("renewable energy", "s")
	st.Outline = &state.Outline{
		Topic:    "Renewable energy",
		Audience: "city planners",
		Sections: []state.OutlineSection{{Title: "Costs"}, {Title: "Benefits"}, {Title: "Policy"}},
	}

	st, _ = a.Content(context.Background(), st)
	if len(st.Content) != 3 {
		t.Fatalf("slides: %d", len(st.Content))
	}
	for i, slide := range st.Content {
		if slide.Title == "" || len(slide.Bullets) == 0 {
			t.Fatalf("slide %d empty: %+v", i, slide)
		}
	}
}

func TestContentFallbackSlides(t *testing.T) {
	a := testAgents(t, brokenProvider{})
	st := state.New("renewable energy", "s")
	st.EducationalMode = true
	st.Outline = &state.Outline{
		Topic:    "Renewable energy",
		Sections: []state.OutlineSection{{Title: "Overview"}},
	}

	st, _ = a.Content(context.Background(), st)
	if len(st.Content) != 1 {
		t.Fatalf("slides: %d", len(st.Content))
	}
	slide := st.Content[0]
	if !strings.Contains(slide.Title, "Overview") {
		t.Fatalf("fallback title: %q", slide.Title)
	}
	if slide.EngagementHook == "" || slide.FormativeCheck == "" {
		t.Fatalf("educational fallback incomplete: %+v", slide)
	}
}

func TestContentRequiresOutline(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("x", "s")

	st, _ = a.Content(context.Background(), st)
	if len(st.Errors) != 1 || len(st.Content) != 0 {
		t.Fatalf("missing-outline case: errors=%v content=%v", st.Errors, st.Content)
	}
}

func TestDesignWritesArtifact(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("renewable energy", "s")
	st.Outline = &state.Outline{Topic: "Renewable energy"}
	st.Content = []state.SlideContent{{Title: "Costs", Bullets: []string{"b1", "b2"}}}
	st.References = []string{"[1] report (2024) - report"}

	st, err := a.Design(context.Background(), st)
	if err != nil {
		t.Fatalf("design: %v", err)
	}
	if st.PPTXPath == "" {
		t.Fatalf("pptx path not set; errors: %v", st.Errors)
	}
	if _, err := os.Stat(st.PPTXPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !strings.HasSuffix(st.PPTXPath, ".pptx") {
		t.Fatalf("unexpected artifact name: %s", st.PPTXPath)
	}
}

func TestQAScoresClamped(t *testing.T) {
	a := testAgents(t, provider.NewMock())
	st := state.New("renewable energy", "s")
	st.Content = []state.SlideContent{
		{Title: "a", Bullets: []string{"1", "2"}},
		{Title: "b", Bullets: []string{"1", "2"}},
		{Title: "c", Bullets: []string{"1", "2"}},
	}

	st, _ = a.QA(context.Background(), st)
	if st.QAReport == nil {
		t.Fatalf("no qa report")
	}
	for _, score := range []float64{st.QAReport.ContentScore, st.QAReport.DesignScore, st.QAReport.CoherenceScore} {
		if score < 1.0 || score > 5.0 {
			t.Fatalf("score out of range: %v", score)
		}
	}
}

func TestQAHeuristicFallback(t *testing.T) {
	a := testAgents(t, brokenProvider{})
	st := state.New("renewable energy", "s")
	st.Content = []state.SlideContent{
		{Title: "a", Bullets: []string{"1", "2", "3"}},
		{Title: "b", Bullets: []string{"1", "2"}},
		{Title: "c", Bullets: []string{"1", "2"}},
	}

	st, _ = a.QA(context.Background(), st)
	if st.QAReport == nil {
		t.Fatalf("no fallback report")
	}
	if st.QAReport.ContentScore != 3.5 {
		t.Fatalf("heuristic score: %+v", st.QAReport)
	}
	if !strings.Contains(st.QAReport.Feedback, "fallback") {
		t.Fatalf("fallback feedback missing: %q", st.QAReport.Feedback)
	}
}

func TestRepairJSON(t *testing.T) {
	if got := repairJSON(`prose before {"a": 1} prose after`); string(got) != `{"a": 1}` {
		t.Fatalf("repair: %q", got)
	}
	if got := repairJSON(`{"a": 1}`); string(got) != `{"a": 1}` {
		t.Fatalf("direct: %q", got)
	}
	if got := repairJSON("no json at all"); got != nil {
		t.Fatalf("expected nil: %q", got)
	}
}
