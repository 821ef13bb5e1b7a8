package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slidesmith/slidesmith/internal/state"
)

const qaSystemPrompt = `You are a presentation quality reviewer. Score the deck objectively. Respond ONLY with valid JSON.`

// QA scores the finished deck for content, design, and coherence, each
// clamped to [1,5]. An unusable model response falls back to a heuristic
// score derived from slide and bullet counts.
func (a *Agents) QA(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	if len(st.Content) == 0 {
		st.AddError("No slide content available for quality assurance")
		return st, nil
	}

	raw, err := a.llm.Generate(ctx, "qa", qaSystemPrompt, a.qaPrompt(st))
	if err != nil {
		a.logger.Printf("qa model call failed, using fallback: %v", err)
		raw = ""
	}

	var report state.QAReport
	if data := repairJSON(raw); data == nil || json.Unmarshal(data, &report) != nil || report.ContentScore == 0 {
		report = heuristicQA(st)
	}
	report.ContentScore = clampScore(report.ContentScore)
	report.DesignScore = clampScore(report.DesignScore)
	report.CoherenceScore = clampScore(report.CoherenceScore)

	st.QAReport = &report
	return st, nil
}

func (a *Agents) qaPrompt(st *state.RunState) string {
	topic, audience := "Unknown", "Unknown"
	if st.Outline != nil {
		topic, audience = st.Outline.Topic, st.Outline.Audience
	}
	titles := make([]string, 0, len(st.Content))
	for _, slide := range st.Content {
		titles = append(titles, slide.Title)
	}
	return fmt.Sprintf(`Evaluate this generated presentation.

Topic: %s
Audience: %s
Slides: %d
Titles: %s

Score content, design, and coherence from 1.0 to 5.0 and give actionable feedback.

Respond with JSON: {"content_score": ..., "design_score": ..., "coherence_score": ..., "feedback": ...}`,
		topic, audience, len(st.Content), strings.Join(titles, ", "))
}

// heuristicQA is the deterministic fallback: a baseline score, nudged up
// when the deck has enough slides with substantive bullets.
func heuristicQA(st *state.RunState) state.QAReport {
	report := state.QAReport{
		ContentScore:   3.0,
		DesignScore:    3.0,
		CoherenceScore: 3.0,
		Feedback:       "Deterministic QA fallback used because the model response could not be parsed.",
	}
	slideCount := len(st.Content)
	if slideCount == 0 {
		return report
	}
	totalBullets := 0
	for _, slide := range st.Content {
		totalBullets += len(slide.Bullets)
	}
	if slideCount >= 3 && float64(totalBullets)/float64(slideCount) >= 2 {
		report.ContentScore = 3.5
		report.DesignScore = 3.3
		report.CoherenceScore = 3.4
	}
	return report
}
