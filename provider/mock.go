package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// mock is a deterministic offline provider. It answers with valid JSON for
// each agent so the full pipeline runs without network access; tests and the
// default configuration rely on it.
type mock struct{}

// NewMock returns the deterministic offline provider.
func NewMock() Provider { return mock{} }

func (mock) Name() string { return "mock" }

func (mock) Generate(ctx context.Context, agent string, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch agent {
	case "outline":
		return mockOutline(user), nil
	case "content":
		return mockSlide(user), nil
	case "qa":
		return `{"content_score": 4.2, "design_score": 4.0, "coherence_score": 4.4, "feedback": "Clear structure with evidence-backed points."}`, nil
	default:
		return "{}", nil
	}
}

// promptField pulls the value of a "Label: value" line out of a prompt.
func promptField(prompt, label string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label))
		}
	}
	return ""
}

func mockOutline(prompt string) string {
	topic := promptField(prompt, "Topic:")
	if topic == "" {
		topic = "Untitled presentation"
	}
	out := map[string]any{
		"topic":    topic,
		"audience": "general",
		"sections": []map[string]any{
			{"title": "Introduction to " + topic, "points": []string{"Why " + topic + " matters", "Scope of this talk"}},
			{"title": "Key aspects of " + topic, "points": []string{"Core concepts", "Current developments", "Common misconceptions"}},
			{"title": "Conclusions", "points": []string{"Summary of findings", "Next steps"}},
		},
	}
	if strings.Contains(prompt, "learning objectives") {
		out["learning_objectives"] = []map[string]any{
			{"objective": "Explain the fundamentals of " + topic, "bloom_level": "understand"},
			{"objective": "Evaluate practical applications of " + topic, "bloom_level": "evaluate"},
		}
		out["prerequisite_knowledge"] = []string{"Basic domain vocabulary", "No prior specialist knowledge required"}
		out["educational_level"] = "introductory"
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func mockSlide(prompt string) string {
	section := promptField(prompt, "Section:")
	if section == "" {
		section = "Overview"
	}
	slide := map[string]any{
		"title": section,
		"bullets": []string{
			"Key point about " + strings.ToLower(section),
			"Supporting detail with context",
			"Practical implication",
		},
		"speaker_notes": "Walk the audience through " + strings.ToLower(section) + " step by step.",
	}
	if strings.Contains(prompt, "engagement hook") {
		slide["engagement_hook"] = "Ask the audience for a show of hands on " + strings.ToLower(section)
		slide["active_learning_prompt"] = "Discuss with a neighbor how this applies to your own work"
		slide["formative_check"] = "Quick quiz: name one takeaway from this slide"
		slide["bloom_level"] = "apply"
		slide["time_estimate_minutes"] = 3
	}
	b, _ := json.Marshal(slide)
	return string(b)
}
