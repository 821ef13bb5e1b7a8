package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slidesmith/slidesmith/internal/state"
)

const outlineSystemPrompt = `You are a presentation outline generator. Analyze the brief and produce a structured outline. Respond ONLY with valid JSON.`

// Outline generates the deck skeleton from the user brief. A model failure
// or unparseable response falls back to a deterministic three-section
// outline; educational runs always end up with objectives and prerequisites.
func (a *Agents) Outline(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	if st.UserInput == "" {
		st.AddError("No user input provided")
		return st, nil
	}

	raw, err := a.llm.Generate(ctx, "outline", outlineSystemPrompt, a.outlinePrompt(st))
	if err != nil {
		a.logger.Printf("outline model call failed, using fallback: %v", err)
		raw = ""
	}

	var outline state.Outline
	if data := repairJSON(raw); data == nil || json.Unmarshal(data, &outline) != nil || outline.Topic == "" || len(outline.Sections) == 0 {
		outline = state.Outline{
			Topic:    st.UserInput,
			Audience: "General audience",
			Sections: []state.OutlineSection{
				{Title: "Introduction"},
				{Title: "Main Points"},
				{Title: "Conclusion"},
			},
		}
	}

	if st.EducationalMode {
		if len(outline.PrerequisiteKnowledge) == 0 {
			outline.PrerequisiteKnowledge = []string{
				"Basic familiarity with the topic context",
				"Willingness to engage in guided practice",
			}
		}
		if len(outline.LearningObjectives) == 0 {
			outline.LearningObjectives = []state.LearningObjective{
				{Objective: fmt.Sprintf("Students will be able to explain the core ideas of %s", outline.Topic), BloomLevel: "understand"},
				{Objective: fmt.Sprintf("Students will be able to apply concepts from %s to a practical example", outline.Topic), BloomLevel: "apply"},
			}
		}
	}

	if st.ModelInfo == nil {
		st.ModelInfo = map[string]string{}
	}
	st.ModelInfo["provider"] = a.llm.Name()

	st.Outline = &outline
	return st, nil
}

func (a *Agents) outlinePrompt(st *state.RunState) string {
	mode := "Generate 3-5 section headings that logically organize the content."
	extra := ""
	if st.EducationalMode {
		mode = "Design sections that scaffold from simple to complex."
		extra = "\nInclude 2-3 SMART learning objectives (with Bloom levels), prerequisite knowledge, and the educational level."
	}
	return fmt.Sprintf(`Create a presentation outline for the brief below.

Topic: %s
Template: %s

%s%s

Respond with JSON: {"topic": ..., "audience": ..., "sections": [{"title": ..., "points": [...]}]}`,
		st.UserInput, st.TemplateName, mode, extra)
}
