package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slidesmith/slidesmith/internal/state"
)

const contentSystemPrompt = `You are a slide content writer. Create engaging, informative content for one presentation slide. Respond ONLY with valid JSON.`

// Content generates one slide per outline section. Each slide goes through
// the model individually; a failed call or unusable response yields a
// deterministic fallback slide so the deck is always complete.
func (a *Agents) Content(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	if st.Outline == nil {
		st.AddError("No outline available for content generation")
		return st, nil
	}

	markers := make([]string, 0, len(st.Citations))
	for _, c := range st.Citations {
		markers = append(markers, c.Marker)
	}

	total := len(st.Outline.Sections)
	slides := make([]state.SlideContent, 0, total)
	for i, section := range st.Outline.Sections {
		raw, err := a.llm.Generate(ctx, "content", contentSystemPrompt, a.slidePrompt(st, section, i+1, total, markers))
		if err != nil {
			a.logger.Printf("content model call failed for section %q: %v", section.Title, err)
			raw = ""
		}

		var slide state.SlideContent
		if data := repairJSON(raw); data == nil || json.Unmarshal(data, &slide) != nil || slide.Title == "" || len(slide.Bullets) == 0 {
			slide = fallbackSlide(st, section)
		}
		if len(slide.CitationsUsed) == 0 && len(markers) > 0 {
			slide.CitationsUsed = append([]string(nil), markers...)
		}
		slides = append(slides, slide)
	}

	st.Content = slides
	return st, nil
}

func (a *Agents) slidePrompt(st *state.RunState, section state.OutlineSection, idx, total int, markers []string) string {
	citations := "none"
	if len(markers) > 0 {
		citations = strings.Join(markers, ", ")
	}
	base := fmt.Sprintf(`Write content for slide %d of %d.

Topic: %s
Audience: %s
Section: %s
Available citations: %s

Create a concise title, 3-5 specific bullet points, and 2-3 sentences of speaker notes.`,
		idx, total, st.Outline.Topic, st.Outline.Audience, section.Title, citations)

	if !st.EducationalMode {
		return base + `

Respond with JSON: {"title": ..., "bullets": [...], "speaker_notes": ..., "citations_used": [...]}`
	}

	bloom := suggestBloomLevel(idx, total)
	return base + fmt.Sprintf(`

This is an educational deck. Also include an engagement hook, an active learning prompt,
a formative check, a time estimate in minutes, and target the %q Bloom level.

Respond with JSON: {"title": ..., "bullets": [...], "speaker_notes": ..., "citations_used": [...],
"engagement_hook": ..., "active_learning_prompt": ..., "formative_check": ..., "bloom_level": %q,
"time_estimate_minutes": ...}`, bloom, bloom)
}

// fallbackSlide builds a deterministic slide when the model response is
// unusable, mirroring the section heading into title and bullets.
func fallbackSlide(st *state.RunState, section state.OutlineSection) state.SlideContent {
	topic := st.Outline.Topic
	if topic == "" {
		topic = st.UserInput
	}
	lower := strings.ToLower(section.Title)
	slide := state.SlideContent{
		Title: fmt.Sprintf("%s: %s", section.Title, topic),
		Bullets: []string{
			fmt.Sprintf("Define %s in the context of %s.", lower, topic),
			fmt.Sprintf("Explain key drivers and practical implications of %s.", lower),
			fmt.Sprintf("Summarize actionable takeaways related to %s.", topic),
		},
		SpeakerNotes: fmt.Sprintf("Discuss why %s is important for understanding %s.", lower, topic),
	}
	if st.EducationalMode {
		slide.SpeakerNotes = fmt.Sprintf("Guide learners through %s with concrete examples tied to %s.", lower, topic)
		slide.EngagementHook = fmt.Sprintf("Why does %s matter in real life?", lower)
		slide.ActiveLearningPrompt = fmt.Sprintf("Pair activity: identify one real-world example of %s.", lower)
		slide.FormativeCheck = fmt.Sprintf("Quick check: What is one key idea from %s?", lower)
	}
	return slide
}
