package agents

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/slidesmith/slidesmith/internal/pptx"
	"github.com/slidesmith/slidesmith/internal/state"
)

// Design assembles the PowerPoint file from the generated slides and the
// references gathered during research. Assembly failures are recorded on
// the state; the run still completes so callers can inspect the error list.
func (a *Agents) Design(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	if len(st.Content) == 0 {
		st.AddError("No slide content available for presentation assembly")
		return st, nil
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}

	deck := &pptx.Deck{Subtitle: "Generated presentation"}
	if st.Outline != nil {
		deck.Title = st.Outline.Topic
	}
	if deck.Title == "" {
		deck.Title = st.UserInput
	}

	for _, slide := range st.Content {
		bullets := append([]string(nil), slide.Bullets...)
		if slide.EngagementHook != "" {
			bullets = append([]string{"Hook: " + slide.EngagementHook}, bullets...)
		}
		if slide.FormativeCheck != "" {
			bullets = append(bullets, slide.FormativeCheck)
		}
		deck.Slides = append(deck.Slides, pptx.Slide{Title: slide.Title, Bullets: bullets})
	}
	if len(st.References) > 0 {
		deck.Slides = append(deck.Slides, pptx.Slide{Title: "References", Bullets: st.References})
	}

	outputPath := filepath.Join(a.artifactsDir, fmt.Sprintf("presentation_%s.pptx", time.Now().Format("20060102_150405")))
	if err := deck.Write(outputPath); err != nil {
		st.AddError(fmt.Sprintf("Failed to generate PowerPoint file: %v", err))
		return st, nil
	}
	st.PPTXPath = outputPath
	a.logger.Printf("assembled %d slides into %s", len(deck.Slides)+1, outputPath)
	return st, nil
}
