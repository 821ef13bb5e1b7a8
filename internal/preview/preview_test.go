package preview

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/state"
)

func TestDisabledWorkerWarnsAndReturnsState(t *testing.T) {
	w := NewWorker(config.PreviewConfig{Enabled: false}, t.TempDir(), log.New(io.Discard, "", 0))
	st := state.New("topic", "s")
	st.Content = []state.SlideContent{{Title: "slide"}}

	got := w.Render(context.Background(), st)
	if got != st {
		t.Fatalf("state identity lost")
	}
	if len(st.Warnings) != 1 || !strings.Contains(st.Warnings[0], "disabled") {
		t.Fatalf("missing disabled warning: %v", st.Warnings)
	}
	if len(st.PreviewImages) != 0 || st.PreviewManifestPath != "" {
		t.Fatalf("previews set despite being disabled: %+v", st.PreviewImages)
	}
}

func TestNoContentWarns(t *testing.T) {
	w := NewWorker(config.PreviewConfig{Enabled: true}, t.TempDir(), log.New(io.Discard, "", 0))
	st := state.New("topic", "s")

	w.Render(context.Background(), st)
	if len(st.Warnings) != 1 || !strings.Contains(st.Warnings[0], "no slide content") {
		t.Fatalf("missing warning: %v", st.Warnings)
	}
}

func TestSlideHTMLEscapes(t *testing.T) {
	page := slideHTML(state.SlideContent{
		Title:          "<script>alert(1)</script>",
		Bullets:        []string{"a < b"},
		EngagementHook: `ask "why"`,
	})
	if strings.Contains(page, "<script>alert") {
		t.Fatalf("title not escaped")
	}
	if !strings.Contains(page, "a &lt; b") {
		t.Fatalf("bullet not escaped: %s", page)
	}
	if !strings.Contains(page, "&#34;why&#34;") {
		t.Fatalf("hook not escaped: %s", page)
	}
}
