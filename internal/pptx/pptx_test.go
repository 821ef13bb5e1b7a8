package pptx

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteProducesValidArchive(t *testing.T) {
	deck := &Deck{
		Title:    "Benefits of renewable energy",
		Subtitle: "Generated deck",
		Slides: []Slide{
			{Title: "Solar power", Bullets: []string{"Costs fell 80% since 2010", "Scales from rooftops to farms"}},
			{Title: "References", Bullets: []string{"[1] Energy report (2024) - energy-report-2024"}},
		},
	}

	path := filepath.Join(t.TempDir(), "deck.pptx")
	if err := deck.Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("output is not a zip: %v", err)
	}
	defer r.Close()

	parts := map[string]bool{}
	for _, f := range r.File {
		parts[f.Name] = true
	}
	for _, want := range []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"ppt/presentation.xml",
		"ppt/slideMasters/slideMaster1.xml",
		"ppt/theme/theme1.xml",
		"ppt/slides/slide1.xml",
		"ppt/slides/slide2.xml",
		"ppt/slides/slide3.xml",
	} {
		if !parts[want] {
			t.Fatalf("missing part %s in %v", want, parts)
		}
	}
	if parts["ppt/slides/slide4.xml"] {
		t.Fatalf("extra slide part present")
	}
}

func TestSlideTextIsEscaped(t *testing.T) {
	deck := &Deck{
		Title:  "Q&A <session>",
		Slides: []Slide{{Title: `He said "go"`, Bullets: []string{"a < b && b > c"}}},
	}
	path := filepath.Join(t.TempDir(), "deck.pptx")
	if err := deck.Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || strings.Contains(f.Name, "_rels") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open part: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		content := string(data)
		if strings.Contains(content, "Q&A") || strings.Contains(content, "<session>") {
			t.Fatalf("unescaped text in %s", f.Name)
		}
		if strings.Contains(f.Name, "slide1") && !strings.Contains(content, "Q&amp;A &lt;session&gt;") {
			t.Fatalf("title not escaped in %s: %s", f.Name, content)
		}
	}
}

func TestTitleSlideIsFirst(t *testing.T) {
	deck := &Deck{Title: "Main title", Slides: []Slide{{Title: "Body"}}}
	slides := deck.allSlides()
	if len(slides) != 2 || slides[0].Title != "Main title" || slides[1].Title != "Body" {
		t.Fatalf("slide order wrong: %+v", slides)
	}
}
