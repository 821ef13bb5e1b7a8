// Package preview renders per-slide PNG previews through headless Chrome.
// Rendering is best-effort: a missing browser or any render failure appends
// a warning to the run instead of failing it.
package preview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/slidesmith/slidesmith/config"
	"github.com/slidesmith/slidesmith/internal/state"
)

const renderTimeout = 20 * time.Second

// Worker renders previews for one run at a time.
type Worker struct {
	cfg          config.PreviewConfig
	artifactsDir string
	logger       *log.Logger
}

// NewWorker builds a preview worker writing under artifactsDir/previews.
func NewWorker(cfg config.PreviewConfig, artifactsDir string, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "[PREVIEW] ", log.LstdFlags)
	}
	return &Worker{cfg: cfg, artifactsDir: artifactsDir, logger: logger}
}

// Render produces one PNG per slide plus a manifest.json mapping 1-based
// slide ordinals to image paths. The state comes back unchanged except for
// the manifest fields, or a warning when rendering is unavailable.
func (w *Worker) Render(ctx context.Context, st *state.RunState) *state.RunState {
	if !w.cfg.Enabled {
		st.AddWarning("slide previews disabled by configuration")
		return st
	}
	if len(st.Content) == 0 {
		st.AddWarning("no slide content available for previews")
		return st
	}

	dir := filepath.Join(w.artifactsDir, "previews", fmt.Sprintf("run-%d", st.RunID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		st.AddWarning(fmt.Sprintf("preview output dir unavailable: %v", err))
		return st
	}

	manifest, err := w.renderSlides(ctx, st.Content, dir)
	if err != nil {
		w.logger.Printf("preview rendering unavailable for run %d: %v", st.RunID, err)
		st.AddWarning(fmt.Sprintf("preview rendering unavailable: %v", err))
		return st
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(manifestPath, data, 0o644)
	}
	if err != nil {
		st.AddWarning(fmt.Sprintf("preview manifest not persisted: %v", err))
		return st
	}

	st.PreviewImages = manifest
	st.PreviewManifestPath = manifestPath
	w.logger.Printf("rendered %d slide previews for run %d", len(manifest), st.RunID)
	return st
}

func (w *Worker) renderSlides(ctx context.Context, slides []state.SlideContent, dir string) (map[string]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	width, height := int64(w.cfg.Width), int64(w.cfg.Height)
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	manifest := make(map[string]string, len(slides))
	for i, slide := range slides {
		renderCtx, cancel := context.WithTimeout(browserCtx, renderTimeout)
		var shot []byte
		url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(slideHTML(slide)))
		err := chromedp.Run(renderCtx,
			chromedp.EmulateViewport(width, height),
			chromedp.Navigate(url),
			chromedp.CaptureScreenshot(&shot),
		)
		cancel()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("slide-%d.png", i+1))
		if err := os.WriteFile(path, shot, 0o644); err != nil {
			return nil, err
		}
		manifest[strconv.Itoa(i+1)] = path
	}
	return manifest, nil
}

// slideHTML lays out one slide as a static page for screenshotting.
func slideHTML(slide state.SlideContent) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>
body { font-family: 'Segoe UI', sans-serif; margin: 0; padding: 48px; background: #ffffff; }
h1 { font-size: 40px; color: #1f3864; border-bottom: 3px solid #4472c4; padding-bottom: 12px; }
ul { font-size: 24px; line-height: 1.7; color: #222222; }
.hook { margin-top: 24px; font-size: 20px; color: #70ad47; font-style: italic; }
</style></head><body>`)
	b.WriteString("<h1>" + html.EscapeString(slide.Title) + "</h1><ul>")
	for _, bullet := range slide.Bullets {
		b.WriteString("<li>" + html.EscapeString(bullet) + "</li>")
	}
	b.WriteString("</ul>")
	if slide.EngagementHook != "" {
		b.WriteString(`<div class="hook">` + html.EscapeString(slide.EngagementHook) + "</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
