// Package agents implements the five pipeline phases: outline, research,
// content, design, and qa. Phases record their own domain failures into the
// run state instead of returning errors; every LLM-backed phase carries a
// deterministic fallback so the pipeline completes offline.
package agents

import (
	"log"
	"strings"

	"github.com/slidesmith/slidesmith/internal/corpus"
	"github.com/slidesmith/slidesmith/provider"
)

// Agents bundles the collaborators the phase implementations share.
type Agents struct {
	llm          provider.Provider
	search       *corpus.Index
	artifactsDir string
	logger       *log.Logger
}

// New wires the phase implementations to their collaborators.
func New(llm provider.Provider, search *corpus.Index, artifactsDir string, logger *log.Logger) *Agents {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENTS] ", log.LstdFlags)
	}
	if artifactsDir == "" {
		artifactsDir = "artifacts"
	}
	return &Agents{llm: llm, search: search, artifactsDir: artifactsDir, logger: logger}
}

// repairJSON extracts a JSON object from a model response that may wrap it
// in prose or code fences. Returns nil when no object can be found.
func repairJSON(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return []byte(raw)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil
	}
	return []byte(raw[start : end+1])
}

func clampScore(v float64) float64 {
	if v < 1.0 {
		return 1.0
	}
	if v > 5.0 {
		return 5.0
	}
	return v
}

// suggestBloomLevel scaffolds cognitive demand across the deck: early slides
// build understanding, middle slides apply, later slides analyze.
func suggestBloomLevel(idx, total int) string {
	if total <= 0 {
		return "understand"
	}
	progress := float64(idx) / float64(total)
	switch {
	case progress <= 0.33:
		return "understand"
	case progress <= 0.66:
		return "apply"
	default:
		return "analyze"
	}
}
