package agents

import (
	"fmt"

	"github.com/slidesmith/slidesmith/internal/state"
)

// citationManager deduplicates evidence sources and assigns stable numeric
// citation keys in first-seen order.
type citationManager struct {
	refs  map[string]state.Citation
	order []string
}

func newCitationManager() *citationManager {
	return &citationManager{refs: make(map[string]state.Citation)}
}

func (cm *citationManager) register(ev state.Evidence) {
	if ev.Source == "" {
		return
	}
	if _, ok := cm.refs[ev.Source]; ok {
		return
	}
	cm.order = append(cm.order, ev.Source)
	cm.refs[ev.Source] = state.Citation{
		Marker: fmt.Sprintf("[%d]", len(cm.order)),
		Title:  ev.Source,
		Source: ev.Source,
		Date:   ev.Date,
	}
}

// marker returns the citation marker for an evidence source, registering it
// on first sight.
func (cm *citationManager) marker(ev state.Evidence) string {
	cm.register(ev)
	for i, src := range cm.order {
		if src == ev.Source {
			return fmt.Sprintf("[%d]", i+1)
		}
	}
	return ""
}

func (cm *citationManager) citations() []state.Citation {
	out := make([]state.Citation, 0, len(cm.order))
	for _, src := range cm.order {
		out = append(out, cm.refs[src])
	}
	return out
}

// references builds the entries for the final references slide.
func (cm *citationManager) references() []string {
	out := make([]string, 0, len(cm.order))
	for i, src := range cm.order {
		ref := cm.refs[src]
		out = append(out, fmt.Sprintf("[%d] %s (%s) - %s", i+1, ref.Title, ref.Date, ref.Source))
	}
	return out
}
