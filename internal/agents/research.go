package agents

import (
	"context"
	"strings"

	"github.com/slidesmith/slidesmith/internal/corpus"
	"github.com/slidesmith/slidesmith/internal/state"
)

const evidenceTopK = 3

// Research extracts factual claims from the brief and looks for supporting
// evidence in the local corpus. Finding nothing is not an error; later
// phases proceed without citations.
func (a *Agents) Research(ctx context.Context, st *state.RunState) (*state.RunState, error) {
	if st.UserInput == "" {
		st.AddError("No user input provided for research")
		return st, nil
	}

	claims := extractClaims(st.UserInput)

	cm := newCitationManager()
	var evidences []state.Evidence
	for i := range claims {
		var hits []corpus.Hit
		if a.search != nil {
			hits = a.search.Search(claims[i].Text, evidenceTopK)
		}
		if len(hits) == 0 {
			evidences = append(evidences, state.Evidence{Claim: claims[i].Text})
			continue
		}
		conf := confidence(len(hits))
		claims[i].Confidence = conf
		top := hits[0]
		ev := state.Evidence{
			Claim:   claims[i].Text,
			Snippet: top.Snippet,
			Source:  top.Doc.Source,
			Date:    top.Doc.Date,
			Score:   conf,
		}
		evidences = append(evidences, ev)
		cm.register(ev)
	}

	st.Claims = claims
	st.Evidences = evidences
	st.Citations = cm.citations()
	st.References = cm.references()
	a.logger.Printf("research: %d claims, %d evidence snippets, %d sources", len(claims), len(evidences), len(st.Citations))
	return st, nil
}

// extractClaims naively splits the text into sentences; each non-empty
// sentence becomes one claim to verify.
func extractClaims(text string) []state.Claim {
	var claims []state.Claim
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		claims = append(claims, state.Claim{Text: sentence})
	}
	return claims
}

// confidence grows with the number of supporting hits, capped at 1.0.
func confidence(hits int) float64 {
	c := float64(hits) / float64(evidenceTopK)
	if c > 1.0 {
		return 1.0
	}
	return c
}
