package llm

import (
	"strings"

	"github.com/ledgerworks/coriander/internal/model"
)

// extractCandidates performs closed-set multi-label extraction: every
// allow-list name contained (case-insensitively) in the model's answer
// becomes a candidate, in allow-list order rather than discovery order.
// The model's prose may mention adjacent valid terms, which is why this
// is containment, not equality.
func extractCandidates(answer string, valid []model.Classification, kind model.Kind) []model.Candidate {
	if answer == "" {
		return nil
	}
	lower := strings.ToLower(answer)

	var candidates []model.Candidate
	for _, c := range valid {
		if c.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			candidates = append(candidates, model.Candidate{
				Kind:   kind,
				ID:     c.ID,
				Name:   c.Name,
				Source: model.SourceLLM,
			})
		}
	}
	return candidates
}
