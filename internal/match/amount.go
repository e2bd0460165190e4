package match

import (
	"math"
	"sort"

	"github.com/ledgerworks/coriander/internal/model"
)

// RankByAmount orders textually matched candidates by how closely their
// historical average transaction amount tracks the target amount.
//
// For each candidate label it accumulates (count, total) over the
// matched history carrying that label, using absolute amounts since
// debits and credits may be recorded with inconsistent sign. Candidates
// sort ascending by |target − average|; an unseen label averages to 0
// rather than dividing by zero. Exact ties keep their original order.
func RankByAmount(candidates []model.Candidate, matches []Match, kind model.Kind, target float64) []model.Candidate {
	if len(candidates) < 2 {
		return candidates
	}

	type tally struct {
		count int
		total float64
	}
	tallies := make(map[string]*tally, len(candidates))
	for _, c := range candidates {
		tallies[c.Name] = &tally{}
	}

	for _, m := range matches {
		label := m.Transaction.Label(kind)
		if t, ok := tallies[label]; ok {
			t.count++
			t.total += math.Abs(m.Transaction.Amount)
		}
	}

	diffs := make(map[string]float64, len(candidates))
	for name, t := range tallies {
		average := 0.0
		if t.count > 0 {
			average = t.total / float64(t.count)
		}
		diffs[name] = math.Abs(target - average)
	}

	ranked := make([]model.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return diffs[ranked[i].Name] < diffs[ranked[j].Name]
	})
	return ranked
}
