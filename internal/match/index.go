package match

import (
	"sort"
	"strings"

	"github.com/ledgerworks/coriander/internal/model"
)

// DefaultThreshold is the maximum normalized edit distance at which two
// transaction names are still considered a match. 0.3 tolerates minor
// punctuation and numbering differences ("STARBUCKS #123" vs
// "STARBUCKS #045") without matching unrelated names.
const DefaultThreshold = 0.3

// Match pairs a historical transaction with its similarity score.
// Lower scores are better; 0 is an exact match.
type Match struct {
	Transaction model.HistoricalTransaction
	Score       float64
}

type indexEntry struct {
	txn    model.HistoricalTransaction
	tokens []string
}

// Index is a searchable view over a user's classified history, keyed by
// transaction name. Indexes are cheap to rebuild and are expected to be
// reconstructed per batch, since confirmed classifications grow the
// corpus between runs.
type Index struct {
	entries   []indexEntry
	threshold float64
}

// NewIndex builds an index over the given history with DefaultThreshold.
func NewIndex(history []model.HistoricalTransaction) *Index {
	return NewIndexWithThreshold(history, DefaultThreshold)
}

// NewIndexWithThreshold builds an index with a custom match threshold.
func NewIndexWithThreshold(history []model.HistoricalTransaction, threshold float64) *Index {
	entries := make([]indexEntry, 0, len(history))
	for _, txn := range history {
		tokens := tokenize(txn.Name)
		if len(tokens) == 0 {
			continue
		}
		entries = append(entries, indexEntry{txn: txn, tokens: tokens})
	}
	return &Index{entries: entries, threshold: threshold}
}

// Search returns the historical transactions whose names approximately
// match the query, best first. An empty corpus or query yields an empty
// result, never an error.
func (ix *Index) Search(query string) []Match {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(ix.entries) == 0 {
		return nil
	}

	queryLen := 0
	for _, tok := range queryTokens {
		queryLen += len([]rune(tok))
	}

	var matches []Match
	for _, entry := range ix.entries {
		score := scoreTokens(queryTokens, queryLen, entry.tokens)
		if score <= ix.threshold {
			matches = append(matches, Match{Transaction: entry.txn, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score < matches[j].Score
	})
	return matches
}

// scoreTokens computes a token-based, edit-distance-normalized score:
// each query token contributes its minimum edit distance to any corpus
// token, and the sum is normalized by the query's total character
// length. Identical names score 0.
func scoreTokens(queryTokens []string, queryLen int, entryTokens []string) float64 {
	totalEdits := 0
	for _, qt := range queryTokens {
		best := len([]rune(qt))
		for _, et := range entryTokens {
			if d := levenshtein(qt, et); d < best {
				best = d
			}
			if best == 0 {
				break
			}
		}
		totalEdits += best
	}
	return float64(totalEdits) / float64(queryLen)
}

func tokenize(name string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(name)))
}

// levenshtein computes the edit distance between two strings using the
// standard two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
