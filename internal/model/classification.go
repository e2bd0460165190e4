package model

// Kind distinguishes the two classification targets.
type Kind string

// Classification kinds.
const (
	KindCategory Kind = "category"
	KindTaxCode  Kind = "tax_code"
)

// Source identifies which cascade stage produced a candidate. It doubles
// as a confidence proxy: Matching beats Database beats LLM.
type Source string

// Candidate sources, ordered from most to least confident.
const (
	SourceMatching Source = "Matching"
	SourceDatabase Source = "Database"
	SourceLLM      Source = "LLM"
)

// Confidence returns the rank of a source; lower is more confident.
func (s Source) Confidence() int {
	switch s {
	case SourceMatching:
		return 0
	case SourceDatabase:
		return 1
	case SourceLLM:
		return 2
	default:
		return 3
	}
}

// Classification is one entry of the allow-list currently valid for a
// company: an active expense account or a jurisdiction-appropriate tax
// code. The allow-list changes over time and is refreshed per run.
type Classification struct {
	Kind Kind
	ID   string
	Name string
}

// Candidate is a single ranked suggestion for a transaction. Slice order
// encodes rank: index 0 is the best suggestion.
type Candidate struct {
	Kind   Kind
	ID     string
	Name   string
	Source Source
}

// Record holds the merged per-transaction result. A nil slice means no
// stage produced a candidate for that kind (or, for tax codes, that the
// jurisdiction was not eligible).
type Record struct {
	Category []Candidate
	TaxCode  []Candidate
}
