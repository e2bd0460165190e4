// Package model defines the core types shared by the classification engine.
package model

import "time"

// ForReviewTransaction is a pending bank or credit-card transaction that
// still needs a category (and possibly a tax code) assigned.
type ForReviewTransaction struct {
	Date        time.Time
	ID          string
	RawName     string // name as reported by the bank feed
	DisplayName string // cleaned name shown to the user and the LLM
	AccountID   string
	Amount      float64
}

// Name returns the best available name for matching and prompting.
func (t ForReviewTransaction) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.RawName
}

// HistoricalTransaction is a previously classified transaction from the
// user's own history. It forms the corpus for approximate matching.
type HistoricalTransaction struct {
	Name        string
	Category    string
	TaxCodeName string
	Amount      float64
}

// Label returns the historical label for the given classification kind.
func (t HistoricalTransaction) Label(kind Kind) string {
	if kind == KindTaxCode {
		return t.TaxCodeName
	}
	return t.Category
}
