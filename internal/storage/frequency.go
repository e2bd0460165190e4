package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgerworks/coriander/internal/match"
	"github.com/ledgerworks/coriander/internal/model"
)

// DefaultTopK is how many frequency candidates a lookup returns at most.
const DefaultTopK = 3

// TopCategories returns the categories most often confirmed for the
// exact transaction name, filtered to the current allow-list. The table
// is shared across companies, which is what makes cold-start matching
// possible. An unseen name yields an empty result, not an error.
func (s *SQLiteStorage) TopCategories(ctx context.Context, rawName string, valid []model.Classification, k int) ([]model.Candidate, error) {
	return s.topCandidates(ctx, rawName, valid, k, model.KindCategory,
		`SELECT cf.name, cf.use_count
		 FROM txn_names tn
		 JOIN txn_categories tc ON tc.txn_id = tn.id
		 JOIN category_freqs cf ON cf.id = tc.category_id
		 WHERE tn.name = ?
		 ORDER BY cf.use_count DESC, cf.name`)
}

// TopTaxCodes is the tax-code counterpart of TopCategories.
func (s *SQLiteStorage) TopTaxCodes(ctx context.Context, rawName string, valid []model.Classification, k int) ([]model.Candidate, error) {
	return s.topCandidates(ctx, rawName, valid, k, model.KindTaxCode,
		`SELECT tf.name, tf.use_count
		 FROM txn_names tn
		 JOIN txn_tax_codes tt ON tt.txn_id = tn.id
		 JOIN tax_code_freqs tf ON tf.id = tt.tax_code_id
		 WHERE tn.name = ?
		 ORDER BY tf.use_count DESC, tf.name`)
}

func (s *SQLiteStorage) topCandidates(ctx context.Context, rawName string, valid []model.Classification, k int, kind model.Kind, query string) ([]model.Candidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}

	// Allow-list lookup runs on normalized names so that conjunction
	// styling differences between stored and current labels still match.
	validByName := make(map[string]model.Classification, len(valid))
	for _, c := range valid {
		validByName[match.Normalize(c.Name)] = c
	}

	rows, err := s.db.QueryContext(ctx, query, rawName)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequency entries: %w", err)
	}
	defer rows.Close()

	candidates := make([]model.Candidate, 0, k)
	for rows.Next() {
		var name string
		var useCount int
		if err := rows.Scan(&name, &useCount); err != nil {
			return nil, fmt.Errorf("failed to scan frequency entry: %w", err)
		}

		// Stale or renamed classifications are silently dropped.
		current, ok := validByName[match.Normalize(name)]
		if !ok {
			continue
		}

		candidates = append(candidates, model.Candidate{
			Kind:   kind,
			ID:     current.ID,
			Name:   name,
			Source: model.SourceDatabase,
		})
		if len(candidates) == k {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frequency entries: %w", err)
	}

	slog.Debug("frequency lookup", "name", rawName, "kind", kind, "candidates", len(candidates))
	return candidates, nil
}
