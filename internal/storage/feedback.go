package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerworks/coriander/internal/model"
)

// RecordConfirmed persists a user-confirmed classification: it links the
// transaction name to its category and tax code in the shared frequency
// tables and appends the transaction to the match-corpus history.
//
// Counters only move when a link is first created, so re-confirming the
// same pair never double-counts.
func (s *SQLiteStorage) RecordConfirmed(ctx context.Context, txn model.HistoricalTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if txn.Name == "" {
		return fmt.Errorf("transaction name cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nameID, err := findOrCreate(ctx, tx,
		`SELECT id FROM txn_names WHERE name = ?`,
		`INSERT INTO txn_names (name) VALUES (?)`,
		txn.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction name: %w", err)
	}

	anyNewLink := false

	if txn.Category != "" {
		created, err := s.linkClassification(ctx, tx, nameID, txn.Category, "category_freqs", "txn_categories", "category_id")
		if err != nil {
			return fmt.Errorf("failed to record category: %w", err)
		}
		anyNewLink = anyNewLink || created
	}

	if txn.TaxCodeName != "" {
		created, err := s.linkClassification(ctx, tx, nameID, txn.TaxCodeName, "tax_code_freqs", "txn_tax_codes", "tax_code_id")
		if err != nil {
			return fmt.Errorf("failed to record tax code: %w", err)
		}
		anyNewLink = anyNewLink || created
	}

	// Grow the approximate-match corpus only for genuinely new
	// confirmations, so repeated saves don't skew future matching.
	if anyNewLink {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history (name, amount, category, tax_code) VALUES (?, ?, ?, ?)`,
			txn.Name, txn.Amount, txn.Category, txn.TaxCodeName); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation: %w", err)
	}

	slog.Debug("recorded confirmed classification",
		"name", txn.Name,
		"category", txn.Category,
		"tax_code", txn.TaxCodeName,
		"new_link", anyNewLink)
	return nil
}

// RecordBatch records a slice of confirmed classifications, stopping at
// the first failure.
func (s *SQLiteStorage) RecordBatch(ctx context.Context, txns []model.HistoricalTransaction) error {
	for _, txn := range txns {
		if err := s.RecordConfirmed(ctx, txn); err != nil {
			return err
		}
	}
	return nil
}

// linkClassification find-or-creates the classification row and the
// (name, classification) link. The use counter increments only when the
// link did not exist before; it reports whether a new link was created.
func (s *SQLiteStorage) linkClassification(ctx context.Context, tx *sql.Tx, nameID int64, label, freqTable, linkTable, linkColumn string) (bool, error) {
	classID, err := findOrCreate(ctx, tx,
		fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, freqTable),
		fmt.Sprintf(`INSERT INTO %s (name, use_count) VALUES (?, 0)`, freqTable),
		label)
	if err != nil {
		return false, err
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE txn_id = ? AND %s = ?`, linkTable, linkColumn),
		nameID, classID).Scan(&exists)
	switch {
	case err == nil:
		// Relationship already recorded; idempotent no-op.
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		// Fall through and create the link.
	default:
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (txn_id, %s) VALUES (?, ?)`, linkTable, linkColumn),
		nameID, classID); err != nil {
		return false, fmt.Errorf("failed to create relationship: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET use_count = use_count + 1 WHERE id = ?`, freqTable),
		classID); err != nil {
		return false, fmt.Errorf("failed to increment use count: %w", err)
	}

	return true, nil
}

// History returns the stored match corpus, oldest first.
func (s *SQLiteStorage) History(ctx context.Context) ([]model.HistoricalTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, amount, category, COALESCE(tax_code, '') FROM history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []model.HistoricalTransaction
	for rows.Next() {
		var txn model.HistoricalTransaction
		if err := rows.Scan(&txn.Name, &txn.Amount, &txn.Category, &txn.TaxCodeName); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

func findOrCreate(ctx context.Context, tx *sql.Tx, selectQuery, insertQuery, value string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectQuery, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, insertQuery, value)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
