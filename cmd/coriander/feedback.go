package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgerworks/coriander/internal/config"
	"github.com/ledgerworks/coriander/internal/model"
	"github.com/ledgerworks/coriander/internal/storage"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Import confirmed classifications",
		Long: `Record user-confirmed classifications into the shared frequency
database and the match corpus.

The input is a JSON array of confirmed transactions:

  [{"name": "STARBUCKS #123", "category": "Meals", "taxCode": "", "amount": -4.50}]

Re-importing the same confirmations is safe; counters only move the
first time a pairing is seen.`,
		RunE: runFeedback,
	}

	cmd.Flags().StringP("input", "i", "", "confirmed classifications file (required)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	inputPath, _ := cmd.Flags().GetString("input")

	data, err := os.ReadFile(config.ExpandPath(inputPath))
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	var confirmed []historyJSON
	if err := json.Unmarshal(data, &confirmed); err != nil {
		return fmt.Errorf("failed to decode confirmed classifications: %w", err)
	}
	if len(confirmed) == 0 {
		slog.Info("Nothing to import")
		return nil
	}

	settings, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	bar := progressbar.NewOptions(len(confirmed),
		progressbar.OptionSetDescription("Importing confirmations"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for _, c := range confirmed {
		txn := model.HistoricalTransaction{
			Name:        c.Name,
			Category:    c.Category,
			TaxCodeName: c.TaxCode,
			Amount:      c.Amount,
		}
		if err := store.RecordConfirmed(ctx, txn); err != nil {
			return fmt.Errorf("failed to record %q: %w", c.Name, err)
		}
		_ = bar.Add(1)
	}

	slog.Info("✅ Imported confirmed classifications", "count", len(confirmed))
	return nil
}
