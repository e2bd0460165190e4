package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerworks/coriander/internal/common"
	"github.com/ledgerworks/coriander/internal/config"
	"github.com/ledgerworks/coriander/internal/engine"
	"github.com/ledgerworks/coriander/internal/enrich"
	"github.com/ledgerworks/coriander/internal/llm"
	"github.com/ledgerworks/coriander/internal/model"
	"github.com/ledgerworks/coriander/internal/storage"
	"github.com/ledgerworks/coriander/internal/subscription"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a batch of transactions",
		Long: `Read a classification request as JSON, run the cascade and write the
per-transaction suggestions as JSON.

The request carries the pending transactions, the company profile, the
currently valid categories and tax codes, and any classifications the
user confirmed since the last run.`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("input", "i", "-", "request file ('-' for stdin)")
	cmd.Flags().StringP("output", "o", "-", "result file ('-' for stdout)")

	return cmd
}

// Wire types for the classify request and response.
type classifyRequest struct {
	Company      companyJSON          `json:"company"`
	Categories   []classificationJSON `json:"categories"`
	TaxCodes     []classificationJSON `json:"taxCodes"`
	History      []historyJSON        `json:"history"`
	Transactions []transactionJSON    `json:"transactions"`
}

type companyJSON struct {
	Industry string `json:"industry"`
	Location struct {
		Country   string `json:"country"`
		SubRegion string `json:"subRegion"`
	} `json:"location"`
}

type classificationJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type historyJSON struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	TaxCode  string  `json:"taxCode"`
	Amount   float64 `json:"amount"`
}

type transactionJSON struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	AccountID   string  `json:"accountId"`
	Amount      float64 `json:"amount"`
}

type candidateJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

type recordJSON struct {
	Category []candidateJSON `json:"category"`
	TaxCode  []candidateJSON `json:"taxCode"`
}

type classifyResponse struct {
	Results map[string]recordJSON `json:"results"`
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")

	request, err := readRequest(inputPath)
	if err != nil {
		return err
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

	eng, err := buildEngine(ctx, settings, store)
	if err != nil {
		return err
	}

	batch, err := buildBatch(ctx, request, store)
	if err != nil {
		return err
	}

	slog.Info("🌿 Classifying transactions",
		"transactions", len(batch.ForReview),
		"history", len(batch.History),
		"categories", len(batch.Categories),
		"tax_codes", len(batch.TaxCodes))

	results, err := eng.Classify(ctx, batch)
	if err != nil {
		return err
	}

	return writeResponse(outputPath, results)
}

func buildEngine(ctx context.Context, settings config.Settings, store *storage.SQLiteStorage) (*engine.Engine, error) {
	if settings.AnthropicAPIKey == "" {
		return nil, common.NewUserError("anthropic API key is not configured", common.ErrMissingConfig)
	}

	var checker engine.SubscriptionChecker
	if settings.SubscriptionEndpoint != "" {
		httpChecker, err := subscription.NewChecker(settings.SubscriptionEndpoint, nil)
		if err != nil {
			return nil, err
		}
		checker = httpChecker
	} else {
		// Self-hosted deployments run without a billing service.
		checker = subscription.StaticChecker{IsValid: true}
	}

	enricher, err := buildEnricher(ctx, settings)
	if err != nil {
		return nil, err
	}

	classifier, err := llm.NewClassifier(llm.Config{
		Provider:       "anthropic",
		APIKey:         settings.AnthropicAPIKey,
		Model:          settings.AnthropicModel,
		MaxConcurrency: settings.MaxConcurrency,
		RequestTimeout: settings.RequestTimeout,
	}, enricher, nil)
	if err != nil {
		return nil, err
	}

	return engine.New(store, store, checker, classifier, nil), nil
}

func buildEnricher(ctx context.Context, settings config.Settings) (*enrich.Enricher, error) {
	var kb enrich.KnowledgeSearcher
	if settings.GoogleAPIKey != "" {
		searcher, err := enrich.NewKnowledgeGraphSearcher(ctx, settings.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		kb = searcher
	}

	var web enrich.WebSearcher
	if settings.GoogleAPIKey != "" && settings.GoogleSearchEngineID != "" {
		searcher, err := enrich.NewCustomSearcher(ctx, settings.GoogleAPIKey, settings.GoogleSearchEngineID)
		if err != nil {
			return nil, err
		}
		web = searcher
	}

	cfg := enrich.DefaultConfig()
	cfg.WebSearchEnabled = settings.WebSearchEnabled
	return enrich.New(kb, web, cfg, nil), nil
}

// buildBatch converts the wire request into an engine batch, folding the
// stored match corpus into the request-provided history. Re-recording
// stored entries is an idempotent no-op.
func buildBatch(ctx context.Context, request classifyRequest, store *storage.SQLiteStorage) (engine.Batch, error) {
	stored, err := store.History(ctx)
	if err != nil {
		return engine.Batch{}, fmt.Errorf("failed to load stored history: %w", err)
	}

	history := stored
	for _, h := range request.History {
		history = append(history, model.HistoricalTransaction{
			Name:        h.Name,
			Category:    h.Category,
			TaxCodeName: h.TaxCode,
			Amount:      h.Amount,
		})
	}

	transactions := make([]model.ForReviewTransaction, 0, len(request.Transactions))
	for _, t := range request.Transactions {
		txn := model.ForReviewTransaction{
			ID:          t.ID,
			RawName:     t.Name,
			DisplayName: t.DisplayName,
			AccountID:   t.AccountID,
			Amount:      t.Amount,
		}
		if t.Date != "" {
			date, err := parseDate(t.Date)
			if err != nil {
				return engine.Batch{}, fmt.Errorf("transaction %s: %w", t.ID, err)
			}
			txn.Date = date
		}
		transactions = append(transactions, txn)
	}

	return engine.Batch{
		ForReview:  transactions,
		History:    history,
		Company:    companyFromJSON(request.Company),
		Categories: classificationsFromJSON(request.Categories, model.KindCategory),
		TaxCodes:   classificationsFromJSON(request.TaxCodes, model.KindTaxCode),
	}, nil
}

func companyFromJSON(c companyJSON) model.CompanyInfo {
	return model.CompanyInfo{
		Industry: c.Industry,
		Location: model.Location{
			Country:   c.Location.Country,
			SubRegion: c.Location.SubRegion,
		},
	}
}

func classificationsFromJSON(items []classificationJSON, kind model.Kind) []model.Classification {
	out := make([]model.Classification, 0, len(items))
	for _, item := range items {
		out = append(out, model.Classification{Kind: kind, ID: item.ID, Name: item.Name})
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if date, err := time.Parse(layout, s); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

func readRequest(path string) (classifyRequest, error) {
	var request classifyRequest

	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(config.ExpandPath(path))
		if err != nil {
			return request, fmt.Errorf("failed to open request file: %w", err)
		}
		defer func() { _ = file.Close() }()
		reader = file
	}

	if err := json.NewDecoder(reader).Decode(&request); err != nil {
		return request, fmt.Errorf("failed to decode request: %w", err)
	}
	return request, nil
}

func writeResponse(path string, results map[string]model.Record) error {
	response := classifyResponse{Results: make(map[string]recordJSON, len(results))}
	for id, record := range results {
		response.Results[id] = recordJSON{
			Category: candidatesToJSON(record.Category),
			TaxCode:  candidatesToJSON(record.TaxCode),
		}
	}

	var writer io.Writer
	if path == "-" {
		writer = os.Stdout
	} else {
		file, err := os.Create(config.ExpandPath(path))
		if err != nil {
			return fmt.Errorf("failed to create result file: %w", err)
		}
		defer func() { _ = file.Close() }()
		writer = file
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// candidatesToJSON keeps nil slices nil so unresolved fields serialize
// as null rather than [].
func candidatesToJSON(candidates []model.Candidate) []candidateJSON {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateJSON{
			ID:     c.ID,
			Name:   c.Name,
			Source: string(c.Source),
		})
	}
	return out
}
