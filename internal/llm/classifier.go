package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ledgerworks/coriander/internal/model"
)

// ContextProvider supplies external grounding for prompts. Both methods
// degrade to "no grounding" rather than erroring.
type ContextProvider interface {
	EntityContext(ctx context.Context, name string) string
	WebContext(ctx context.Context, query string) []string
}

// Config holds configuration for the LLM classifier. It is passed at
// construction and never mutated, so tests can substitute a fake
// provider without touching globals.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	MaxConcurrency int
	RequestTimeout time.Duration
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		Provider:       "anthropic",
		MaxConcurrency: 5,
		RequestTimeout: 30 * time.Second,
	}
}

// Classifier is the cascade's LLM stage.
type Classifier struct {
	client   Client
	contexts ContextProvider
	logger   *slog.Logger
	cfg      Config
}

// NewClassifier creates a classifier backed by the configured provider.
func NewClassifier(cfg Config, contexts ContextProvider, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "anthropic", "":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return NewClassifierWithClient(client, contexts, cfg, logger), nil
}

// NewClassifierWithClient creates a classifier around an existing
// client. Tests use this to inject a mock provider.
func NewClassifierWithClient(client Client, contexts ContextProvider, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Classifier{
		client:   client,
		contexts: contexts,
		logger:   logger,
		cfg:      cfg,
	}
}

// ClassifyBatch classifies every transaction against the valid
// allow-list for the given kind. Transactions fan out concurrently under
// a bounded worker limit; a failure on one transaction yields an empty
// candidate list for it and never aborts the rest of the batch.
//
// predicted carries the already-classified categories keyed by
// transaction ID; tax-code prompts embed the top prediction when present.
func (c *Classifier) ClassifyBatch(ctx context.Context, txns []model.ForReviewTransaction, valid []model.Classification, company model.CompanyInfo, kind model.Kind, predicted map[string][]model.Candidate) map[string][]model.Candidate {
	results := make(map[string][]model.Candidate, len(txns))
	if len(txns) == 0 || len(valid) == 0 {
		return results
	}

	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = v.Name
	}

	candidateLists := make([][]model.Candidate, len(txns))
	sem := make(chan struct{}, c.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i, txn := range txns {
		wg.Add(1)
		go func(idx int, txn model.ForReviewTransaction) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			predictedCategory := ""
			if cats := predicted[txn.ID]; len(cats) > 0 {
				predictedCategory = cats[0].Name
			}

			candidateLists[idx] = c.classifyOne(ctx, txn, names, valid, company, kind, predictedCategory)
		}(i, txn)
	}
	wg.Wait()

	for i, txn := range txns {
		results[txn.ID] = candidateLists[i]
	}
	return results
}

// classifyOne runs the two-turn conversation for a single transaction
// and, when the model signals uncertainty, a single web-grounded retry.
func (c *Classifier) classifyOne(ctx context.Context, txn model.ForReviewTransaction, names []string, valid []model.Classification, company model.CompanyInfo, kind model.Kind, predictedCategory string) []model.Candidate {
	prompt := buildPrompt(txn, names, company, kind, predictedCategory)
	system := systemInstructions(kind)

	description := c.entityContext(ctx, txn.Name())

	messages := []Message{
		{Role: RoleUser, Content: "Description: " + description},
		{Role: RoleUser, Content: prompt},
	}

	answer, err := c.complete(ctx, system, messages)
	if err != nil {
		c.logger.Warn("LLM classification failed",
			"transaction_id", txn.ID,
			"kind", kind,
			"error", err)
		return nil
	}

	if strings.HasPrefix(answer, uncertaintyMarker) {
		query := strings.TrimSpace(strings.TrimPrefix(answer, uncertaintyMarker))
		snippets := c.webSnippets(ctx, query)
		if len(snippets) == 0 {
			// No grounding to be had; leave the transaction unresolved
			// rather than retrying indefinitely.
			c.logger.Debug("model uncertain and web search empty",
				"transaction_id", txn.ID,
				"query", query)
			return nil
		}

		messages = append(messages,
			Message{Role: RoleAssistant, Content: answer},
			Message{Role: RoleUser, Content: "Here is some additional information from the web: " + strings.Join(snippets, " ")},
		)

		answer, err = c.complete(ctx, system, messages)
		if err != nil {
			c.logger.Warn("LLM retry with web context failed",
				"transaction_id", txn.ID,
				"error", err)
			return nil
		}
	}

	return extractCandidates(answer, valid, kind)
}

func (c *Classifier) complete(ctx context.Context, system string, messages []Message) (string, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.client.Complete(ctx, system, messages)
}

func (c *Classifier) webSnippets(ctx context.Context, query string) []string {
	if c.contexts == nil || query == "" {
		return nil
	}
	return c.contexts.WebContext(ctx, query)
}

func (c *Classifier) entityContext(ctx context.Context, name string) string {
	if c.contexts == nil {
		return "No description available"
	}
	return c.contexts.EntityContext(ctx, name)
}
