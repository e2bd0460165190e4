// Package enrich fetches external context used to ground LLM prompts:
// knowledge-base entity descriptions and, on demand, web-search snippets.
package enrich

import (
	"context"
	"log/slog"
	"time"
)

// NoDescription is returned when no usable entity description exists,
// so prompt templating never has to handle an empty context turn.
const NoDescription = "No description available"

// DefaultScoreThreshold is the minimum knowledge-base relevance score
// (on the provider's native scale) for a description to be trusted.
const DefaultScoreThreshold = 10

// DefaultMaxWebResults caps how many web-search snippets are fetched.
const DefaultMaxWebResults = 3

// EntityResult is one knowledge-base hit.
type EntityResult struct {
	Name        string
	Description string
	Score       float64
}

// KnowledgeSearcher looks up entities in a structured knowledge base.
type KnowledgeSearcher interface {
	SearchEntities(ctx context.Context, query string) ([]EntityResult, error)
}

// WebSearcher performs a capped text web search and returns snippets.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Config holds enricher settings.
type Config struct {
	ScoreThreshold   float64
	MaxWebResults    int
	Timeout          time.Duration
	WebSearchEnabled bool
}

// DefaultConfig returns the default enricher configuration.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold:   DefaultScoreThreshold,
		MaxWebResults:    DefaultMaxWebResults,
		Timeout:          10 * time.Second,
		WebSearchEnabled: true,
	}
}

// Enricher combines the two context sources behind degrade-to-empty
// semantics: provider failures and timeouts never escalate, they just
// produce less grounding.
type Enricher struct {
	kb     KnowledgeSearcher
	web    WebSearcher
	logger *slog.Logger
	cfg    Config
}

// New creates an enricher. Either searcher may be nil, in which case the
// corresponding context source is simply absent.
func New(kb KnowledgeSearcher, web WebSearcher, cfg Config, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.MaxWebResults <= 0 {
		cfg.MaxWebResults = DefaultMaxWebResults
	}
	return &Enricher{kb: kb, web: web, cfg: cfg, logger: logger}
}

// EntityContext returns a short description of the named entity from
// the knowledge base, or NoDescription when nothing sufficiently
// relevant is found. It never returns an empty string.
func (e *Enricher) EntityContext(ctx context.Context, name string) string {
	if e.kb == nil || name == "" {
		return NoDescription
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	results, err := e.kb.SearchEntities(ctx, name)
	if err != nil {
		e.logger.Warn("knowledge base lookup failed", "name", name, "error", err)
		return NoDescription
	}

	best := ""
	bestScore := e.cfg.ScoreThreshold
	for _, r := range results {
		if r.Score > bestScore && r.Description != "" {
			best = r.Description
			bestScore = r.Score
		}
	}
	if best == "" {
		return NoDescription
	}
	return best
}

// WebContext returns up to MaxWebResults search snippets for the query.
// It returns nil on any failure or when web search is disabled; callers
// treat that as "no additional grounding", not as an error.
func (e *Enricher) WebContext(ctx context.Context, query string) []string {
	if !e.cfg.WebSearchEnabled || e.web == nil || query == "" {
		return nil
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	snippets, err := e.web.Search(ctx, query, e.cfg.MaxWebResults)
	if err != nil {
		e.logger.Warn("web search failed", "query", query, "error", err)
		return nil
	}
	if len(snippets) > e.cfg.MaxWebResults {
		snippets = snippets[:e.cfg.MaxWebResults]
	}
	return snippets
}

func (e *Enricher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Timeout)
}
