package enrich

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/kgsearch/v1"
	"google.golang.org/api/option"
)

// entityTypes restricts knowledge-graph lookups to the kinds of
// entities that appear on bank statements.
var entityTypes = []string{"Organization", "Corporation", "LocalBusiness"}

// KnowledgeGraphSearcher implements KnowledgeSearcher on the Google
// Knowledge Graph Search API.
type KnowledgeGraphSearcher struct {
	svc *kgsearch.Service
}

// NewKnowledgeGraphSearcher creates a Knowledge Graph client using an
// API key.
func NewKnowledgeGraphSearcher(ctx context.Context, apiKey string) (*KnowledgeGraphSearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("knowledge graph API key cannot be empty")
	}
	svc, err := kgsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge graph service: %w", err)
	}
	return &KnowledgeGraphSearcher{svc: svc}, nil
}

// SearchEntities looks up the query and returns scored entity hits.
func (k *KnowledgeGraphSearcher) SearchEntities(ctx context.Context, query string) ([]EntityResult, error) {
	resp, err := k.svc.Entities.Search().
		Query(query).
		Types(entityTypes...).
		Limit(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("knowledge graph search failed: %w", err)
	}

	// The API exposes itemListElement as untyped JSON-LD; pull out the
	// name, score and detailed description by hand.
	results := make([]EntityResult, 0, len(resp.ItemListElement))
	for _, raw := range resp.ItemListElement {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		var er EntityResult
		if score, ok := item["resultScore"].(float64); ok {
			er.Score = score
		}
		result, ok := item["result"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := result["name"].(string); ok {
			er.Name = name
		}
		if dd, ok := result["detailedDescription"].(map[string]any); ok {
			if body, ok := dd["articleBody"].(string); ok {
				er.Description = body
			}
		}
		results = append(results, er)
	}
	return results, nil
}

// CustomSearcher implements WebSearcher on the Google Custom Search API.
type CustomSearcher struct {
	svc      *customsearch.Service
	engineID string
}

// NewCustomSearcher creates a Custom Search client using an API key and
// search engine ID.
func NewCustomSearcher(ctx context.Context, apiKey, engineID string) (*CustomSearcher, error) {
	if apiKey == "" || engineID == "" {
		return nil, fmt.Errorf("custom search API key and engine ID cannot be empty")
	}
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}
	return &CustomSearcher{svc: svc, engineID: engineID}, nil
}

// Search returns result snippets for the query, capped at limit.
func (c *CustomSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	resp, err := c.svc.Cse.List().
		Cx(c.engineID).
		Q(query).
		Num(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("custom search failed: %w", err)
	}

	snippets := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet != "" {
			snippets = append(snippets, item.Snippet)
		}
	}
	return snippets, nil
}
