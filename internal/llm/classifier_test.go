package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerworks/coriander/internal/model"
)

type fakeContexts struct {
	mu          sync.Mutex
	entity      string
	snippets    []string
	webQueries  []string
	entityCalls int
}

func (f *fakeContexts) EntityContext(_ context.Context, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entityCalls++
	if f.entity == "" {
		return "No description available"
	}
	return f.entity
}

func (f *fakeContexts) WebContext(_ context.Context, query string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webQueries = append(f.webQueries, query)
	return f.snippets
}

func testValid() []model.Classification {
	return []model.Classification{
		{Kind: model.KindCategory, ID: "1", Name: "Meals"},
		{Kind: model.KindCategory, ID: "2", Name: "Office Supplies"},
	}
}

func TestClassifyBatch(t *testing.T) {
	txn := model.ForReviewTransaction{ID: "txn-1", RawName: "STAPLES #42", Amount: -31.20}
	company := model.CompanyInfo{Industry: "Software"}

	t.Run("confident answer resolves in one call", func(t *testing.T) {
		mock := NewMockClient("This looks like Office Supplies")
		contexts := &fakeContexts{entity: "Staples is an office supply retailer."}
		classifier := NewClassifierWithClient(mock, contexts, DefaultConfig(), nil)

		results := classifier.ClassifyBatch(context.Background(), []model.ForReviewTransaction{txn}, testValid(), company, model.KindCategory, nil)

		require.Len(t, results["txn-1"], 1)
		assert.Equal(t, "Office Supplies", results["txn-1"][0].Name)
		assert.Equal(t, model.SourceLLM, results["txn-1"][0].Source)
		assert.Equal(t, 1, mock.CallCount())
		assert.Empty(t, contexts.webQueries)

		calls := mock.Calls()
		require.Len(t, calls[0].Messages, 2)
		assert.Equal(t, "Description: Staples is an office supply retailer.", calls[0].Messages[0].Content)
		assert.Contains(t, calls[0].Messages[1].Content, `"STAPLES #42"`)
	})

	t.Run("uncertainty triggers one web grounded retry", func(t *testing.T) {
		mock := NewMockClient("None staples store what do they sell", "Office Supplies")
		contexts := &fakeContexts{snippets: []string{"Staples sells office products.", "Retail chain."}}
		classifier := NewClassifierWithClient(mock, contexts, DefaultConfig(), nil)

		results := classifier.ClassifyBatch(context.Background(), []model.ForReviewTransaction{txn}, testValid(), company, model.KindCategory, nil)

		require.Len(t, results["txn-1"], 1)
		assert.Equal(t, "Office Supplies", results["txn-1"][0].Name)
		assert.Equal(t, 2, mock.CallCount())
		require.Len(t, contexts.webQueries, 1)
		assert.Equal(t, "staples store what do they sell", contexts.webQueries[0])

		// The retry must carry the full conversation plus the web turn.
		calls := mock.Calls()
		require.Len(t, calls[1].Messages, 4)
		assert.Equal(t, RoleAssistant, calls[1].Messages[2].Role)
		assert.Equal(t, "None staples store what do they sell", calls[1].Messages[2].Content)
		assert.True(t, strings.HasPrefix(calls[1].Messages[3].Content, "Here is some additional information from the web: "))
		assert.Contains(t, calls[1].Messages[3].Content, "Staples sells office products.")
	})

	t.Run("empty web results leave the transaction unresolved", func(t *testing.T) {
		mock := NewMockClient("None obscure merchant xyz")
		contexts := &fakeContexts{}
		classifier := NewClassifierWithClient(mock, contexts, DefaultConfig(), nil)

		results := classifier.ClassifyBatch(context.Background(), []model.ForReviewTransaction{txn}, testValid(), company, model.KindCategory, nil)

		assert.Empty(t, results["txn-1"])
		assert.Equal(t, 1, mock.CallCount(), "no retry without grounding")
	})

	t.Run("provider error yields empty result without aborting the batch", func(t *testing.T) {
		mock := &MockClient{Err: errors.New("rate limited")}
		classifier := NewClassifierWithClient(mock, &fakeContexts{}, DefaultConfig(), nil)

		txns := []model.ForReviewTransaction{txn, {ID: "txn-2", RawName: "OTHER", Amount: 1}}
		results := classifier.ClassifyBatch(context.Background(), txns, testValid(), company, model.KindCategory, nil)

		assert.Len(t, results, 2)
		assert.Empty(t, results["txn-1"])
		assert.Empty(t, results["txn-2"])
	})

	t.Run("predicted category flows into tax code prompt", func(t *testing.T) {
		mock := NewMockClient("Standard")
		classifier := NewClassifierWithClient(mock, &fakeContexts{}, DefaultConfig(), nil)

		taxCodes := []model.Classification{{Kind: model.KindTaxCode, ID: "t1", Name: "Standard"}}
		predicted := map[string][]model.Candidate{
			"txn-1": {{Kind: model.KindCategory, ID: "2", Name: "Office Supplies", Source: model.SourceMatching}},
		}
		caCompany := model.CompanyInfo{
			Industry: "Software",
			Location: model.Location{Country: "CA", SubRegion: "Ontario"},
		}

		results := classifier.ClassifyBatch(context.Background(), []model.ForReviewTransaction{txn}, taxCodes, caCompany, model.KindTaxCode, predicted)

		require.Len(t, results["txn-1"], 1)
		assert.Equal(t, model.KindTaxCode, results["txn-1"][0].Kind)

		calls := mock.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Messages[1].Content, "categorized as Office Supplies")
		assert.Contains(t, calls[0].Messages[1].Content, "Ontario, CA")
	})

	t.Run("empty inputs short circuit", func(t *testing.T) {
		mock := NewMockClient()
		classifier := NewClassifierWithClient(mock, &fakeContexts{}, DefaultConfig(), nil)

		assert.Empty(t, classifier.ClassifyBatch(context.Background(), nil, testValid(), company, model.KindCategory, nil))
		assert.Empty(t, classifier.ClassifyBatch(context.Background(), []model.ForReviewTransaction{txn}, nil, company, model.KindCategory, nil))
		assert.Equal(t, 0, mock.CallCount())
	})

	t.Run("large batch classifies every transaction", func(t *testing.T) {
		mock := NewMockClient("Meals")
		classifier := NewClassifierWithClient(mock, &fakeContexts{}, Config{MaxConcurrency: 3}, nil)

		var txns []model.ForReviewTransaction
		for i := 0; i < 12; i++ {
			txns = append(txns, model.ForReviewTransaction{
				ID:      "txn-" + string(rune('a'+i)),
				RawName: "CAFE",
				Amount:  5,
			})
		}

		results := classifier.ClassifyBatch(context.Background(), txns, testValid(), company, model.KindCategory, nil)

		assert.Len(t, results, 12)
		for _, txn := range txns {
			require.Len(t, results[txn.ID], 1, "txn %s", txn.ID)
			assert.Equal(t, "Meals", results[txn.ID][0].Name)
		}
		assert.Equal(t, 12, mock.CallCount())
	})
}

func TestNewClassifier(t *testing.T) {
	t.Run("rejects unknown provider", func(t *testing.T) {
		_, err := NewClassifier(Config{Provider: "carrier-pigeon", APIKey: "k"}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})

	t.Run("anthropic requires an API key", func(t *testing.T) {
		_, err := NewClassifier(Config{Provider: "anthropic"}, nil, nil)
		require.Error(t, err)
	})
}
