package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerworks/coriander/internal/common"
	"github.com/ledgerworks/coriander/internal/model"
)

type fakeFrequencies struct {
	categories map[string][]model.Candidate
	taxCodes   map[string][]model.Candidate
	err        error
	calls      int
}

func (f *fakeFrequencies) TopCategories(_ context.Context, name string, _ []model.Classification, _ int) ([]model.Candidate, error) {
	f.calls++
	return f.categories[name], f.err
}

func (f *fakeFrequencies) TopTaxCodes(_ context.Context, name string, _ []model.Classification, _ int) ([]model.Candidate, error) {
	f.calls++
	return f.taxCodes[name], f.err
}

type fakeFeedback struct {
	recorded []model.HistoricalTransaction
	err      error
}

func (f *fakeFeedback) RecordBatch(_ context.Context, txns []model.HistoricalTransaction) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, txns...)
	return nil
}

type fakeSubscription struct {
	valid bool
	err   error
}

func (f *fakeSubscription) Valid(_ context.Context) (bool, error) {
	return f.valid, f.err
}

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string][]model.Candidate
	calls   int
	kinds   []model.Kind
}

func (f *fakeClassifier) ClassifyBatch(_ context.Context, txns []model.ForReviewTransaction, _ []model.Classification, _ model.CompanyInfo, kind model.Kind, _ map[string][]model.Candidate) map[string][]model.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.kinds = append(f.kinds, kind)

	out := make(map[string][]model.Candidate, len(txns))
	for _, txn := range txns {
		out[txn.ID] = f.results[txn.ID]
	}
	return out
}

func categories() []model.Classification {
	return []model.Classification{
		{Kind: model.KindCategory, ID: "c1", Name: "Meals"},
		{Kind: model.KindCategory, ID: "c2", Name: "Office Supplies"},
		{Kind: model.KindCategory, ID: "c3", Name: "Dues & Subscriptions"},
	}
}

func taxCodes() []model.Classification {
	return []model.Classification{
		{Kind: model.KindTaxCode, ID: "t1", Name: "Standard"},
		{Kind: model.KindTaxCode, ID: "t2", Name: "Zero-rated"},
	}
}

func newTestEngine(freq *fakeFrequencies, feedback *fakeFeedback, subs *fakeSubscription, classifier *fakeClassifier) *Engine {
	return New(freq, feedback, subs, classifier, nil)
}

func TestClassifyMatchStage(t *testing.T) {
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "STARBUCKS #123", Amount: -4.50},
		},
		History: []model.HistoricalTransaction{
			{Name: "STARBUCKS #045", Category: "Meals", Amount: -5.00},
		},
		Categories: categories(),
	}

	classifier := &fakeClassifier{}
	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, classifier)

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	record := results["txn-1"]
	require.Len(t, record.Category, 1)
	assert.Equal(t, "Meals", record.Category[0].Name)
	assert.Equal(t, "c1", record.Category[0].ID)
	assert.Equal(t, model.SourceMatching, record.Category[0].Source)
	assert.Nil(t, record.TaxCode)
	assert.Equal(t, 0, classifier.calls, "match stage should satisfy the cascade")
}

func TestClassifyAmountDisambiguation(t *testing.T) {
	// Same merchant name confirmed under two categories; the one whose
	// historical average sits closer to the new amount must rank first.
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "COSTCO #77", Amount: 18.00},
		},
		History: []model.HistoricalTransaction{
			{Name: "COSTCO #77", Category: "Meals", Amount: 10.00},
			{Name: "COSTCO #77", Category: "Meals", Amount: 30.00},
			{Name: "COSTCO #77", Category: "Office Supplies", Amount: 15.00},
		},
		Categories: categories(),
	}

	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	record := results["txn-1"]
	require.Len(t, record.Category, 2)
	assert.Equal(t, "Meals", record.Category[0].Name, "avg 20 is 2 away from 18, avg 15 is 3 away")
	assert.Equal(t, "Office Supplies", record.Category[1].Name)
}

func TestClassifyFrequencyStage(t *testing.T) {
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "ZOOM.US 888-799-9666", Amount: -15.99},
		},
		Categories: categories(),
	}

	freq := &fakeFrequencies{
		categories: map[string][]model.Candidate{
			"ZOOM.US 888-799-9666": {
				{Kind: model.KindCategory, ID: "c3", Name: "Dues & Subscriptions", Source: model.SourceDatabase},
			},
		},
	}
	classifier := &fakeClassifier{}
	engine := newTestEngine(freq, &fakeFeedback{}, &fakeSubscription{valid: true}, classifier)

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	record := results["txn-1"]
	require.Len(t, record.Category, 1)
	assert.Equal(t, model.SourceDatabase, record.Category[0].Source)
	assert.Equal(t, 0, classifier.calls)
}

func TestClassifyLLMStage(t *testing.T) {
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "UNKNOWN VENDOR LLC", Amount: -120.00},
		},
		Categories: categories(),
	}

	classifier := &fakeClassifier{
		results: map[string][]model.Candidate{
			"txn-1": {{Kind: model.KindCategory, ID: "c2", Name: "Office Supplies", Source: model.SourceLLM}},
		},
	}
	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, classifier)

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	record := results["txn-1"]
	require.Len(t, record.Category, 1)
	assert.Equal(t, model.SourceLLM, record.Category[0].Source)
	assert.Equal(t, 1, classifier.calls)
}

func TestClassifyConfidenceOrdering(t *testing.T) {
	// Three transactions, one per stage. Each must resolve at its own
	// stage and carry that stage's source.
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "by-match", RawName: "STARBUCKS #123", Amount: -4.50},
			{ID: "by-freq", RawName: "ZOOM.US", Amount: -15.99},
			{ID: "by-llm", RawName: "UNKNOWN VENDOR", Amount: -99.00},
		},
		History: []model.HistoricalTransaction{
			{Name: "STARBUCKS #045", Category: "Meals", Amount: -5.00},
		},
		Categories: categories(),
	}

	freq := &fakeFrequencies{
		categories: map[string][]model.Candidate{
			"ZOOM.US": {{Kind: model.KindCategory, ID: "c3", Name: "Dues & Subscriptions", Source: model.SourceDatabase}},
		},
	}
	classifier := &fakeClassifier{
		results: map[string][]model.Candidate{
			"by-llm": {{Kind: model.KindCategory, ID: "c2", Name: "Office Supplies", Source: model.SourceLLM}},
		},
	}
	engine := newTestEngine(freq, &fakeFeedback{}, &fakeSubscription{valid: true}, classifier)

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, model.SourceMatching, results["by-match"].Category[0].Source)
	assert.Equal(t, model.SourceDatabase, results["by-freq"].Category[0].Source)
	assert.Equal(t, model.SourceLLM, results["by-llm"].Category[0].Source)

	for _, record := range results {
		for _, c := range record.Category {
			assert.LessOrEqual(t, c.Source.Confidence(), model.SourceLLM.Confidence())
		}
	}
}

func TestClassifySubscriptionGate(t *testing.T) {
	batch := Batch{
		ForReview:  []model.ForReviewTransaction{{ID: "txn-1", RawName: "ANY", Amount: 1}},
		Categories: categories(),
	}

	t.Run("invalid subscription aborts before any classification", func(t *testing.T) {
		classifier := &fakeClassifier{}
		freq := &fakeFrequencies{}
		engine := newTestEngine(freq, &fakeFeedback{}, &fakeSubscription{valid: false}, classifier)

		results, err := engine.Classify(context.Background(), batch)
		require.ErrorIs(t, err, common.ErrSubscriptionInvalid)
		assert.Nil(t, results)
		assert.Equal(t, 0, classifier.calls)
		assert.Equal(t, 0, freq.calls)
	})

	t.Run("check failure surfaces as a distinct error", func(t *testing.T) {
		subs := &fakeSubscription{err: errors.New("connection refused")}
		engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, subs, &fakeClassifier{})

		_, err := engine.Classify(context.Background(), batch)
		require.ErrorIs(t, err, common.ErrSubscriptionCheck)
		assert.NotErrorIs(t, err, common.ErrSubscriptionInvalid)
	})
}

func TestClassifyHistoryPersistence(t *testing.T) {
	history := []model.HistoricalTransaction{
		{Name: "STARBUCKS #045", Category: "Meals", Amount: -5.00},
	}
	batch := Batch{
		ForReview:  []model.ForReviewTransaction{{ID: "txn-1", RawName: "STARBUCKS #123", Amount: -4.50}},
		History:    history,
		Categories: categories(),
	}

	t.Run("history is recorded before classification", func(t *testing.T) {
		feedback := &fakeFeedback{}
		engine := newTestEngine(&fakeFrequencies{}, feedback, &fakeSubscription{valid: true}, &fakeClassifier{})

		_, err := engine.Classify(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, history, feedback.recorded)
	})

	t.Run("persistence failure aborts the run", func(t *testing.T) {
		feedback := &fakeFeedback{err: errors.New("disk full")}
		engine := newTestEngine(&fakeFrequencies{}, feedback, &fakeSubscription{valid: true}, &fakeClassifier{})

		_, err := engine.Classify(context.Background(), batch)
		require.ErrorIs(t, err, common.ErrHistorySave)
	})
}

func TestClassifyTaxCodeGating(t *testing.T) {
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "STARBUCKS #123", Amount: -4.50},
		},
		History: []model.HistoricalTransaction{
			{Name: "STARBUCKS #045", Category: "Meals", TaxCodeName: "Standard", Amount: -5.00},
		},
		Categories: categories(),
		TaxCodes:   taxCodes(),
	}

	t.Run("eligible jurisdiction classifies tax codes", func(t *testing.T) {
		eligible := batch
		eligible.Company = model.CompanyInfo{Location: model.Location{Country: "CA", SubRegion: "Ontario"}}
		engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

		results, err := engine.Classify(context.Background(), eligible)
		require.NoError(t, err)

		record := results["txn-1"]
		require.Len(t, record.TaxCode, 1)
		assert.Equal(t, "Standard", record.TaxCode[0].Name)
		assert.Equal(t, model.SourceMatching, record.TaxCode[0].Source)
	})

	t.Run("other jurisdictions skip tax codes entirely", func(t *testing.T) {
		companies := map[string]model.CompanyInfo{
			"non CA country":    {Location: model.Location{Country: "US", SubRegion: "California"}},
			"missing subregion": {Location: model.Location{Country: "CA"}},
			"empty location":    {},
		}
		for name, company := range companies {
			classifier := &fakeClassifier{}
			engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, classifier)

			gated := batch
			gated.Company = company
			// Remove the match corpus so an eligible run would hit the LLM.
			gated.History = nil

			results, err := engine.Classify(context.Background(), gated)
			require.NoError(t, err, name)
			assert.Nil(t, results["txn-1"].TaxCode, name)
			for _, kind := range classifier.kinds {
				assert.NotEqual(t, model.KindTaxCode, kind, name)
			}
		}
	})
}

func TestClassifyPartialResults(t *testing.T) {
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "resolved", RawName: "STARBUCKS #123", Amount: -4.50},
			{ID: "unresolved", RawName: "TOTALLY CRYPTIC 9Q3X", Amount: -1.00},
		},
		History: []model.HistoricalTransaction{
			{Name: "STARBUCKS #045", Category: "Meals", Amount: -5.00},
		},
		Categories: categories(),
	}

	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NotEmpty(t, results["resolved"].Category)
	assert.Nil(t, results["unresolved"].Category)
	assert.Nil(t, results["unresolved"].TaxCode)
}

func TestClassifyStaleHistoryLabels(t *testing.T) {
	// Historical label no longer in the allow-list must not surface.
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "STARBUCKS #123", Amount: -4.50},
		},
		History: []model.HistoricalTransaction{
			{Name: "STARBUCKS #045", Category: "Retired Category", Amount: -5.00},
		},
		Categories: categories(),
	}

	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)
	assert.Nil(t, results["txn-1"].Category)
}

func TestClassifyNormalizedLabelBridge(t *testing.T) {
	// History says "Dues and Subscriptions", the allow-list spells it
	// "Dues & Subscriptions". The conjunction difference must not block
	// the match, and the candidate carries the current allow-list ID.
	batch := Batch{
		ForReview: []model.ForReviewTransaction{
			{ID: "txn-1", RawName: "ZOOM.US 888-799", Amount: -15.99},
		},
		History: []model.HistoricalTransaction{
			{Name: "ZOOM.US 888-799", Category: "Dues and Subscriptions", Amount: -15.99},
		},
		Categories: categories(),
	}

	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

	results, err := engine.Classify(context.Background(), batch)
	require.NoError(t, err)

	record := results["txn-1"]
	require.Len(t, record.Category, 1)
	assert.Equal(t, "c3", record.Category[0].ID)
}

func TestClassifyEmptyBatch(t *testing.T) {
	engine := newTestEngine(&fakeFrequencies{}, &fakeFeedback{}, &fakeSubscription{valid: true}, &fakeClassifier{})

	results, err := engine.Classify(context.Background(), Batch{Categories: categories()})
	require.NoError(t, err)
	assert.Empty(t, results)
}
