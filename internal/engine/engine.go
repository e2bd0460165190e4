// Package engine orchestrates the three-stage classification cascade:
// approximate matching against the user's own history, shared frequency
// lookups, and finally LLM inference for whatever remains.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgerworks/coriander/internal/common"
	"github.com/ledgerworks/coriander/internal/match"
	"github.com/ledgerworks/coriander/internal/model"
)

// defaultTopK bounds how many frequency candidates are requested per
// transaction.
const defaultTopK = 3

// Batch is one classification request: the pending transactions plus
// everything needed to classify them.
type Batch struct {
	ForReview  []model.ForReviewTransaction
	History    []model.HistoricalTransaction
	Company    model.CompanyInfo
	Categories []model.Classification
	TaxCodes   []model.Classification
}

// Engine runs the cascade. Construct it with New; the zero value is not
// usable.
type Engine struct {
	frequencies  FrequencyStore
	feedback     FeedbackWriter
	subscription SubscriptionChecker
	classifier   BatchClassifier
	logger       *slog.Logger
	topK         int
}

// New creates an engine from its collaborators.
func New(frequencies FrequencyStore, feedback FeedbackWriter, subscription SubscriptionChecker, classifier BatchClassifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		frequencies:  frequencies,
		feedback:     feedback,
		subscription: subscription,
		classifier:   classifier,
		logger:       logger,
		topK:         defaultTopK,
	}
}

// Classify runs the full cascade over a batch and returns one Record per
// transaction ID. The caller-provided history is persisted first so this
// run and future runs benefit from it; the subscription gate then runs
// before any stage does classification work, so an entitlement failure
// never reaches the LLM.
func (e *Engine) Classify(ctx context.Context, batch Batch) (map[string]model.Record, error) {
	if len(batch.History) > 0 && e.feedback != nil {
		if err := e.feedback.RecordBatch(ctx, batch.History); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrHistorySave, err)
		}
	}

	valid, err := e.subscription.Valid(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSubscriptionCheck, err)
	}
	if !valid {
		return nil, common.ErrSubscriptionInvalid
	}

	results := make(map[string]model.Record, len(batch.ForReview))
	if len(batch.ForReview) == 0 {
		return results, nil
	}

	index := match.NewIndex(batch.History)

	categories := e.cascade(ctx, batch, index, batch.Categories, model.KindCategory, nil)

	var taxCodes map[string][]model.Candidate
	if batch.Company.TaxCodeEligible() && len(batch.TaxCodes) > 0 {
		taxCodes = e.cascade(ctx, batch, index, batch.TaxCodes, model.KindTaxCode, categories)
	}

	for _, txn := range batch.ForReview {
		var record model.Record
		if c := categories[txn.ID]; len(c) > 0 {
			record.Category = c
		}
		if t := taxCodes[txn.ID]; len(t) > 0 {
			record.TaxCode = t
		}
		results[txn.ID] = record
	}
	return results, nil
}

// cascade resolves one classification kind for the whole batch: matching
// and frequency lookups run per transaction, then everything still
// unresolved goes to the LLM in a single batch.
func (e *Engine) cascade(ctx context.Context, batch Batch, index *match.Index, valid []model.Classification, kind model.Kind, predicted map[string][]model.Candidate) map[string][]model.Candidate {
	results := make(map[string][]model.Candidate, len(batch.ForReview))
	validByName := normalizedAllowList(valid)

	var unresolved []model.ForReviewTransaction
	for _, txn := range batch.ForReview {
		if candidates := e.matchStage(index, txn, validByName, kind); len(candidates) > 0 {
			results[txn.ID] = candidates
			continue
		}
		if candidates := e.frequencyStage(ctx, txn, valid, kind); len(candidates) > 0 {
			results[txn.ID] = candidates
			continue
		}
		unresolved = append(unresolved, txn)
	}

	e.logger.Debug("cascade stage summary",
		"kind", kind,
		"total", len(batch.ForReview),
		"resolved_locally", len(batch.ForReview)-len(unresolved))

	if len(unresolved) == 0 || e.classifier == nil {
		return results
	}

	for id, candidates := range e.classifier.ClassifyBatch(ctx, unresolved, valid, batch.Company, kind, predicted) {
		if len(candidates) > 0 {
			results[id] = candidates
		}
	}
	return results
}

// matchStage searches the history index for near-duplicate names and
// turns their confirmed labels into candidates, ranked by amount
// proximity when the text alone is ambiguous.
func (e *Engine) matchStage(index *match.Index, txn model.ForReviewTransaction, validByName map[string]model.Classification, kind model.Kind) []model.Candidate {
	matches := index.Search(txn.Name())
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var candidates []model.Candidate
	for _, m := range matches {
		label := m.Transaction.Label(kind)
		if label == "" {
			continue
		}
		normalized := match.Normalize(label)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		current, ok := validByName[normalized]
		if !ok {
			// Historical label no longer in the allow-list.
			continue
		}
		candidates = append(candidates, model.Candidate{
			Kind:   kind,
			ID:     current.ID,
			Name:   label,
			Source: model.SourceMatching,
		})
	}

	return match.RankByAmount(candidates, matches, kind, txn.Amount)
}

// frequencyStage consults the shared confirmed-classification counters.
// Lookup errors degrade to "no candidates" so the cascade can continue
// to the LLM.
func (e *Engine) frequencyStage(ctx context.Context, txn model.ForReviewTransaction, valid []model.Classification, kind model.Kind) []model.Candidate {
	if e.frequencies == nil {
		return nil
	}

	var candidates []model.Candidate
	var err error
	if kind == model.KindTaxCode {
		candidates, err = e.frequencies.TopTaxCodes(ctx, txn.Name(), valid, e.topK)
	} else {
		candidates, err = e.frequencies.TopCategories(ctx, txn.Name(), valid, e.topK)
	}
	if err != nil {
		e.logger.Warn("frequency lookup failed",
			"transaction_id", txn.ID,
			"kind", kind,
			"error", err)
		return nil
	}
	return candidates
}

func normalizedAllowList(valid []model.Classification) map[string]model.Classification {
	byName := make(map[string]model.Classification, len(valid))
	for _, c := range valid {
		key := match.Normalize(c.Name)
		if _, exists := byName[key]; !exists {
			byName[key] = c
		}
	}
	return byName
}
