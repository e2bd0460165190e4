package engine

import (
	"context"

	"github.com/ledgerworks/coriander/internal/model"
)

// FrequencyStore serves the shared confirmed-classification counters,
// the cascade's second stage.
type FrequencyStore interface {
	TopCategories(ctx context.Context, name string, valid []model.Classification, k int) ([]model.Candidate, error)
	TopTaxCodes(ctx context.Context, name string, valid []model.Classification, k int) ([]model.Candidate, error)
}

// FeedbackWriter persists user-confirmed classifications before a run,
// growing both the frequency counters and the match corpus.
type FeedbackWriter interface {
	RecordBatch(ctx context.Context, txns []model.HistoricalTransaction) error
}

// SubscriptionChecker verifies the caller is entitled to run the
// cascade. Valid reports entitlement; an error means the check itself
// could not be completed.
type SubscriptionChecker interface {
	Valid(ctx context.Context) (bool, error)
}

// BatchClassifier is the cascade's final stage. It never fails the
// batch; transactions it cannot resolve map to empty candidate lists.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, txns []model.ForReviewTransaction, valid []model.Classification, company model.CompanyInfo, kind model.Kind, predicted map[string][]model.Candidate) map[string][]model.Candidate
}
