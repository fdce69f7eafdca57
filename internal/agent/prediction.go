package agent

import (
	"context"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
)

// ChurnScorer is implemented by inference.ChurnScorer.
type ChurnScorer interface {
	Ready() error
	Score(item domain.CustomerItem) domain.Outcome[domain.Prediction]
}

// PredictionPipeline scores customers with the churn model.
type PredictionPipeline struct {
	scorer ChurnScorer
	audit  Recorder
}

func NewPredictionPipeline(scorer ChurnScorer, rec Recorder) *PredictionPipeline {
	return &PredictionPipeline{scorer: scorer, audit: rec}
}

func (p *PredictionPipeline) Describe() string { return "customers needing prediction" }

func (p *PredictionPipeline) Discover(ctx context.Context, store storage.Store, limit int) ([]domain.CustomerItem, error) {
	return store.FindUnscoredCustomers(ctx, limit)
}

func (p *PredictionPipeline) CustomerID(item domain.CustomerItem) int64 { return item.CustomerID }

// Prepare fails the batch when no usable model is loaded.
func (p *PredictionPipeline) Prepare(ctx context.Context) error {
	if err := p.scorer.Ready(); err != nil {
		p.audit.Recordf(ctx, domain.EventPredictionEnd, domain.StatusFailure, nil, "Prediction skipped: %v", err)
		return err
	}
	return nil
}

func (p *PredictionPipeline) Infer(ctx context.Context, item domain.CustomerItem) domain.Outcome[domain.Prediction] {
	id := audit.Customer(item.CustomerID)
	f := item.Features()
	p.audit.Recordf(ctx, domain.EventPredictionStart, domain.StatusInfo, id,
		"Features: last_activity_days=%v, complaints_count=%v, sentiment_numeric=%v",
		f.LastActivityDays, f.ComplaintsCount, f.SentimentNumeric)

	out := p.scorer.Score(item)
	if out.OK() {
		p.audit.Recordf(ctx, domain.EventPredictionEnd, domain.StatusSuccess, id,
			"Churn probability: %.4f", out.Result.ChurnProbability)
	} else {
		p.audit.Recordf(ctx, domain.EventPredictionEnd, domain.StatusFailure, id, "Model error: %s", out.Reason)
	}
	return out
}

func (p *PredictionPipeline) Save(ctx context.Context, uow storage.UnitOfWork, results []domain.Prediction) (int64, error) {
	return uow.SavePredictions(ctx, results)
}
