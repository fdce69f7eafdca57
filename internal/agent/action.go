package agent

import (
	"context"
	"time"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/storage"
	"github.com/vietddude/retention/internal/metrics"
)

// ActionGenerator is implemented by inference.ActionGenerator.
type ActionGenerator interface {
	Generate(ctx context.Context, item domain.PredictionItem, segment domain.RiskSegment) domain.Outcome[domain.Action]
}

// ActionPipeline segments predictions and asks for a retention action.
type ActionPipeline struct {
	generator  ActionGenerator
	thresholds inference.RiskThresholds
	audit      Recorder
	model      string
}

func NewActionPipeline(gen ActionGenerator, thresholds inference.RiskThresholds, rec Recorder, model string) *ActionPipeline {
	return &ActionPipeline{generator: gen, thresholds: thresholds, audit: rec, model: model}
}

func (p *ActionPipeline) Describe() string { return "predictions needing action" }

func (p *ActionPipeline) Discover(ctx context.Context, store storage.Store, limit int) ([]domain.PredictionItem, error) {
	return store.FindOpenPredictions(ctx, limit)
}

func (p *ActionPipeline) CustomerID(item domain.PredictionItem) int64 { return item.CustomerID }

func (p *ActionPipeline) Infer(ctx context.Context, item domain.PredictionItem) domain.Outcome[domain.Action] {
	id := audit.Customer(item.CustomerID)

	segment := p.thresholds.Classify(item.Probability)
	p.audit.Recordf(ctx, domain.EventSegmentation, domain.StatusInfo, id,
		"Segment: %s (Prob: %.4f). Feedback analysis available: %t", segment, item.Probability, item.HasAnalysis())

	p.audit.Recordf(ctx, domain.EventLLMCallStart, domain.StatusInfo, id,
		"Generate action. Risk: %s, Prob: %.2f, Model: %s", segment, item.Probability, p.model)
	start := time.Now()
	out := p.generator.Generate(ctx, item, segment)
	elapsed := time.Since(start)

	metrics.InferenceLatency.WithLabelValues(string(domain.AgentAction), out.Kind.String()).Observe(elapsed.Seconds())
	recordCallEnd(ctx, p.audit, id, out.Kind, out.Reason, elapsed,
		"Generated: '"+truncate(out.Result.RecommendedAction, 60)+"...'")

	if out.OK() {
		p.audit.Recordf(ctx, domain.EventActionGenerated, domain.StatusSuccess, id,
			"Action: '%s...'", truncate(out.Result.RecommendedAction, 60))
	}
	return out
}

func (p *ActionPipeline) Save(ctx context.Context, uow storage.UnitOfWork, results []domain.Action) (int64, error) {
	return uow.SaveActions(ctx, results)
}
