package agent

import (
	"context"
	"strings"
	"time"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
	"github.com/vietddude/retention/internal/metrics"
)

// FeedbackAnalyzer is implemented by inference.FeedbackAnalyzer.
type FeedbackAnalyzer interface {
	Analyze(ctx context.Context, item domain.FeedbackItem) domain.Outcome[domain.FeedbackAnalysis]
}

// NLPPipeline analyses customer feedback.
type NLPPipeline struct {
	analyzer FeedbackAnalyzer
	audit    Recorder
	model    string
}

func NewNLPPipeline(analyzer FeedbackAnalyzer, rec Recorder, model string) *NLPPipeline {
	return &NLPPipeline{analyzer: analyzer, audit: rec, model: model}
}

func (p *NLPPipeline) Describe() string { return "feedback items" }

func (p *NLPPipeline) Discover(ctx context.Context, store storage.Store, limit int) ([]domain.FeedbackItem, error) {
	return store.FindOpenFeedback(ctx, limit)
}

func (p *NLPPipeline) CustomerID(item domain.FeedbackItem) int64 { return item.CustomerID }

func (p *NLPPipeline) Infer(ctx context.Context, item domain.FeedbackItem) domain.Outcome[domain.FeedbackAnalysis] {
	id := audit.Customer(item.CustomerID)
	calls := strings.TrimSpace(item.FeedbackText) != ""

	if calls {
		p.audit.Recordf(ctx, domain.EventLLMCallStart, domain.StatusInfo, id,
			"Analyzing feedback. Length: %d, Model: %s", len(item.FeedbackText), p.model)
	}
	start := time.Now()
	out := p.analyzer.Analyze(ctx, item)
	elapsed := time.Since(start)

	if calls {
		metrics.InferenceLatency.WithLabelValues(string(domain.AgentNLP), out.Kind.String()).Observe(elapsed.Seconds())
		recordCallEnd(ctx, p.audit, id, out.Kind, out.Reason, elapsed,
			"Analysis completed. Sentiment: "+out.Result.Sentiment)
	}

	if out.OK() {
		p.audit.Recordf(ctx, domain.EventAnalysisGenerated, domain.StatusSuccess, id,
			"Summary: '%s...', Sentiment: %s", truncate(out.Result.Summary, 60), out.Result.Sentiment)
	}
	return out
}

func (p *NLPPipeline) Save(ctx context.Context, uow storage.UnitOfWork, results []domain.FeedbackAnalysis) (int64, error) {
	return uow.SaveFeedbackAnalyses(ctx, results)
}

// recordCallEnd writes LLM_CALL_END with a status matching the outcome.
func recordCallEnd(ctx context.Context, rec Recorder, id *int64, kind domain.OutcomeKind, reason string, elapsed time.Duration, success string) {
	secs := elapsed.Seconds()
	switch kind {
	case domain.OutcomeSuccess:
		rec.Recordf(ctx, domain.EventLLMCallEnd, domain.StatusSuccess, id, "%s. Duration: %.2fs", success, secs)
	case domain.OutcomeRateLimited:
		rec.Recordf(ctx, domain.EventLLMCallEnd, domain.StatusFailure, id, "Rate Limit Error after %.2fs: %s", secs, reason)
	case domain.OutcomePermanentFailure:
		rec.Recordf(ctx, domain.EventLLMCallEnd, domain.StatusError, id, "API Error after %.2fs: %s", secs, reason)
	default:
		rec.Recordf(ctx, domain.EventLLMCallEnd, domain.StatusError, id, "Unexpected Error after %.2fs: %s", secs, reason)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
