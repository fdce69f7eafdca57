package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/inference"
	"github.com/vietddude/retention/internal/infra/storage/memory"
	"github.com/vietddude/retention/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedAnalyzer fails the customers listed in fail with the given kind.
type scriptedAnalyzer struct {
	fail  map[int64]domain.OutcomeKind
	calls []int64
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, item domain.FeedbackItem) domain.Outcome[domain.FeedbackAnalysis] {
	a.calls = append(a.calls, item.CustomerID)
	if kind, ok := a.fail[item.CustomerID]; ok {
		return domain.Failed[domain.FeedbackAnalysis](kind, "scripted "+kind.String())
	}
	return domain.Succeeded(domain.FeedbackAnalysis{
		CustomerID: item.CustomerID,
		Summary:    "ok",
		Sentiment:  "Neutral",
		Topics:     "none",
	})
}

func seedFeedback(store *memory.MemoryStorage, n int) {
	for i := 1; i <= n; i++ {
		store.AddFeedback(int64(i), "feedback text", t0.Add(time.Duration(i)*time.Minute))
	}
}

func newNLPOrchestrator(store *memory.MemoryStorage, analyzer FeedbackAnalyzer, batchSize int) (*Orchestrator[domain.FeedbackItem, domain.FeedbackAnalysis], *int) {
	sink := audit.NewSink(domain.AgentNLP, testLogger(), nil)
	sink.Bind(store)
	o := NewOrchestrator[domain.FeedbackItem, domain.FeedbackAnalysis](
		domain.AgentNLP,
		NewNLPPipeline(analyzer, sink, "test-model"),
		sink,
		batchSize,
		testLogger(),
	)
	pauses := 0
	o.pause = func(context.Context) { pauses++ }
	return o, &pauses
}

func eventsOf(store *memory.MemoryStorage, eventType domain.AuditEventType) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, ev := range store.AuditEvents() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunBatch_RateLimitTruncates(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 5)
	analyzer := &scriptedAnalyzer{fail: map[int64]domain.OutcomeKind{3: domain.OutcomeRateLimited}}
	o, pauses := newNLPOrchestrator(store, analyzer, 10)

	report := o.RunBatch(context.Background(), store)

	if !report.Impaired() || !report.RateLimited {
		t.Fatalf("expected rate-limited impaired batch, got %+v", report)
	}
	if len(analyzer.calls) != 3 {
		t.Errorf("items after the rate limit must not be called, got calls %v", analyzer.calls)
	}
	got := store.Analyses()
	if len(got) != 2 {
		t.Fatalf("expected 2 committed analyses, got %d", len(got))
	}
	for _, id := range []int64{1, 2} {
		if _, ok := got[id]; !ok {
			t.Errorf("customer %d should have been committed", id)
		}
	}
	if *pauses != 0 {
		t.Error("no pause after an impaired batch")
	}

	ends := eventsOf(store, domain.EventBatchEnd)
	if len(ends) != 1 || ends[0].Status != domain.StatusInterrupted {
		t.Errorf("expected one INTERRUPTED BATCH_END, got %+v", ends)
	}
}

func TestRunBatch_PartialFailureContinues(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 3)
	analyzer := &scriptedAnalyzer{fail: map[int64]domain.OutcomeKind{2: domain.OutcomePermanentFailure}}
	o, _ := newNLPOrchestrator(store, analyzer, 10)

	report := o.RunBatch(context.Background(), store)

	if !report.APIImpaired || report.RateLimited {
		t.Fatalf("expected api-impaired batch, got %+v", report)
	}
	if report.Succeeded != 2 || report.Failed != 1 || report.Saved != 2 {
		t.Errorf("unexpected counts: %+v", report)
	}
	got := store.Analyses()
	if _, ok := got[2]; ok {
		t.Error("failed item must not be saved")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 analyses, got %d", len(got))
	}

	// The failed item is rediscovered next cycle.
	items, _ := store.FindOpenFeedback(context.Background(), 10)
	if len(items) != 1 || items[0].CustomerID != 2 {
		t.Errorf("expected customer 2 to remain open, got %+v", items)
	}
}

func TestRunBatch_TransientFailureSkips(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 2)
	analyzer := &scriptedAnalyzer{fail: map[int64]domain.OutcomeKind{1: domain.OutcomeTransientFailure}}
	o, _ := newNLPOrchestrator(store, analyzer, 10)

	report := o.RunBatch(context.Background(), store)
	if !report.Impaired() || report.Saved != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunBatch_EmptyIsNotImpaired(t *testing.T) {
	store := memory.NewMemoryStorage()
	o, _ := newNLPOrchestrator(store, &scriptedAnalyzer{}, 10)

	report := o.RunBatch(context.Background(), store)
	if report.Impaired() || report.Discovered != 0 {
		t.Fatalf("expected clean empty batch, got %+v", report)
	}
	ends := eventsOf(store, domain.EventBatchEnd)
	if len(ends) != 1 || ends[0].Status != domain.StatusInfo || ends[0].Details != "No feedback items found to process." {
		t.Errorf("unexpected BATCH_END: %+v", ends)
	}
}

func TestRunBatch_CleanBatchPauses(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 2)
	o, pauses := newNLPOrchestrator(store, &scriptedAnalyzer{}, 10)

	report := o.RunBatch(context.Background(), store)
	if report.Impaired() || report.Saved != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if *pauses != 1 {
		t.Errorf("expected one pause, got %d", *pauses)
	}
}

func TestRunBatch_RespectsBatchSizeAndOrder(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 5)
	analyzer := &scriptedAnalyzer{}
	o, _ := newNLPOrchestrator(store, analyzer, 2)

	o.RunBatch(context.Background(), store)
	if len(analyzer.calls) != 2 || analyzer.calls[0] != 1 || analyzer.calls[1] != 2 {
		t.Fatalf("expected oldest two items, got %v", analyzer.calls)
	}
}

func TestRunBatch_DiscoveryFailure(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.SetFaults(memory.Faults{Discover: errors.New("relation does not exist")})
	analyzer := &scriptedAnalyzer{}
	o, _ := newNLPOrchestrator(store, analyzer, 10)

	report := o.RunBatch(context.Background(), store)
	if !report.DBImpaired || report.Err == nil {
		t.Fatalf("expected db-impaired batch, got %+v", report)
	}
	if len(analyzer.calls) != 0 {
		t.Error("no inference after failed discovery")
	}
}

func TestRunBatch_CommitFailure(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 2)
	store.SetFaults(memory.Faults{Commit: errors.New("could not serialize access")})
	o, _ := newNLPOrchestrator(store, &scriptedAnalyzer{}, 10)

	report := o.RunBatch(context.Background(), store)
	if !report.DBImpaired {
		t.Fatalf("expected db-impaired batch, got %+v", report)
	}
	if len(store.Analyses()) != 0 {
		t.Error("nothing may be persisted when the commit fails")
	}
	saves := eventsOf(store, domain.EventDBSave)
	if len(saves) != 1 || saves[0].Status != domain.StatusFailure {
		t.Errorf("expected a DB_SAVE FAILURE event, got %+v", saves)
	}
}

func TestRunBatch_AuditFailureDoesNotAffectBatch(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 2)
	store.SetFaults(memory.Faults{Audit: errors.New("audit_log is locked")})
	o, _ := newNLPOrchestrator(store, &scriptedAnalyzer{}, 10)

	report := o.RunBatch(context.Background(), store)
	if report.Impaired() || report.Saved != 2 {
		t.Fatalf("audit failures must not impair the batch: %+v", report)
	}
}

func TestRunBatch_ItemEventsCarryCustomer(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedFeedback(store, 1)
	o, _ := newNLPOrchestrator(store, &scriptedAnalyzer{}, 10)
	o.RunBatch(context.Background(), store)

	for _, typ := range []domain.AuditEventType{
		domain.EventProcessingStart,
		domain.EventLLMCallStart,
		domain.EventLLMCallEnd,
		domain.EventAnalysisGenerated,
		domain.EventProcessingEnd,
	} {
		evs := eventsOf(store, typ)
		if len(evs) != 1 || evs[0].CustomerID == nil || *evs[0].CustomerID != 1 {
			t.Errorf("%s: expected one event for customer 1, got %+v", typ, evs)
		}
	}
	for _, typ := range []domain.AuditEventType{domain.EventBatchStart, domain.EventDBFetch, domain.EventDBSave, domain.EventBatchEnd} {
		for _, ev := range eventsOf(store, typ) {
			if ev.CustomerID != nil {
				t.Errorf("%s must be batch-level", typ)
			}
		}
	}
}

// scriptedGenerator echoes the segment into the action.
type scriptedGenerator struct {
	segments map[int64]domain.RiskSegment
}

func (g *scriptedGenerator) Generate(ctx context.Context, item domain.PredictionItem, segment domain.RiskSegment) domain.Outcome[domain.Action] {
	g.segments[item.CustomerID] = segment
	return domain.Succeeded(domain.Action{CustomerID: item.CustomerID, Segment: segment, RecommendedAction: "do it"})
}

func TestActionBatch_SegmentsAndSaves(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.AddPrediction(1, 0.70, t0)
	store.AddPrediction(2, 0.6999, t0.Add(time.Second))
	store.AddPrediction(3, 0, t0.Add(2*time.Second))

	sink := audit.NewSink(domain.AgentAction, testLogger(), nil)
	sink.Bind(store)
	gen := &scriptedGenerator{segments: map[int64]domain.RiskSegment{}}
	o := NewOrchestrator[domain.PredictionItem, domain.Action](
		domain.AgentAction,
		NewActionPipeline(gen, inference.DefaultRiskThresholds, sink, "test-model"),
		sink, 10, testLogger(),
	)
	o.pause = func(context.Context) {}

	report := o.RunBatch(context.Background(), store)
	if report.Impaired() || report.Saved != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	want := map[int64]domain.RiskSegment{1: domain.RiskHigh, 2: domain.RiskMedium, 3: domain.RiskLow}
	for id, seg := range want {
		if gen.segments[id] != seg {
			t.Errorf("customer %d: segment %q, want %q", id, gen.segments[id], seg)
		}
		if store.Actions()[id].Segment != seg {
			t.Errorf("customer %d: saved segment %q, want %q", id, store.Actions()[id].Segment, seg)
		}
	}
}

func TestPredictionBatch_NoModelFailsWholeBatch(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.AddCustomer(1, 10, 0, t0)
	store.AddCustomer(2, 10, 0, t0)

	sink := audit.NewSink(domain.AgentPrediction, testLogger(), nil)
	sink.Bind(store)
	o := NewOrchestrator[domain.CustomerItem, domain.Prediction](
		domain.AgentPrediction,
		NewPredictionPipeline(inference.NewChurnScorer(nil), sink),
		sink, 50, testLogger(),
	)
	o.pause = func(context.Context) {}

	report := o.RunBatch(context.Background(), store)
	if !report.APIImpaired || report.Failed != 2 || report.Saved != 0 {
		t.Fatalf("expected failed batch, got %+v", report)
	}
	ends := eventsOf(store, domain.EventBatchEnd)
	if len(ends) != 1 || ends[0].Status != domain.StatusFailure {
		t.Errorf("expected BATCH_END FAILURE, got %+v", ends)
	}
}

func TestPredictionBatch_Scores(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.AddCustomer(1, 0, 0, t0)
	store.AddCustomer(2, 0, 0, t0.Add(time.Second))
	store.AddAnalysis(domain.FeedbackAnalysis{CustomerID: 2, Sentiment: "Negative"})

	m, err := model.Parse([]byte(`{"features": ["last_activity_days", "complaints_count", "sentiment_numeric"], "coefficients": [0, 0, -1], "intercept": 0}`))
	if err != nil {
		t.Fatal(err)
	}
	sink := audit.NewSink(domain.AgentPrediction, testLogger(), nil)
	sink.Bind(store)
	o := NewOrchestrator[domain.CustomerItem, domain.Prediction](
		domain.AgentPrediction,
		NewPredictionPipeline(inference.NewChurnScorer(m), sink),
		sink, 50, testLogger(),
	)
	o.pause = func(context.Context) {}

	report := o.RunBatch(context.Background(), store)
	if report.Impaired() || report.Saved != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	preds := store.Predictions()
	if preds[1] != 0.5 {
		t.Errorf("neutral customer: got %v, want 0.5", preds[1])
	}
	if preds[2] <= 0.5 {
		t.Errorf("negative sentiment should raise churn probability, got %v", preds[2])
	}
}
