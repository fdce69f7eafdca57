package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
	"github.com/vietddude/retention/internal/metrics"
)

// Recorder is the audit trail as seen by the runtime.
type Recorder interface {
	Record(ctx context.Context, eventType domain.AuditEventType, status domain.AuditStatus, customerID *int64, details string)
	Recordf(ctx context.Context, eventType domain.AuditEventType, status domain.AuditStatus, customerID *int64, format string, args ...any)
}

// Pipeline is one agent's discovery, inference and persistence, plugged into
// the shared batch lifecycle. W is the work item, R the result row.
type Pipeline[W, R any] interface {
	// Describe names the batch for audit details, e.g. "feedback items".
	Describe() string
	Discover(ctx context.Context, store storage.Store, limit int) ([]W, error)
	CustomerID(item W) int64
	// Infer makes exactly one external call for item.
	Infer(ctx context.Context, item W) domain.Outcome[R]
	Save(ctx context.Context, uow storage.UnitOfWork, results []R) (int64, error)
}

// Preparer is implemented by pipelines with a batch-wide precondition. A
// non-nil error fails the batch before any item is processed.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Report summarises one batch.
type Report struct {
	CycleID     string
	Discovered  int
	Succeeded   int
	Failed      int
	Saved       int64
	RateLimited bool

	// APIImpaired is set when any item failed inference or the batch could
	// not run inference at all.
	APIImpaired bool
	// DBImpaired is set when discovery or the save failed.
	DBImpaired bool
	// Err is the store error that ended the batch, if any.
	Err error
}

// Impaired reports whether the scheduler should back off.
func (r Report) Impaired() bool {
	return r.APIImpaired || r.DBImpaired
}

// Batch runs one batch against a store.
type Batch interface {
	RunBatch(ctx context.Context, store storage.Store) Report
}

// Orchestrator drives a Pipeline through Discovering, Iterating, Committing
// and Done.
type Orchestrator[W, R any] struct {
	agent     domain.AgentName
	pipeline  Pipeline[W, R]
	audit     Recorder
	batchSize int
	log       *slog.Logger

	// pause runs after a clean commit
	pause func(ctx context.Context)
}

// NewOrchestrator creates an orchestrator for pipeline.
func NewOrchestrator[W, R any](
	agent domain.AgentName,
	pipeline Pipeline[W, R],
	rec Recorder,
	batchSize int,
	log *slog.Logger,
) *Orchestrator[W, R] {
	return &Orchestrator[W, R]{
		agent:     agent,
		pipeline:  pipeline,
		audit:     rec,
		batchSize: batchSize,
		log:       log,
		pause: func(ctx context.Context) {
			t := time.NewTimer(time.Second)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// RunBatch processes at most one batch.
func (o *Orchestrator[W, R]) RunBatch(ctx context.Context, store storage.Store) (report Report) {
	start := time.Now()
	report.CycleID = uuid.NewString()
	log := o.log.With("cycle", report.CycleID)
	what := o.pipeline.Describe()
	agent := string(o.agent)

	defer func() {
		metrics.BatchDuration.WithLabelValues(agent).Observe(time.Since(start).Seconds())
		metrics.BatchesTotal.WithLabelValues(agent, batchStatus(report)).Inc()
	}()

	o.audit.Recordf(ctx, domain.EventBatchStart, domain.StatusInfo, nil,
		"Checking for %s (batch size: %d).", what, o.batchSize)
	log.Info("Checking for work", "what", what, "batch_size", o.batchSize)

	// Discovering
	items, err := o.pipeline.Discover(ctx, store, o.batchSize)
	if err != nil {
		o.audit.Recordf(ctx, domain.EventDBFetch, domain.StatusFailure, nil, "Failed fetching %s: %v", what, err)
		o.audit.Record(ctx, domain.EventBatchEnd, domain.StatusFailure, nil, "Batch failed during discovery.")
		log.Error("Discovery failed", "error", err)
		report.DBImpaired = true
		report.Err = err
		return report
	}
	report.Discovered = len(items)
	o.audit.Recordf(ctx, domain.EventDBFetch, domain.StatusSuccess, nil, "Found %d %s in current batch.", len(items), what)

	if len(items) == 0 {
		o.audit.Recordf(ctx, domain.EventBatchEnd, domain.StatusInfo, nil, "No %s found to process.", what)
		log.Info("Nothing to do", "what", what)
		return report
	}

	if p, ok := any(o.pipeline).(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			o.audit.Recordf(ctx, domain.EventBatchEnd, domain.StatusFailure, nil, "Batch not processed: %v", err)
			log.Error("Batch precondition failed", "error", err)
			report.Failed = len(items)
			report.APIImpaired = true
			metrics.ItemsProcessed.WithLabelValues(agent, domain.OutcomePermanentFailure.String()).Add(float64(len(items)))
			return report
		}
	}

	// Iterating
	results := make([]R, 0, len(items))
	for _, item := range items {
		id := o.pipeline.CustomerID(item)
		itemLog := log.With("customer_id", id)
		o.audit.Record(ctx, domain.EventProcessingStart, domain.StatusInfo, audit.Customer(id), "Processing "+what+".")

		out := o.pipeline.Infer(ctx, item)
		metrics.ItemsProcessed.WithLabelValues(agent, out.Kind.String()).Inc()

		if out.Kind == domain.OutcomeRateLimited {
			report.RateLimited = true
			report.APIImpaired = true
			o.audit.Record(ctx, domain.EventProcessingEnd, domain.StatusInterrupted, audit.Customer(id),
				"Batch stopped due to API rate limit.")
			itemLog.Warn("Rate limited, stopping batch", "reason", out.Reason)
			break
		}
		if !out.OK() {
			report.Failed++
			report.APIImpaired = true
			o.audit.Recordf(ctx, domain.EventProcessingEnd, domain.StatusFailure, audit.Customer(id),
				"Inference failed (%s): %s", out.Kind, out.Reason)
			itemLog.Error("Inference failed, skipping item", "outcome", out.Kind.String(), "reason", out.Reason)
			continue
		}

		results = append(results, out.Result)
		report.Succeeded++
		o.audit.Record(ctx, domain.EventProcessingEnd, domain.StatusSuccess, audit.Customer(id), "")
	}

	// Committing
	if len(results) > 0 {
		saved, err := o.commit(ctx, store, results)
		if err != nil {
			o.audit.Recordf(ctx, domain.EventDBSave, domain.StatusFailure, nil, "Insert failed for batch: %v", err)
			o.audit.Record(ctx, domain.EventBatchEnd, domain.StatusFailure, nil, "Batch failed during DB save.")
			log.Error("Save failed", "error", err)
			report.DBImpaired = true
			report.Err = err
			return report
		}
		report.Saved = saved
		metrics.ResultsSaved.WithLabelValues(agent).Add(float64(saved))
		o.audit.Recordf(ctx, domain.EventDBSave, domain.StatusSuccess, nil,
			"Inserted %d of %d %s results.", saved, len(results), what)
		log.Info("Saved results", "inserted", saved, "attempted", len(results))

		if !report.APIImpaired {
			o.pause(ctx)
		}
	}

	// Done
	status := domain.StatusInfo
	if report.APIImpaired {
		status = domain.StatusInterrupted
	}
	o.audit.Recordf(ctx, domain.EventBatchEnd, status, nil,
		"Finished batch. Generated %d, saved %d, failed %d. API failure encountered: %t",
		len(results), report.Saved, report.Failed, report.APIImpaired)
	log.Info("Finished batch",
		"discovered", report.Discovered,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"saved", report.Saved,
		"rate_limited", report.RateLimited,
		"duration", time.Since(start),
	)
	return report
}

// commit writes results in one transaction. The transaction is rolled back
// on any failure.
func (o *Orchestrator[W, R]) commit(ctx context.Context, store storage.Store, results []R) (int64, error) {
	uow, err := store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = uow.Rollback() }()

	n, err := o.pipeline.Save(ctx, uow, results)
	if err != nil {
		return 0, err
	}
	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func batchStatus(r Report) string {
	switch {
	case r.DBImpaired:
		return "db_failure"
	case r.RateLimited:
		return "rate_limited"
	case r.APIImpaired:
		return "api_failure"
	case r.Discovered == 0:
		return "empty"
	default:
		return "ok"
	}
}
