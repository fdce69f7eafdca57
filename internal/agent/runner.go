package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/retention/internal/audit"
	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
	"github.com/vietddude/retention/internal/metrics"
)

// Conn is an open store handle owned by one runner.
type Conn interface {
	storage.Store
	storage.AuditWriter
	Healthy() bool
	Target() string
	Close() error
}

// Connector opens Conns, retrying internally. An error is fatal.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Agent     domain.AgentName
	Connector Connector
	Batch     Batch
	Audit     *audit.Sink
	// Interval is the wait after a clean cycle, Backoff after an impaired one.
	Interval time.Duration
	Backoff  time.Duration
	Log      *slog.Logger

	// Started, if set, runs once after the initial connect and before the
	// first cycle. The audit sink is already bound.
	Started func(ctx context.Context)
}

// Status is a snapshot of the runner for health checks.
type Status struct {
	Agent               domain.AgentName
	Running             bool
	Connected           bool
	Cycles              int64
	LastCycleAt         time.Time
	LastImpaired        bool
	ConsecutiveImpaired int
	NextDelay           time.Duration
}

// Runner is the scheduler loop: ensure a connection, run one batch, wait,
// repeat. It stops on context cancellation or when reconnecting fails.
type Runner struct {
	cfg     RunnerConfig
	log     *slog.Logger
	wait    func(ctx context.Context, d time.Duration) error
	running atomic.Bool

	mu     sync.RWMutex
	conn   Conn
	status Status
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		wait:   sleepContext,
		status: Status{Agent: cfg.Agent},
	}
}

// Run connects and then loops until ctx is cancelled. The returned error is
// non-nil only when the store cannot be reached.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if r.cfg.Started != nil {
		r.cfg.Started(ctx)
	}
	return r.Loop(ctx)
}

// Connect opens a connection and binds the audit sink to it.
func (r *Runner) Connect(ctx context.Context) error {
	conn, err := r.cfg.Connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.status.Connected = true
	r.mu.Unlock()

	r.cfg.Audit.Bind(conn)
	r.cfg.Audit.Record(ctx, domain.EventDBConnect, domain.StatusSuccess, nil, "Connected to "+conn.Target())
	return nil
}

// Loop runs cycles until ctx is cancelled or a reconnect fails.
func (r *Runner) Loop(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("runner already running")
	}
	defer r.running.Store(false)
	defer r.disconnect()

	r.setRunning(true)
	defer r.setRunning(false)

	for {
		if ctx.Err() != nil {
			return nil
		}

		impaired, err := r.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("Could not reconnect to database, stopping", "error", err)
			return err
		}

		delay := r.NextInterval(impaired)
		r.recordCycle(impaired, delay)
		r.log.Info("Waiting before next cycle", "delay", delay, "impaired", impaired)

		if err := r.wait(ctx, delay); err != nil {
			r.log.Info("Shutdown requested, stopping between cycles")
			return nil
		}
	}
}

// NextInterval picks the wait after a cycle.
func (r *Runner) NextInterval(impaired bool) time.Duration {
	if impaired {
		return r.cfg.Backoff
	}
	return r.cfg.Interval
}

// Status returns a snapshot.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// cycle runs one batch. Panics are audited and count as impaired; only a
// failed reconnect is returned as an error.
func (r *Runner) cycle(ctx context.Context) (impaired bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Unexpected error in main loop", "panic", rec, "stack", string(debug.Stack()))
			r.cfg.Audit.Recordf(ctx, domain.EventUnexpectedError, domain.StatusError, nil, "Main loop error: %v", rec)
			impaired = true
			err = nil
		}
	}()

	conn := r.currentConn()
	if conn == nil || !conn.Healthy() {
		r.log.Warn("Database connection found closed, reconnecting")
		r.cfg.Audit.Record(ctx, domain.EventDBConnect, domain.StatusWarning, nil, "Connection lost, attempting reconnect.")
		if err := r.reconnect(ctx); err != nil {
			return true, err
		}
		conn = r.currentConn()
	}

	// A batch is never cancelled mid-flight; shutdown waits for it.
	report := r.cfg.Batch.RunBatch(context.WithoutCancel(ctx), conn)

	if errors.Is(report.Err, storage.ErrConnectionBroken) {
		r.log.Error("Database connection broken, reconnecting", "error", report.Err)
		r.cfg.Audit.Recordf(ctx, domain.EventDBConnect, domain.StatusError, nil, "Connection error: %v", report.Err)
		if err := r.reconnect(ctx); err != nil {
			return true, err
		}
		return true, nil
	}
	return report.Impaired(), nil
}

func (r *Runner) reconnect(ctx context.Context) error {
	r.disconnect()
	metrics.Reconnects.WithLabelValues(string(r.cfg.Agent)).Inc()
	return r.Connect(ctx)
}

func (r *Runner) disconnect() {
	r.cfg.Audit.Bind(nil)

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.status.Connected = false
	r.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.log.Debug("Error closing connection", "error", err)
		}
	}
}

func (r *Runner) currentConn() Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = v
}

func (r *Runner) recordCycle(impaired bool, delay time.Duration) {
	metrics.NextCycleDelay.WithLabelValues(string(r.cfg.Agent)).Set(delay.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Cycles++
	r.status.LastCycleAt = time.Now()
	r.status.LastImpaired = impaired
	r.status.NextDelay = delay
	if impaired {
		r.status.ConsecutiveImpaired++
	} else {
		r.status.ConsecutiveImpaired = 0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
