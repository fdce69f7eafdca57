// Package audit records agent state transitions in the audit log.
//
// Recording never fails from the caller's point of view: write errors are
// logged and counted, and business logic carries on.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/metrics"
)

const (
	writeTimeout = 5 * time.Second

	// The mirror is optional, so it gets a tighter budget and is paused for
	// mirrorCooldown after mirrorMaxFailures consecutive errors.
	mirrorTimeout     = 500 * time.Millisecond
	mirrorMaxFailures = 3
	mirrorCooldown    = time.Minute
)

// Writer persists one event in its own transaction.
type Writer interface {
	InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error
}

// Mirror receives a copy of every event, for live feeds.
type Mirror interface {
	PublishAudit(ctx context.Context, ev domain.AuditEvent) error
}

// Sink is the agent's audit trail. It is bound to the current connection
// and rebound after every reconnect.
type Sink struct {
	agent  domain.AgentName
	log    *slog.Logger
	mirror Mirror
	now    func() time.Time

	mu     sync.RWMutex
	writer Writer

	mirrorMu       sync.Mutex
	mirrorFailures int
	mirrorPaused   time.Time
}

// NewSink creates a sink for agent. mirror may be nil.
func NewSink(agent domain.AgentName, log *slog.Logger, mirror Mirror) *Sink {
	return &Sink{
		agent:  agent,
		log:    log,
		mirror: mirror,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Bind sets the writer used for subsequent events. nil unbinds it.
func (s *Sink) Bind(w Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Record writes one event. Without a bound writer the event only reaches
// the log.
func (s *Sink) Record(ctx context.Context, eventType domain.AuditEventType, status domain.AuditStatus, customerID *int64, details string) {
	ev := domain.AuditEvent{
		AgentName:  s.agent,
		EventType:  eventType,
		Status:     status,
		CustomerID: customerID,
		Details:    details,
		CreatedAt:  s.now(),
	}

	// Audit rows survive caller cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	s.mu.RLock()
	w := s.writer
	s.mu.RUnlock()

	if w == nil {
		s.log.Warn("Audit event not persisted, no database connection",
			"event_type", eventType,
			"status", status,
			"details", details,
		)
	} else if err := w.InsertAuditEvent(ctx, ev); err != nil {
		metrics.AuditWriteFailures.WithLabelValues(string(s.agent), "db").Inc()
		s.log.Error("Failed to write audit event",
			"event_type", eventType,
			"error", err,
		)
	}

	s.publish(ctx, ev)
}

func (s *Sink) publish(ctx context.Context, ev domain.AuditEvent) {
	if s.mirror == nil {
		return
	}

	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	now := s.now()
	if now.Before(s.mirrorPaused) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	err := s.mirror.PublishAudit(ctx, ev)
	if err == nil {
		s.mirrorFailures = 0
		return
	}

	metrics.AuditWriteFailures.WithLabelValues(string(s.agent), "mirror").Inc()
	s.mirrorFailures++
	if s.mirrorFailures < mirrorMaxFailures {
		s.log.Debug("Failed to mirror audit event", "event_type", ev.EventType, "error", err)
		return
	}
	s.mirrorFailures = 0
	s.mirrorPaused = now.Add(mirrorCooldown)
	s.log.Warn("Audit mirror paused after repeated failures", "cooldown", mirrorCooldown, "error", err)
}

// Recordf is Record with a formatted details string.
func (s *Sink) Recordf(ctx context.Context, eventType domain.AuditEventType, status domain.AuditStatus, customerID *int64, format string, args ...any) {
	s.Record(ctx, eventType, status, customerID, fmt.Sprintf(format, args...))
}

// Customer returns a customer id pointer for per-item events.
func Customer(id int64) *int64 {
	return &id
}
