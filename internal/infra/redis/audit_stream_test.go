package redis

import (
	"testing"
	"time"

	"github.com/vietddude/retention/internal/core/domain"
)

func TestAuditFieldsRoundTrip(t *testing.T) {
	id := int64(17)
	at := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	ev := domain.AuditEvent{
		AgentName:  domain.AgentAction,
		EventType:  domain.EventSegmentation,
		Status:     domain.StatusInfo,
		CustomerID: &id,
		Details:    "Segment: High Risk",
		CreatedAt:  at,
	}

	got := parseAuditFields(auditFields(ev))
	if got.AgentName != ev.AgentName || got.EventType != ev.EventType || got.Status != ev.Status {
		t.Fatalf("header fields differ: %+v", got)
	}
	if got.CustomerID == nil || *got.CustomerID != id {
		t.Fatalf("customer id lost: %v", got.CustomerID)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, at)
	}
}

func TestAuditFields_NoCustomer(t *testing.T) {
	fields := auditFields(domain.AuditEvent{AgentName: domain.AgentNLP, EventType: domain.EventBatchStart})
	if _, ok := fields["customer_id"]; ok {
		t.Error("customer_id must be omitted for batch-level events")
	}
	if got := parseAuditFields(fields); got.CustomerID != nil {
		t.Errorf("expected nil customer id, got %d", *got.CustomerID)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if !(Config{URL: "redis://localhost:6379/0"}).Enabled() {
		t.Error("config with URL must be enabled")
	}
}
