package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/retention/internal/core/domain"
)

// PublishAudit appends an audit event to the capped stream.
func (c *Client) PublishAudit(ctx context.Context, ev domain.AuditEvent) error {
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		MaxLen: c.maxLen,
		Approx: true,
		Values: auditFields(ev),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// RecentAudit returns up to n events from the stream, newest first.
func (c *Client) RecentAudit(ctx context.Context, n int64) ([]domain.AuditEvent, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, c.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange failed: %w", err)
	}
	events := make([]domain.AuditEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, parseAuditFields(m.Values))
	}
	return events, nil
}

// StreamLength returns the number of entries currently kept.
func (c *Client) StreamLength(ctx context.Context) (int64, error) {
	return c.rdb.XLen(ctx, c.stream).Result()
}

func auditFields(ev domain.AuditEvent) map[string]any {
	fields := map[string]any{
		"agent":      string(ev.AgentName),
		"event_type": string(ev.EventType),
		"status":     string(ev.Status),
		"details":    ev.Details,
		"created_at": ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.CustomerID != nil {
		fields["customer_id"] = strconv.FormatInt(*ev.CustomerID, 10)
	}
	return fields
}

func parseAuditFields(values map[string]any) domain.AuditEvent {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}
	ev := domain.AuditEvent{
		AgentName: domain.AgentName(str("agent")),
		EventType: domain.AuditEventType(str("event_type")),
		Status:    domain.AuditStatus(str("status")),
		Details:   str("details"),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("created_at")); err == nil {
		ev.CreatedAt = t
	}
	if id, err := strconv.ParseInt(str("customer_id"), 10, 64); err == nil {
		ev.CustomerID = &id
	}
	return ev
}
