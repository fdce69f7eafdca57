package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vietddude/retention/internal/core/domain"
)

const insertAuditEventQuery = `
	INSERT INTO audit_log (agent_name, event_type, status, customer_id, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// InsertAuditEvent appends one audit row in its own transaction. On any
// failure the audit transaction is rolled back; the caller's business
// transaction, if any, is untouched.
func (db *DB) InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("failed to begin audit transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var customerID sql.NullInt64
	if ev.CustomerID != nil {
		customerID = sql.NullInt64{Int64: *ev.CustomerID, Valid: true}
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, insertAuditEventQuery,
		string(ev.AgentName),
		string(ev.EventType),
		string(ev.Status),
		customerID,
		ev.Details,
		createdAt,
	); err != nil {
		return wrapErr("failed to insert audit event", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("failed to commit audit event", err)
	}
	return nil
}

// RecentAuditEvents returns the newest audit rows, newest first.
func (db *DB) RecentAuditEvents(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	query := `
		SELECT agent_name, event_type, status, customer_id, details, created_at
		FROM audit_log
		ORDER BY created_at DESC, log_id DESC
		LIMIT $1
	`
	var rows []struct {
		AgentName  string         `db:"agent_name"`
		EventType  string         `db:"event_type"`
		Status     string         `db:"status"`
		CustomerID sql.NullInt64  `db:"customer_id"`
		Details    sql.NullString `db:"details"`
		CreatedAt  time.Time      `db:"created_at"`
	}
	if err := db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, wrapErr("failed to list audit events", err)
	}

	events := make([]domain.AuditEvent, 0, len(rows))
	for _, r := range rows {
		ev := domain.AuditEvent{
			AgentName: domain.AgentName(r.AgentName),
			EventType: domain.AuditEventType(r.EventType),
			Status:    domain.AuditStatus(r.Status),
			Details:   r.Details.String,
			CreatedAt: r.CreatedAt,
		}
		if r.CustomerID.Valid {
			id := r.CustomerID.Int64
			ev.CustomerID = &id
		}
		events = append(events, ev)
	}
	return events, nil
}

// OpenWork counts the rows each agent's discovery query would still find.
func (db *DB) OpenWork(ctx context.Context) (map[domain.AgentName]int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM customer_feedback f
			 LEFT JOIN feedback_analysis fa ON fa.customer_id = f.customer_id
			 WHERE fa.analysis_id IS NULL AND f.feedback_text IS NOT NULL AND f.feedback_text <> '') AS nlp,
			(SELECT COUNT(*) FROM predictions p
			 LEFT JOIN actions a ON a.customer_id = p.customer_id
			 WHERE a.action_id IS NULL) AS action,
			(SELECT COUNT(*) FROM customers c
			 LEFT JOIN predictions p ON p.customer_id = c.customer_id
			 WHERE p.prediction_id IS NULL) AS prediction
	`
	var dest struct {
		NLP        int `db:"nlp"`
		Action     int `db:"action"`
		Prediction int `db:"prediction"`
	}
	if err := db.GetContext(ctx, &dest, query); err != nil {
		return nil, wrapErr("failed to count open work", err)
	}
	return map[domain.AgentName]int{
		domain.AgentNLP:        dest.NLP,
		domain.AgentAction:     dest.Action,
		domain.AgentPrediction: dest.Prediction,
	}, nil
}
