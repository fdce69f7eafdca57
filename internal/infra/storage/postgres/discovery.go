package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vietddude/retention/internal/core/domain"
)

const findOpenFeedbackQuery = `
	SELECT f.customer_id, f.feedback_text, f.submitted_at
	FROM customer_feedback f
	LEFT JOIN feedback_analysis fa ON fa.customer_id = f.customer_id
	WHERE fa.analysis_id IS NULL
	  AND f.feedback_text IS NOT NULL
	  AND f.feedback_text <> ''
	ORDER BY f.submitted_at ASC, f.customer_id ASC
	LIMIT $1
`

// FindOpenFeedback returns feedback that has no analysis yet.
func (db *DB) FindOpenFeedback(ctx context.Context, limit int) ([]domain.FeedbackItem, error) {
	var rows []struct {
		CustomerID   int64     `db:"customer_id"`
		FeedbackText string    `db:"feedback_text"`
		SubmittedAt  time.Time `db:"submitted_at"`
	}
	if err := db.SelectContext(ctx, &rows, findOpenFeedbackQuery, limit); err != nil {
		return nil, wrapErr("failed to find open feedback", err)
	}

	items := make([]domain.FeedbackItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, domain.FeedbackItem{
			CustomerID:   r.CustomerID,
			FeedbackText: r.FeedbackText,
			SubmittedAt:  r.SubmittedAt,
		})
	}
	return items, nil
}

const findOpenPredictionsQuery = `
	SELECT p.customer_id, p.churn_probability, p.predicted_at,
	       fa.feedback_summary, fa.sentiment, fa.key_topics
	FROM predictions p
	LEFT JOIN actions a ON a.customer_id = p.customer_id
	LEFT JOIN feedback_analysis fa ON fa.customer_id = p.customer_id
	WHERE a.action_id IS NULL
	ORDER BY p.predicted_at ASC, p.customer_id ASC
	LIMIT $1
`

// FindOpenPredictions returns predictions that have no action yet, joined
// with the customer's feedback analysis when one exists.
func (db *DB) FindOpenPredictions(ctx context.Context, limit int) ([]domain.PredictionItem, error) {
	var rows []struct {
		CustomerID  int64           `db:"customer_id"`
		Probability sql.NullFloat64 `db:"churn_probability"`
		PredictedAt time.Time       `db:"predicted_at"`
		Summary     sql.NullString  `db:"feedback_summary"`
		Sentiment   sql.NullString  `db:"sentiment"`
		Topics      sql.NullString  `db:"key_topics"`
	}
	if err := db.SelectContext(ctx, &rows, findOpenPredictionsQuery, limit); err != nil {
		return nil, wrapErr("failed to find open predictions", err)
	}

	items := make([]domain.PredictionItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, domain.PredictionItem{
			CustomerID:  r.CustomerID,
			Probability: r.Probability.Float64,
			Summary:     r.Summary.String,
			Sentiment:   r.Sentiment.String,
			Topics:      r.Topics.String,
			PredictedAt: r.PredictedAt,
		})
	}
	return items, nil
}

const findUnscoredCustomersQuery = `
	SELECT c.customer_id,
	       COALESCE(c.last_activity_days, 0) AS last_activity_days,
	       COALESCE(c.complaints_count, 0) AS complaints_count,
	       fa.sentiment,
	       c.created_at
	FROM customers c
	LEFT JOIN predictions p ON p.customer_id = c.customer_id
	LEFT JOIN feedback_analysis fa ON fa.customer_id = c.customer_id
	WHERE p.prediction_id IS NULL
	ORDER BY c.created_at ASC, c.customer_id ASC
	LIMIT $1
`

// FindUnscoredCustomers returns customers that have no prediction yet.
func (db *DB) FindUnscoredCustomers(ctx context.Context, limit int) ([]domain.CustomerItem, error) {
	var rows []struct {
		CustomerID       int64          `db:"customer_id"`
		LastActivityDays int            `db:"last_activity_days"`
		ComplaintsCount  int            `db:"complaints_count"`
		Sentiment        sql.NullString `db:"sentiment"`
		CreatedAt        time.Time      `db:"created_at"`
	}
	if err := db.SelectContext(ctx, &rows, findUnscoredCustomersQuery, limit); err != nil {
		return nil, wrapErr("failed to find unscored customers", err)
	}

	items := make([]domain.CustomerItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, domain.CustomerItem{
			CustomerID:       r.CustomerID,
			LastActivityDays: r.LastActivityDays,
			ComplaintsCount:  r.ComplaintsCount,
			Sentiment:        r.Sentiment.String,
			CreatedAt:        r.CreatedAt,
		})
	}
	return items, nil
}
