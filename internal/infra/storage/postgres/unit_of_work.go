package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/storage"
	"github.com/vietddude/retention/internal/metrics"
)

// UnitOfWork bundles one batch's result rows into a single database
// transaction, ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// Begin opens a business transaction.
func (db *DB) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("failed to begin transaction", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return storage.ErrTxDone
	}
	err := u.tx.Commit()
	u.tx = nil
	return wrapErr("failed to commit", err)
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return wrapErr("failed to rollback", err)
}

const insertFeedbackAnalysesQuery = `
	INSERT INTO feedback_analysis (customer_id, feedback_summary, sentiment, key_topics)
	SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[])
	ON CONFLICT (customer_id) DO NOTHING
`

// SaveFeedbackAnalyses inserts analyses with a single multi-row INSERT.
func (u *UnitOfWork) SaveFeedbackAnalyses(ctx context.Context, rows []domain.FeedbackAnalysis) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	customerIDs := make([]int64, len(rows))
	summaries := make([]string, len(rows))
	sentiments := make([]string, len(rows))
	topics := make([]string, len(rows))
	for i, r := range rows {
		customerIDs[i] = r.CustomerID
		summaries[i] = r.Summary
		sentiments[i] = r.Sentiment
		topics[i] = r.Topics
	}

	metrics.DBBatchSize.WithLabelValues("save_feedback_analyses").Observe(float64(len(rows)))

	return u.exec(ctx, "failed to save feedback analyses", insertFeedbackAnalysesQuery,
		u.db.array(customerIDs),
		u.db.array(summaries),
		u.db.array(sentiments),
		u.db.array(topics),
	)
}

const insertActionsQuery = `
	INSERT INTO actions (customer_id, segment, recommended_action)
	SELECT * FROM unnest($1::bigint[], $2::text[], $3::text[])
	ON CONFLICT (customer_id) DO NOTHING
`

// SaveActions inserts recommended actions with a single multi-row INSERT.
func (u *UnitOfWork) SaveActions(ctx context.Context, rows []domain.Action) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	customerIDs := make([]int64, len(rows))
	segments := make([]string, len(rows))
	actions := make([]string, len(rows))
	for i, r := range rows {
		customerIDs[i] = r.CustomerID
		segments[i] = string(r.Segment)
		actions[i] = r.RecommendedAction
	}

	metrics.DBBatchSize.WithLabelValues("save_actions").Observe(float64(len(rows)))

	return u.exec(ctx, "failed to save actions", insertActionsQuery,
		u.db.array(customerIDs),
		u.db.array(segments),
		u.db.array(actions),
	)
}

const insertPredictionsQuery = `
	INSERT INTO predictions (customer_id, churn_probability)
	SELECT * FROM unnest($1::bigint[], $2::double precision[])
	ON CONFLICT (customer_id) DO NOTHING
`

// SavePredictions inserts churn probabilities with a single multi-row INSERT.
func (u *UnitOfWork) SavePredictions(ctx context.Context, rows []domain.Prediction) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	customerIDs := make([]int64, len(rows))
	probabilities := make([]float64, len(rows))
	for i, r := range rows {
		customerIDs[i] = r.CustomerID
		probabilities[i] = r.ChurnProbability
	}

	metrics.DBBatchSize.WithLabelValues("save_predictions").Observe(float64(len(rows)))

	return u.exec(ctx, "failed to save predictions", insertPredictionsQuery,
		u.db.array(customerIDs),
		u.db.array(probabilities),
	)
}

func (u *UnitOfWork) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	if u.tx == nil {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrTxDone)
	}
	res, err := u.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(op, err)
	}
	return n, nil
}
