package storage

import (
	"context"
	"errors"

	"github.com/vietddude/retention/internal/core/domain"
)

var (
	// ErrConnectionBroken marks store errors caused by a dead connection rather
	// than by the statement itself. Callers close the handle and reconnect.
	ErrConnectionBroken = errors.New("database connection broken")

	// ErrTxDone is returned when a unit of work is used after Commit or Rollback.
	ErrTxDone = errors.New("transaction already completed")
)

// FeedbackSource discovers feedback that has not been analysed.
type FeedbackSource interface {
	// FindOpenFeedback returns up to limit non-empty feedback rows without an
	// analysis, oldest submission first.
	FindOpenFeedback(ctx context.Context, limit int) ([]domain.FeedbackItem, error)
}

// PredictionSource discovers predictions that have no recommended action.
type PredictionSource interface {
	// FindOpenPredictions returns up to limit predictions without an action,
	// oldest prediction first.
	FindOpenPredictions(ctx context.Context, limit int) ([]domain.PredictionItem, error)
}

// CustomerSource discovers customers that have not been scored.
type CustomerSource interface {
	// FindUnscoredCustomers returns up to limit customers without a
	// prediction, oldest customer first.
	FindUnscoredCustomers(ctx context.Context, limit int) ([]domain.CustomerItem, error)
}

// UnitOfWork is one business transaction. Every Save is a single batched,
// conflict-safe insert: rows whose customer already has a result are
// dropped, never overwritten. Saves return the number of rows inserted.
type UnitOfWork interface {
	SaveFeedbackAnalyses(ctx context.Context, rows []domain.FeedbackAnalysis) (int64, error)
	SaveActions(ctx context.Context, rows []domain.Action) (int64, error)
	SavePredictions(ctx context.Context, rows []domain.Prediction) (int64, error)

	Commit() error
	// Rollback is safe to call after Commit or a previous Rollback.
	Rollback() error
}

// Store is everything one agent cycle reads from or writes to.
type Store interface {
	FeedbackSource
	PredictionSource
	CustomerSource

	// Begin opens a business transaction.
	Begin(ctx context.Context) (UnitOfWork, error)
}

// AuditWriter appends audit rows. Each call commits on its own, independent
// of any open UnitOfWork.
type AuditWriter interface {
	InsertAuditEvent(ctx context.Context, event domain.AuditEvent) error
}
