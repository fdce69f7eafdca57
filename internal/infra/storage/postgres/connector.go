package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrConnectionExhausted is returned once every connect attempt has failed.
var ErrConnectionExhausted = errors.New("database connection attempts exhausted")

// Connector opens a DB with a bounded number of attempts.
type Connector struct {
	cfg   Config
	open  func(ctx context.Context, cfg Config) (*DB, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewConnector creates a connector for cfg.
func NewConnector(cfg Config) *Connector {
	return &Connector{cfg: cfg, open: NewDB, sleep: sleepContext}
}

// Connect tries up to MaxAttempts times. Operational failures wait RetryDelay
// before the next attempt, unexpected ones wait twice that.
func (c *Connector) Connect(ctx context.Context) (*DB, error) {
	attempts := c.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := c.open(ctx, c.cfg)
		if err == nil {
			slog.Info("Connected to database",
				"target", c.cfg.Target(),
				"attempt", attempt,
			)
			return db, nil
		}
		lastErr = err

		delay := c.cfg.RetryDelay
		if IsOperationalError(err) {
			slog.Warn("Database connection failed",
				"target", c.cfg.Target(),
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		} else {
			delay *= 2
			slog.Error("Unexpected error connecting to database",
				"target", c.cfg.Target(),
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		}

		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectionExhausted, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
