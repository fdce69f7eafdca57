package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/retention/internal/metrics"
)

const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MaxConns       int           `yaml:"max_conns"`
}

// DSN returns URL when set, otherwise a postgres:// URL built from the parts.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Target is the host/database pair used in logs. It never includes credentials.
func (c Config) Target() string {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return u.Host + u.Path
		}
		return "database"
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Name)
}

// DB wraps the PostgreSQL connection.
type DB struct {
	*sqlx.DB
	driver string
	target string
	closed atomic.Bool
}

// NewDB opens and pings a connection.
//
// Two connections are enough: the business transaction holds one while audit
// rows commit on the other.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPgx
	}

	db, err := sqlx.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: driver, target: cfg.Target()}, nil
}

// Wrap adapts an already open *sql.DB. driver decides how array parameters
// are bound and must name the driver the handle was opened with.
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: sqlx.NewDb(db, driver), driver: driver, target: driver}
}

// Target describes where the handle points, without credentials.
func (db *DB) Target() string {
	return db.target
}

// Healthy reports whether the handle is still usable.
func (db *DB) Healthy() bool {
	return !db.closed.Load()
}

// Close closes the handle. Calling it twice is a no-op.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.DB.Close()
}

// CollectStats publishes pool usage until ctx is done.
func (db *DB) CollectStats(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if db.closed.Load() {
				return
			}
			stats := db.Stats()
			if stats.MaxOpenConnections > 0 {
				metrics.DBConnectionPoolUsage.Set(
					float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100,
				)
			}
		}
	}
}

// array binds a Go slice as a PostgreSQL array. pgx encodes slices natively,
// lib/pq needs its Array wrapper.
func (db *DB) array(v any) any {
	if db.driver == DriverPQ {
		return pq.Array(v)
	}
	return v
}
