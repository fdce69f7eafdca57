package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/retention/internal/infra/storage"
)

// IsConnectionError reports whether err means the connection itself is gone.
// Statement failures (constraint violations, syntax errors) are not.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrConnectionBroken) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if code, ok := sqlState(err); ok {
		return connectionState(code)
	}
	return false
}

// IsOperationalError reports whether a connect attempt failed for reasons the
// server or network caused. Anything else, a malformed DSN for example, is
// unexpected and retried on a longer delay.
func IsOperationalError(err error) bool {
	if IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	_, ok := sqlState(err)
	return ok
}

func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

// connectionState covers class 08 (connection exception) and the
// admin/crash shutdown codes.
func connectionState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03":
		return true
	}
	return false
}

// wrapErr annotates err with op and tags connection failures with
// storage.ErrConnectionBroken.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) && !errors.Is(err, storage.ErrConnectionBroken) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrConnectionBroken, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
