package llm

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrTransport marks failures to reach the service or read its answer,
// timeouts included. The service never produced a response for them.
var ErrTransport = errors.New("llm transport failure")

// RateLimitError means the service, or the client's own request budget,
// refused the call for now. Callers should stop and back off.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Local      bool // budget exhausted before any request was sent
}

func (e *RateLimitError) Error() string {
	if e.Local {
		return "rate limited: local request budget exhausted"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d, retry after %s): %s", e.StatusCode, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
}

// APIError is a structured failure reported by the service, or a response
// the client could not make sense of. Retrying the same request will not help.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
