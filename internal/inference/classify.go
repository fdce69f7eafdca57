package inference

import (
	"github.com/cockroachdb/errors"

	"github.com/vietddude/retention/internal/core/domain"
	"github.com/vietddude/retention/internal/infra/llm"
)

// Classify maps an inference error onto an outcome kind.
func Classify(err error) domain.OutcomeKind {
	if err == nil {
		return domain.OutcomeSuccess
	}

	var rl *llm.RateLimitError
	if errors.As(err, &rl) {
		return domain.OutcomeRateLimited
	}

	// Service errors and failed round trips (connection, timeout) are both
	// reported as API errors.
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) || errors.Is(err, llm.ErrTransport) {
		return domain.OutcomePermanentFailure
	}

	return domain.OutcomeTransientFailure
}

// failed converts err into a non-success outcome.
func failed[T any](err error) domain.Outcome[T] {
	return domain.Failed[T](Classify(err), err.Error())
}
