package domain

// OutcomeKind tags the result of one inference call.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomePermanentFailure
	OutcomeTransientFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomePermanentFailure:
		return "permanent_failure"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of inferring one work item. Result is only
// meaningful when Kind is OutcomeSuccess; Reason describes the failure otherwise.
type Outcome[T any] struct {
	Kind   OutcomeKind
	Result T
	Reason string
}

// Succeeded wraps a result.
func Succeeded[T any](result T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSuccess, Result: result}
}

// Failed builds a non-success outcome of the given kind.
func Failed[T any](kind OutcomeKind, reason string) Outcome[T] {
	return Outcome[T]{Kind: kind, Reason: reason}
}

// OK reports whether the outcome carries a result.
func (o Outcome[T]) OK() bool {
	return o.Kind == OutcomeSuccess
}
