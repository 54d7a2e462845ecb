package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can switch on failure mode
// instead of parsing messages.
type Kind int

const (
	// InvalidArgument marks a null required field, negative bound, NaN
	// score, negative timeout, or an empty queue list.
	InvalidArgument Kind = iota
	// NotFound marks a lookup against something the engine expects to
	// exist (e.g. heartbeat against an unregistered server).
	NotFound
	// InvalidRange marks a recoverable range/bound violation.
	InvalidRange
	// LockTimeout marks a distributed lock that could not be acquired
	// within its wait budget.
	LockTimeout
	// Cancelled marks a blocking operation that observed cancellation.
	Cancelled
	// LoadException marks a job whose invocation data failed to
	// deserialize. The engine stores invocation data verbatim and never
	// returns this kind; JobData has no field that carries a load error.
	LoadException
	// Internal marks an invariant breach inside the writer.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case InvalidRange:
		return "invalid_range"
	case LockTimeout:
		return "lock_timeout"
	case Cancelled:
		return "cancelled"
	case LoadException:
		return "load_exception"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the typed error value every engine operation returns on failure.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error, wrapping a plain message as err when msg is set.
func newError(op string, kind Kind, msg string) *Error {
	var err error
	if msg != "" {
		err = errors.New(msg)
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
