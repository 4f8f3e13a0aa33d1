package errclass

import (
	"errors"
	"fmt"
)

// Kind is the surfaced error class. Every error leaving the fetch or
// mutation layer carries exactly one Kind so callers can decide between
// retry, surface-to-user, and fail-fast.
type Kind string

const (
	// NotFoundOrDenied covers both a missing row and a row hidden by
	// row-level security; the backend cannot tell the two apart.
	NotFoundOrDenied     Kind = "not_found_or_denied"
	Conflict             Kind = "conflict"
	ReferentialViolation Kind = "referential_violation"
	PermissionDenied     Kind = "permission_denied"
	TransientNetwork     Kind = "transient_network"
	Validation           Kind = "validation"
	Unknown              Kind = "unknown"
)

// Error pairs an underlying error with its class and the operation that
// raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a class and operation name. A nil err returns nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the class from an error chain, Unknown if absent.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Unknown
}

// Retryable reports whether an error of this class may be retried.
// NotFoundOrDenied and PermissionDenied must never be retried: the answer
// will not change and retrying hammers the access-control path.
func Retryable(kind Kind) bool {
	return kind == TransientNetwork
}
