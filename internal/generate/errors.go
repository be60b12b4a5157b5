package generate

import (
	"errors"
	"fmt"
)

// Kind classifies generation failures. RateLimited and NotFound are
// handled by the scheduler and never reach a caller; the rest are
// surfaced by the on-demand endpoint.
type Kind string

const (
	KindNoReadableText   Kind = "no_readable_text"
	KindProviderError    Kind = "provider_error"
	KindStorageError     Kind = "storage_error"
	KindRateLimited      Kind = "rate_limited"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the failure kind, or an empty Kind for errors outside
// the taxonomy.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
