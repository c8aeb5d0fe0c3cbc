package chat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where in the submission/streaming flow an error arose.
type ErrorKind string

const (
	// KindValidation covers rejected input; nothing was sent.
	KindValidation ErrorKind = "validation"
	// KindBusy means a query was already in flight; nothing was mutated.
	KindBusy ErrorKind = "busy"
	// KindTransport covers channel open failures, mid-stream disconnects
	// and read deadline expiry.
	KindTransport ErrorKind = "transport"
	// KindProtocol covers error frames reported by the server itself.
	KindProtocol ErrorKind = "protocol"
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrBusy       = errors.New("a query is already in flight")
)

// Error carries an ErrorKind alongside the underlying cause so callers can
// decide presentation without string matching.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
