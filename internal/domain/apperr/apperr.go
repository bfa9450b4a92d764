// Package apperr classifies domain failures so that transports can map them
// to status codes without knowing every concrete error.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Class is the category of a domain failure.
type Class uint8

const (
	// NotFound means a referenced entity does not exist.
	NotFound Class = iota + 1
	// InvalidState means the request is well-formed but conflicts with the
	// current state (empty cart, exhausted coupon, closed order).
	InvalidState
	// Invalid means the input failed validation.
	Invalid
	// Unauthorized means the caller could not be authenticated.
	Unauthorized
	// Forbidden means the caller is authenticated but not allowed.
	Forbidden
	// Persistence means the backing store failed.
	Persistence
)

func (c Class) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case InvalidState:
		return "invalid_state"
	case Invalid:
		return "invalid"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Persistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Classified is implemented by errors that carry a Class.
type Classified interface {
	error
	ErrorClass() Class
}

// Error is a classified error with a user-facing message.
type Error struct {
	Class   Class
	Message string
	Err     error
}

var _ Classified = (*Error)(nil)

// New returns a classified error. The result is a pointer, so package-level
// sentinels created with New can be matched with errors.Is.
func New(c Class, msg string) *Error {
	return &Error{Class: c, Message: msg}
}

// Newf is New with formatting.
func Newf(c Class, format string, args ...any) *Error {
	return &Error{Class: c, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. The message is what clients see; err stays reachable
// through Unwrap for logging.
func Wrap(c Class, err error, msg string) *Error {
	return &Error{Class: c, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorClass implements Classified.
func (e *Error) ErrorClass() Class { return e.Class }

// Find returns the outermost classified error in err's chain.
func Find(err error) (Classified, bool) {
	var c Classified
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// ClassOf reports the class of err, or zero when err is unclassified.
func ClassOf(err error) Class {
	if c, ok := Find(err); ok {
		return c.ErrorClass()
	}
	return 0
}

// Is reports whether err is classified as c.
func Is(err error, c Class) bool {
	return err != nil && ClassOf(err) == c
}

// Message returns the client-facing text for err. Persistence and
// unclassified failures get a generic message so driver details never leak.
func Message(err error) string {
	c, ok := Find(err)
	if !ok || c.ErrorClass() == Persistence {
		return "internal server error"
	}
	if e, ok := c.(*Error); ok {
		return e.Message
	}
	return c.Error()
}

// Persist wraps err as a Persistence failure unless it is already classified.
func Persist(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := Find(err); ok {
		return err
	}
	return Wrap(Persistence, err, op)
}
