package retry

import (
	"errors"
	"fmt"
)

// Kind tells the retry engine whether a failed attempt is worth repeating.
type Kind int

const (
	// KindTransient marks a failure that may succeed if retried unchanged later.
	KindTransient Kind = iota
	// KindPermanent marks a failure that will not change within the retry horizon.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error wraps the error observed at the point of failure together with its
// classification. The classification is fixed at construction.
type Error struct {
	Kind Kind
	Err  error
}

// Transient classifies err as retryable.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent classifies err as not retryable.
func Permanent(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Inner drops the classification and returns the wrapped error.
func (e *Error) Inner() error {
	return e.Err
}

// KindOf reports the classification carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return 0, false
}

// IsPermanent reports whether err carries a permanent classification.
func IsPermanent(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindPermanent
}

// IsTransient reports whether err carries a transient classification.
func IsTransient(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransient
}

// Inner unwraps the classification from err. Errors without one are
// returned unchanged.
func Inner(err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Err
	}
	return err
}
