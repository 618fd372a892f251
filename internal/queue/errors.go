package queue

import (
	"errors"
	"fmt"
)

var ErrQueueClosed = errors.New("queue is shut down")

// Kind classifies queue errors so callers switch on a tag instead of matching
// substrings in the message.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindRetriesExhausted
	KindStuckTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindStuckTimeout:
		return "stuck_timeout"
	default:
		return "unknown"
	}
}

// Error is a tagged queue error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind extracts the Kind from err, or KindUnknown.
func ErrorKind(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}
