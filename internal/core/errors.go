package core

import (
	"errors"
	"fmt"
)

// ErrorKind tells the job wrapper how to treat a failure.
type ErrorKind int

const (
	// KindRetryable failures are requeued until the retry budget is spent.
	KindRetryable ErrorKind = iota
	// KindUnretryable failures are terminal on first sight.
	KindUnretryable
	// KindBenign failures are expected provider races and count as success.
	KindBenign
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindUnretryable:
		return "unretryable"
	case KindBenign:
		return "benign"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error attaches a kind to an underlying error.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Unretryable marks err as terminal.
func Unretryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnretryable, Err: err}
}

// Unretryablef formats a new terminal error.
func Unretryablef(format string, args ...any) error {
	return Unretryable(fmt.Errorf(format, args...))
}

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRetryable, Err: err}
}

// Benign marks err as an expected condition.
func Benign(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindBenign, Err: err}
}

// KindOf returns the kind of the outermost marked error in the chain.
// Unmarked errors, deadline overruns included, are retryable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRetryable
}

// Provider error sentinels. Adapters wrap them so dispatch code can use errors.Is.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrStaleRef         = errors.New("stale ref")
	ErrStatusTransition = errors.New("status already transitioning")
)
