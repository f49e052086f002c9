package breaker

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies breaker-generated errors.
type ErrorType int

const (
	// ErrorTypeOpen marks rejections while the circuit is open.
	ErrorTypeOpen ErrorType = iota
	// ErrorTypeTimeout marks operations that exceeded the call timeout.
	ErrorTypeTimeout
)

// Error provides detailed error information.
type Error struct {
	Type    ErrorType
	State   State
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("circuit-breaker [%s]: %s: %v", e.State, e.Message, e.Cause)
	}
	return fmt.Sprintf("circuit-breaker [%s]: %s", e.State, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var (
	// ErrOpen is returned when the breaker is open and rejects a call.
	ErrOpen = &Error{
		Type:    ErrorTypeOpen,
		State:   Open,
		Message: "circuit breaker is open",
	}
	// ErrTimeout indicates the operation exceeded the configured call timeout.
	ErrTimeout = &Error{
		Type:    ErrorTypeTimeout,
		Message: "execution timeout",
		Cause:   context.DeadlineExceeded,
	}
)

// IsOpen reports whether err is a circuit-open rejection.
func IsOpen(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeOpen
}

// IsTimeout reports whether err is a breaker-enforced timeout.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeTimeout
}
