package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectExhausted matches ConnectExhaustedError.
	ErrConnectExhausted = errors.New("voice connect retries exhausted")
	// ErrConnectAborted means Stop arrived while the session was connecting.
	ErrConnectAborted = errors.New("voice connect aborted")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("session already started")
)

// TransientConnectError is one failed connect attempt.
type TransientConnectError struct {
	Attempt int
	Err     error
}

func (e *TransientConnectError) Error() string {
	return fmt.Sprintf("connect attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransientConnectError) Unwrap() error { return e.Err }

// ConnectExhaustedError is returned by Start once every attempt failed.
type ConnectExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ConnectExhaustedError) Error() string {
	return fmt.Sprintf("voice connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectExhaustedError) Unwrap() error { return e.Err }

func (e *ConnectExhaustedError) Is(target error) bool {
	return target == ErrConnectExhausted
}
