package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means a read timed out before any byte arrived. Only this
	// condition is retried.
	ErrNoData = errors.New("no data")
	// ErrShortRead means a read stopped partway through the expected bytes.
	ErrShortRead    = errors.New("short read")
	ErrNotConnected = errors.New("not connected")
)

// Error wraps a failure of one transport operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
