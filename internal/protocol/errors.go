package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrFrameLength      = errors.New("frame length mismatch")
	ErrFrameChecksum    = errors.New("frame checksum mismatch")
	ErrWrongMessageType = errors.New("wrong message type")
	ErrShortPayload     = errors.New("payload too short")
)

// LengthError reports a declared length that disagrees with the bytes present.
type LengthError struct {
	Declared int
	Actual   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("protocol: frame length mismatch: declared %d, got %d", e.Declared, e.Actual)
}

func (e *LengthError) Unwrap() error { return ErrFrameLength }

// ChecksumError reports a trailing checksum that does not match the frame.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("protocol: frame checksum mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrFrameChecksum }

// MessageTypeError reports a segment whose type tag is not the one expected.
type MessageTypeError struct {
	Expected byte
	Actual   byte
}

func (e *MessageTypeError) Error() string {
	return fmt.Sprintf("protocol: wrong message type: expected 0x%02X, got 0x%02X", e.Expected, e.Actual)
}

func (e *MessageTypeError) Unwrap() error { return ErrWrongMessageType }

func shortPayload(what string, need, have int) error {
	return fmt.Errorf("protocol: %s: %w: need %d bytes, have %d", what, ErrShortPayload, need, have)
}
