package device

import (
	"errors"
	"fmt"

	"github.com/shaunagostinho/sq100/internal/track"
)

var (
	ErrIncompatibleHeader  = errors.New("incompatible track header")
	ErrSessionIndex        = errors.New("track point session index mismatch")
	ErrUnknownTrackID      = errors.New("unknown track id")
	ErrIncompleteStream    = errors.New("incomplete track stream")
	ErrUnsupportedFirmware = errors.New("unsupported firmware")
	ErrTooManyTracks       = errors.New("too many tracks requested")
)

// IncompatibleHeaderError reports a segment whose header disagrees with the
// track being assembled.
type IncompatibleHeaderError struct {
	Segment string
	Track   track.Header
	Got     track.Header
}

func (e *IncompatibleHeaderError) Error() string {
	return fmt.Sprintf("device: %s header %v does not match %v", e.Segment, e.Got, e.Track)
}

func (e *IncompatibleHeaderError) Unwrap() error { return ErrIncompatibleHeader }

// SessionIndexError reports a track point segment that does not continue the
// current track without gaps.
type SessionIndexError struct {
	TrackID   uint16
	First     uint32
	Last      uint32
	Have      int // points accumulated before this segment
	Delivered int // points carried by this segment
}

func (e *SessionIndexError) Error() string {
	return fmt.Sprintf("device: track %d: session %d-%d with %d points does not follow %d accumulated points",
		e.TrackID, e.First, e.Last, e.Delivered, e.Have)
}

func (e *SessionIndexError) Unwrap() error { return ErrSessionIndex }

// UnknownTrackIDError reports a requested id missing from the track list.
type UnknownTrackIDError struct {
	ID uint16
}

func (e *UnknownTrackIDError) Error() string {
	return fmt.Sprintf("device: unknown track id %d", e.ID)
}

func (e *UnknownTrackIDError) Unwrap() error { return ErrUnknownTrackID }

// UnexpectedSegmentError reports a segment the download state machine cannot
// accept in its current state.
type UnexpectedSegmentError struct {
	State   string
	Segment string
}

func (e *UnexpectedSegmentError) Error() string {
	return fmt.Sprintf("device: unexpected %s while %s", e.Segment, e.State)
}

func (e *UnexpectedSegmentError) Unwrap() error { return ErrIncompleteStream }

// MissingTracksError reports an end of stream before every requested track
// arrived.
type MissingTracksError struct {
	Requested int
	Received  int
}

func (e *MissingTracksError) Error() string {
	return fmt.Sprintf("device: stream ended after %d of %d tracks", e.Received, e.Requested)
}

func (e *MissingTracksError) Unwrap() error { return ErrIncompleteStream }

// UnrequestedTrackError reports a track info segment for a different track
// than the next one requested.
type UnrequestedTrackError struct {
	Want uint16
	Got  uint16
}

func (e *UnrequestedTrackError) Error() string {
	return fmt.Sprintf("device: stream sent track %d, want %d", e.Got, e.Want)
}

func (e *UnrequestedTrackError) Unwrap() error { return ErrIncompleteStream }
