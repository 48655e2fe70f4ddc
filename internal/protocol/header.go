package protocol

import (
	"encoding/binary"
	"time"

	"github.com/shaunagostinho/sq100/internal/track"
)

// Decoder interprets reply parameters. Dates are built in Location; the zero
// value decodes them as UTC.
type Decoder struct {
	Location *time.Location
}

func (d Decoder) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// Offsets inside the 29-byte header.
const (
	offDate          = 0
	offNoTrackPoints = 6
	offDuration      = 10
	offDistance      = 14
	offNoLaps        = 18
	offVariant       = 20
	offMemoryIndex   = 22 // variant: track list, track info
	offID            = 26 // variant: track list, track info
	offFirstIndex    = 20 // variant: track points
	offLastIndex     = 24 // variant: track points
)

// deciseconds converts a device duration to time.Duration.
func deciseconds(ds uint32) time.Duration {
	return time.Duration(ds) * 100 * time.Millisecond
}

func toDeciseconds(d time.Duration) uint32 {
	return uint32(d / (100 * time.Millisecond))
}

// summary decodes the fields common to every header layout.
func (d Decoder) summary(b []byte) track.Header {
	be := binary.BigEndian
	h := track.Header{
		Date: time.Date(2000+int(b[offDate]), time.Month(b[offDate+1]), int(b[offDate+2]),
			int(b[offDate+3]), int(b[offDate+4]), int(b[offDate+5]), 0, d.location()),
		NoTrackPoints: be.Uint32(b[offNoTrackPoints:]),
		Duration:      deciseconds(be.Uint32(b[offDuration:])),
		Distance:      be.Uint32(b[offDistance:]),
		NoLaps:        be.Uint16(b[offNoLaps:]),
	}
	return h.With(track.Summary)
}

// identified adds the memory block index and id carried by track list and
// track info headers.
func (d Decoder) identified(b []byte) track.Header {
	h := d.summary(b)
	h.MemoryBlockIndex = binary.BigEndian.Uint16(b[offMemoryIndex:])
	h.ID = binary.BigEndian.Uint16(b[offID:])
	return h.With(track.FieldMemoryBlockIndex | track.FieldID)
}

func checkTag(b []byte, want byte) error {
	if got := b[HeaderTagOffset]; got != want {
		return &MessageTypeError{Expected: want, Actual: got}
	}
	return nil
}

// putSummary writes the common header fields into b[:HeaderSize].
func putSummary(b []byte, h track.Header) {
	be := binary.BigEndian
	year := h.Date.Year() - 2000
	if year < 0 {
		year = 0
	}
	b[offDate] = byte(year)
	b[offDate+1] = byte(h.Date.Month())
	b[offDate+2] = byte(h.Date.Day())
	b[offDate+3] = byte(h.Date.Hour())
	b[offDate+4] = byte(h.Date.Minute())
	b[offDate+5] = byte(h.Date.Second())
	be.PutUint32(b[offNoTrackPoints:], h.NoTrackPoints)
	be.PutUint32(b[offDuration:], toDeciseconds(h.Duration))
	be.PutUint32(b[offDistance:], h.Distance)
	be.PutUint16(b[offNoLaps:], h.NoLaps)
}

func putIdentified(b []byte, h track.Header) {
	putSummary(b, h)
	binary.BigEndian.PutUint16(b[offMemoryIndex:], h.MemoryBlockIndex)
	binary.BigEndian.PutUint16(b[offID:], h.ID)
}
