package protocol

import (
	"fmt"

	"github.com/shaunagostinho/sq100/internal/track"
)

// Segment is one reply of a download stream: *TrackInfo, *LapInfo,
// *TrackPoints or *EndOfStream.
type Segment interface {
	segment()
}

// TrackInfo opens a new track.
type TrackInfo struct {
	Header track.Header
}

// LapInfo carries all laps of the current track.
type LapInfo struct {
	Header track.Header
	Laps   []track.Lap
}

// TrackPoints carries a contiguous run of the current track's points.
type TrackPoints struct {
	Header track.Header
	Range  SessionRange
	Points []track.TrackPoint
}

// EndOfStream closes the download.
type EndOfStream struct{}

func (*TrackInfo) segment()   {}
func (*LapInfo) segment()     {}
func (*TrackPoints) segment() {}
func (*EndOfStream) segment() {}

// Segment routes a download reply on its command byte and then on the header
// tag.
func (d Decoder) Segment(f Frame) (Segment, error) {
	if f.Command == CmdEndOfStream {
		return &EndOfStream{}, nil
	}
	if len(f.Parameter) < HeaderSize {
		return nil, shortPayload("segment", HeaderSize, len(f.Parameter))
	}

	switch tag := f.Parameter[HeaderTagOffset]; tag {
	case TagTrackInfo:
		h, err := d.TrackInfo(f.Parameter)
		if err != nil {
			return nil, err
		}
		return &TrackInfo{Header: h}, nil
	case TagLapInfo:
		h, laps, err := d.LapInfo(f.Parameter)
		if err != nil {
			return nil, err
		}
		return &LapInfo{Header: h, Laps: laps}, nil
	case TagTrackPoints:
		h, rng, points, err := d.TrackPoints(f.Parameter)
		if err != nil {
			return nil, err
		}
		return &TrackPoints{Header: h, Range: rng, Points: points}, nil
	default:
		return nil, fmt.Errorf("protocol: segment tag 0x%02X: %w", tag, ErrWrongMessageType)
	}
}

// SegmentName names a segment for logs and errors.
func SegmentName(s Segment) string {
	switch s.(type) {
	case *TrackInfo:
		return "track info"
	case *LapInfo:
		return "lap info"
	case *TrackPoints:
		return "track points"
	case *EndOfStream:
		return "end of stream"
	default:
		return "unknown"
	}
}
