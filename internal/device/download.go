package device

import (
	"github.com/rs/zerolog"

	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/track"
)

type state int

const (
	stateAwaitingTrackInfo state = iota
	stateAwaitingLapInfo
	stateAwaitingTrackPoints
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateAwaitingTrackInfo:
		return "awaiting track info"
	case stateAwaitingLapInfo:
		return "awaiting lap info"
	case stateAwaitingTrackPoints:
		return "awaiting track points"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// download assembles tracks from a segment stream. Failed is absorbing.
type download struct {
	state   state
	current *track.Track
	tracks  []track.Track

	listed      map[uint16]track.Header
	ids         []uint16 // requested, in stream order
	position    int      // 1-based index of the current track
	totalPoints int
	received    int

	log      zerolog.Logger
	progress func(Progress)
}

func (d *download) fail() { d.state = stateFailed }

func (d *download) unexpected(seg protocol.Segment) error {
	err := &UnexpectedSegmentError{State: d.state.String(), Segment: protocol.SegmentName(seg)}
	d.fail()
	return err
}

// handle advances the state machine by one segment.
func (d *download) handle(seg protocol.Segment) error {
	d.log.Debug().
		Str("state", d.state.String()).
		Str("segment", protocol.SegmentName(seg)).
		Msg("segment received")

	switch d.state {
	case stateAwaitingTrackInfo:
		switch v := seg.(type) {
		case *protocol.EndOfStream:
			if len(d.tracks) != len(d.ids) {
				d.fail()
				return &MissingTracksError{Requested: len(d.ids), Received: len(d.tracks)}
			}
			d.state = stateDone
			return nil
		case *protocol.TrackInfo:
			if d.position >= len(d.ids) {
				return d.unexpected(seg)
			}
			want := d.ids[d.position]
			if v.Header.ID != want {
				d.fail()
				return &UnrequestedTrackError{Want: want, Got: v.Header.ID}
			}
			if listed := d.listed[want]; !listed.CompatibleTo(v.Header) {
				d.fail()
				return &IncompatibleHeaderError{Segment: protocol.SegmentName(seg), Track: listed, Got: v.Header}
			}
			d.current = track.New(v.Header)
			d.position++
			d.state = stateAwaitingLapInfo
		default:
			return d.unexpected(seg)
		}

	case stateAwaitingLapInfo:
		v, ok := seg.(*protocol.LapInfo)
		if !ok {
			return d.unexpected(seg)
		}
		if err := d.compatible(seg, v.Header); err != nil {
			return err
		}
		d.current.Laps = v.Laps
		d.state = stateAwaitingTrackPoints
		d.finishIfComplete()

	case stateAwaitingTrackPoints:
		v, ok := seg.(*protocol.TrackPoints)
		if !ok {
			return d.unexpected(seg)
		}
		if err := d.compatible(seg, v.Header); err != nil {
			return err
		}
		have := len(d.current.TrackPoints)
		if int64(v.Range.First) != int64(have) || v.Range.Len() != int64(len(v.Points)) ||
			d.current.AppendPoints(v.Points) != nil {
			d.fail()
			return &SessionIndexError{
				TrackID:   d.current.ID,
				First:     v.Range.First,
				Last:      v.Range.Last,
				Have:      have,
				Delivered: len(v.Points),
			}
		}
		d.received += len(v.Points)
		d.finishIfComplete()

	default:
		return d.unexpected(seg)
	}

	d.report()
	return nil
}

func (d *download) compatible(seg protocol.Segment, h track.Header) error {
	if d.current.CompatibleTo(h) {
		return nil
	}
	d.fail()
	return &IncompatibleHeaderError{Segment: protocol.SegmentName(seg), Track: d.current.Header, Got: h}
}

func (d *download) finishIfComplete() {
	if !d.current.Complete() {
		return
	}
	d.log.Debug().Uint16("id", d.current.ID).Int("points", len(d.current.TrackPoints)).Msg("track complete")
	d.tracks = append(d.tracks, *d.current)
	d.state = stateAwaitingTrackInfo
}

func (d *download) report() {
	if d.progress == nil || d.current == nil {
		return
	}
	d.progress(Progress{
		TrackID:     d.current.ID,
		Track:       d.position,
		Tracks:      len(d.ids),
		Points:      d.received,
		TotalPoints: d.totalPoints,
		State:       d.state.String(),
	})
}
