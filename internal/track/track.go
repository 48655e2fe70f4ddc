package track

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrPointOverflow is returned when appending would take a track past the
// point count announced in its header.
var ErrPointOverflow = errors.New("track point count exceeded")

// Track is one recorded activity with its laps and samples.
type Track struct {
	Header
	Laps        []Lap        `json:"laps"`
	TrackPoints []TrackPoint `json:"trackPoints"`
}

// Lap is one segment of a track. FirstIndex and LastIndex are 0-based
// positions in the parent track's TrackPoints.
type Lap struct {
	Duration     time.Duration `json:"duration"`
	TotalTime    time.Duration `json:"totalTime"`
	Distance     uint32        `json:"distance"` // m
	Calories     uint16        `json:"calories"`
	MaxSpeed     uint16        `json:"maxSpeed"`
	MaxHeartRate uint8         `json:"maxHeartRate"`
	AvgHeartRate uint8         `json:"avgHeartRate"`
	MinHeight    int16         `json:"minHeight"`
	MaxHeight    int16         `json:"maxHeight"`
	FirstIndex   uint16        `json:"firstIndex"`
	LastIndex    uint16        `json:"lastIndex"`
}

// TrackPoint is one GPS + heart rate sample.
type TrackPoint struct {
	Latitude  float64       `json:"latitude"`  // decimal degrees
	Longitude float64       `json:"longitude"` // decimal degrees
	Altitude  int16         `json:"altitude"`  // m
	Speed     float64       `json:"speed"`     // km/h
	HeartRate uint8         `json:"heartRate"` // bpm
	Interval  time.Duration `json:"interval"`  // since previous point, or track start
	Time      time.Time     `json:"time"`      // set by UpdateTrackPointTimes
}

// New returns an empty track for the given header.
func New(h Header) *Track {
	return &Track{Header: h}
}

// Complete reports whether all announced track points have been received.
func (t *Track) Complete() bool {
	return uint64(len(t.TrackPoints)) == uint64(t.NoTrackPoints)
}

// Remaining returns how many track points are still missing.
func (t *Track) Remaining() int {
	return int(t.NoTrackPoints) - len(t.TrackPoints)
}

// AppendPoints adds points in order. It never lets the sequence grow past
// NoTrackPoints.
func (t *Track) AppendPoints(points []TrackPoint) error {
	if len(points) > t.Remaining() {
		return fmt.Errorf("%w: have %d, adding %d, announced %d",
			ErrPointOverflow, len(t.TrackPoints), len(points), t.NoTrackPoints)
	}
	t.TrackPoints = append(t.TrackPoints, points...)
	return nil
}

// UpdateTrackPointTimes sets each point's absolute time by accumulating
// intervals from the track's start date. Run it on a complete track only.
func (t *Track) UpdateTrackPointTimes() {
	var elapsed time.Duration
	for i := range t.TrackPoints {
		elapsed += t.TrackPoints[i].Interval
		t.TrackPoints[i].Time = t.Date.Add(elapsed)
	}
}

// Latest returns the track with the newest start date.
func Latest(tracks []Track) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	sorted := make([]Track, len(tracks))
	copy(sorted, tracks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted[len(sorted)-1], true
}
