package device

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/track"
)

// DefaultSegmentPoints is how many points the simulator packs per segment.
const DefaultSegmentPoints = 136

// Simulator is an in-memory transport.Channel that answers like a GH-625
// class device holding a fixed set of tracks. It backs demo mode and
// end-to-end tests.
type Simulator struct {
	mu            sync.Mutex
	product       string
	tracks        []track.Track
	segmentPoints int

	open    bool
	pending []byte
	stream  [][]byte // replies queued by the last download request
}

// SimulatorOption customizes a Simulator.
type SimulatorOption func(*Simulator)

// WithProduct sets the whoAmI answer. An empty product makes the simulator
// ignore whoAmI, like legacy firmware.
func WithProduct(product string) SimulatorOption {
	return func(s *Simulator) { s.product = product }
}

// WithSegmentPoints sets the maximum points per track point segment.
func WithSegmentPoints(n int) SimulatorOption {
	return func(s *Simulator) {
		if n > 0 {
			s.segmentPoints = n
		}
	}
}

// NewSimulator returns a simulator storing tracks. Tracks must be complete.
func NewSimulator(tracks []track.Track, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		product:       "GH-625M",
		tracks:        tracks,
		segmentPoints: DefaultSegmentPoints,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulator) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.pending = nil
	s.stream = nil
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Write accepts one request frame and queues the reply. Malformed or unknown
// requests get no reply.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errSimulatorClosed
	}

	req, err := protocol.DecodeRequest(p)
	if err != nil {
		return len(p), nil
	}

	switch req.Command {
	case protocol.CmdWhoAmI:
		if s.product != "" {
			id := make([]byte, 16)
			copy(id, s.product)
			s.reply(protocol.CmdWhoAmI, id)
		}
	case protocol.CmdListTracks:
		headers := make([]track.Header, len(s.tracks))
		for i := range s.tracks {
			headers[i] = s.tracks[i].Header
		}
		s.reply(protocol.CmdListTracks, protocol.EncodeTrackList(headers))
	case protocol.CmdDownloadTracks:
		indices, err := protocol.DecodeDownload(req.Parameter)
		if err != nil {
			return len(p), nil
		}
		s.stream = s.segments(indices)
		s.next(protocol.CmdDownloadTracks)
	case protocol.CmdNextSegment:
		s.next(protocol.CmdNextSegment)
	}
	return len(p), nil
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errSimulatorClosed
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Simulator) reply(cmd byte, param []byte) {
	raw, err := protocol.EncodeReply(cmd, param)
	if err != nil {
		return
	}
	s.pending = append(s.pending, raw...)
}

// next sends the following queued segment, or the end marker.
func (s *Simulator) next(cmd byte) {
	if len(s.stream) == 0 {
		s.reply(protocol.CmdEndOfStream, nil)
		return
	}
	s.reply(cmd, s.stream[0])
	s.stream = s.stream[1:]
}

func (s *Simulator) segments(indices []uint16) [][]byte {
	var out [][]byte
	for _, idx := range indices {
		t := s.byIndex(idx)
		if t == nil {
			continue
		}
		out = append(out,
			protocol.EncodeTrackInfo(t.Header),
			protocol.EncodeLapInfo(t.Header, t.Laps))
		for first := 0; first < len(t.TrackPoints); first += s.segmentPoints {
			last := min(first+s.segmentPoints, len(t.TrackPoints)) - 1
			rng := protocol.SessionRange{First: uint32(first), Last: uint32(last)}
			out = append(out, protocol.EncodeTrackPoints(t.Header, rng, t.TrackPoints[first:last+1]))
		}
	}
	return out
}

func (s *Simulator) byIndex(idx uint16) *track.Track {
	for i := range s.tracks {
		if s.tracks[i].MemoryBlockIndex == idx {
			return &s.tracks[i]
		}
	}
	return nil
}

type simulatorError string

func (e simulatorError) Error() string { return string(e) }

const errSimulatorClosed = simulatorError("simulator: channel closed")

// DemoTracks generates n plausible running tracks ending at end, newest
// first. The same seed always yields the same tracks.
func DemoTracks(n int, end time.Time, seed uint64) []track.Track {
	r := rand.New(rand.NewPCG(seed, seed^0x5eed))
	end = end.Truncate(time.Second)

	tracks := make([]track.Track, 0, n)
	for i := range n {
		start := end.AddDate(0, 0, -2*i).Add(-time.Duration(r.IntN(3600)) * time.Second)
		tracks = append(tracks, demoTrack(r, uint16(i+1), uint16(100+i), start))
	}
	return tracks
}

func demoTrack(r *rand.Rand, id, mem uint16, start time.Time) track.Track {
	const lapPoints = 100
	count := 150 + r.IntN(300)

	centerLat := 51.50 + r.Float64()*0.05
	centerLon := -0.15 + r.Float64()*0.05

	var (
		points   = make([]track.TrackPoint, count)
		elapsed  time.Duration
		distance float64 // m
		maxSpeed float64
		maxHR    uint8
		sumHR    int
		asc      int
		desc     int
		minAlt   int16 = math.MaxInt16
		maxAlt   int16 = math.MinInt16
	)
	for i := range points {
		t := float64(i) / float64(count) * 2 * math.Pi

		interval := time.Duration(10+r.IntN(40)) * 100 * time.Millisecond
		if i == 0 {
			interval = 0
		}
		speed := 8 + 6*math.Sin(t*3)*math.Sin(t*3) + r.Float64()
		hr := uint8(120 + 45*math.Sin(t)*math.Sin(t) + r.Float64()*5)
		alt := int16(20 + 15*math.Sin(t*2))

		points[i] = track.TrackPoint{
			Latitude:  math.Round((centerLat+0.006*math.Sin(t))*1e6) / 1e6,
			Longitude: math.Round((centerLon+0.009*math.Cos(t))*1e6) / 1e6,
			Altitude:  alt,
			Speed:     math.Round(speed*100) / 100,
			HeartRate: hr,
			Interval:  interval,
		}

		elapsed += interval
		distance += speed / 3.6 * interval.Seconds()
		maxSpeed = math.Max(maxSpeed, points[i].Speed)
		maxHR = max(maxHR, hr)
		sumHR += int(hr)
		minAlt = min(minAlt, alt)
		maxAlt = max(maxAlt, alt)
		if i > 0 {
			if d := int(alt) - int(points[i-1].Altitude); d > 0 {
				asc += d
			} else {
				desc -= d
			}
		}
	}

	var laps []track.Lap
	var total time.Duration
	for first := 0; first < count; first += lapPoints {
		last := min(first+lapPoints, count) - 1
		lap := track.Lap{FirstIndex: uint16(first), LastIndex: uint16(last), MinHeight: math.MaxInt16, MaxHeight: math.MinInt16}
		var lapHR int
		var lapDist float64
		for _, p := range points[first : last+1] {
			lap.Duration += p.Interval
			lapDist += p.Speed / 3.6 * p.Interval.Seconds()
			lap.MaxSpeed = max(lap.MaxSpeed, uint16(math.Round(p.Speed*100)))
			lap.MaxHeartRate = max(lap.MaxHeartRate, p.HeartRate)
			lap.MinHeight = min(lap.MinHeight, p.Altitude)
			lap.MaxHeight = max(lap.MaxHeight, p.Altitude)
			lapHR += int(p.HeartRate)
		}
		total += lap.Duration
		lap.TotalTime = total
		lap.Distance = uint32(lapDist)
		lap.AvgHeartRate = uint8(lapHR / (last - first + 1))
		lap.Calories = uint16(lapDist / 15)
		laps = append(laps, lap)
	}

	h := track.Header{
		ID:               id,
		MemoryBlockIndex: mem,
		Date:             start,
		Duration:         elapsed,
		Distance:         uint32(distance),
		Calories:         uint16(distance / 15),
		NoLaps:           uint16(len(laps)),
		NoTrackPoints:    uint32(count),
		MaxSpeed:         uint16(math.Round(maxSpeed * 100)),
		MaxHeartRate:     maxHR,
		AvgHeartRate:     uint8(sumHR / count),
		AscendingHeight:  uint16(asc),
		DescendingHeight: uint16(desc),
		MinHeight:        minAlt,
		MaxHeight:        maxAlt,
	}
	return track.Track{Header: h.With(track.AllFields), Laps: laps, TrackPoints: points}
}
