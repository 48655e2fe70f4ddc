package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/shaunagostinho/sq100/internal/track"
)

// Offsets inside the track info block, relative to its start.
const (
	infoCalories  = 0
	infoMaxSpeed  = 4
	infoMaxHR     = 6
	infoAvgHR     = 7
	infoAscending = 8
	infoDescend   = 10
	infoMinHeight = 12
	infoMaxHeight = 14
)

// Offsets inside a lap record.
const (
	lapDuration   = 0
	lapTotalTime  = 4
	lapDistance   = 8
	lapCalories   = 12
	lapMaxSpeed   = 16
	lapMaxHR      = 18
	lapAvgHR      = 19
	lapMinHeight  = 20
	lapMaxHeight  = 22
	lapFirstIndex = 37
	lapLastIndex  = 39
)

// Offsets inside a track point record.
const (
	pointLatitude  = 0
	pointLongitude = 4
	pointAltitude  = 8
	pointSpeed     = 12
	pointHeartRate = 14
	pointInterval  = 17
)

const (
	coordScale = 1e6
	speedScale = 100
)

// TrackList decodes the reply to CmdListTracks: a flat run of 29-byte
// records. The tag byte of each record is not checked.
func (d Decoder) TrackList(param []byte) ([]track.Track, error) {
	if len(param)%HeaderSize != 0 {
		return nil, fmt.Errorf("protocol: track list: %w: %d bytes is not a multiple of %d",
			ErrShortPayload, len(param), HeaderSize)
	}
	tracks := make([]track.Track, 0, len(param)/HeaderSize)
	for off := 0; off < len(param); off += HeaderSize {
		tracks = append(tracks, *track.New(d.identified(param[off : off+HeaderSize])))
	}
	return tracks, nil
}

// TrackInfo decodes the first segment of a track: header plus info block.
func (d Decoder) TrackInfo(param []byte) (track.Header, error) {
	if len(param) < HeaderSize+TrackInfoSize {
		return track.Header{}, shortPayload("track info", HeaderSize+TrackInfoSize, len(param))
	}
	if err := checkTag(param, TagTrackInfo); err != nil {
		return track.Header{}, err
	}

	be := binary.BigEndian
	h := d.identified(param)
	info := param[HeaderSize:]
	h.Calories = be.Uint16(info[infoCalories:])
	h.MaxSpeed = be.Uint16(info[infoMaxSpeed:])
	h.MaxHeartRate = info[infoMaxHR]
	h.AvgHeartRate = info[infoAvgHR]
	h.AscendingHeight = be.Uint16(info[infoAscending:])
	h.DescendingHeight = be.Uint16(info[infoDescend:])
	h.MinHeight = int16(be.Uint16(info[infoMinHeight:]))
	h.MaxHeight = int16(be.Uint16(info[infoMaxHeight:]))
	return h.With(track.FieldCalories | track.FieldMaxSpeed | track.FieldMaxHeartRate |
		track.FieldAvgHeartRate | track.FieldAscendingHeight | track.FieldDescendingHeight |
		track.FieldMinHeight | track.FieldMaxHeight), nil
}

// LapInfo decodes a lap segment: header followed by 41-byte lap records.
func (d Decoder) LapInfo(param []byte) (track.Header, []track.Lap, error) {
	if len(param) < HeaderSize {
		return track.Header{}, nil, shortPayload("lap info", HeaderSize, len(param))
	}
	if err := checkTag(param, TagLapInfo); err != nil {
		return track.Header{}, nil, err
	}
	tail := param[HeaderSize:]
	if len(tail)%LapSize != 0 {
		return track.Header{}, nil, fmt.Errorf("protocol: lap info: %w: %d bytes is not a multiple of %d",
			ErrShortPayload, len(tail), LapSize)
	}

	be := binary.BigEndian
	laps := make([]track.Lap, 0, len(tail)/LapSize)
	for off := 0; off < len(tail); off += LapSize {
		r := tail[off : off+LapSize]
		laps = append(laps, track.Lap{
			Duration:     deciseconds(be.Uint32(r[lapDuration:])),
			TotalTime:    deciseconds(be.Uint32(r[lapTotalTime:])),
			Distance:     be.Uint32(r[lapDistance:]),
			Calories:     be.Uint16(r[lapCalories:]),
			MaxSpeed:     be.Uint16(r[lapMaxSpeed:]),
			MaxHeartRate: r[lapMaxHR],
			AvgHeartRate: r[lapAvgHR],
			MinHeight:    int16(be.Uint16(r[lapMinHeight:])),
			MaxHeight:    int16(be.Uint16(r[lapMaxHeight:])),
			FirstIndex:   be.Uint16(r[lapFirstIndex:]),
			LastIndex:    be.Uint16(r[lapLastIndex:]),
		})
	}
	return d.summary(param), laps, nil
}

// SessionRange is the inclusive, 0-based span of track points one segment
// delivers.
type SessionRange struct {
	First uint32
	Last  uint32
}

// Len is the number of points the range covers.
func (r SessionRange) Len() int64 { return int64(r.Last) - int64(r.First) + 1 }

// TrackPoints decodes a track point segment: header carrying the session
// range, followed by 25-byte point records.
func (d Decoder) TrackPoints(param []byte) (track.Header, SessionRange, []track.TrackPoint, error) {
	if len(param) < HeaderSize {
		return track.Header{}, SessionRange{}, nil, shortPayload("track points", HeaderSize, len(param))
	}
	if err := checkTag(param, TagTrackPoints); err != nil {
		return track.Header{}, SessionRange{}, nil, err
	}
	tail := param[HeaderSize:]
	if len(tail)%TrackPointSize != 0 {
		return track.Header{}, SessionRange{}, nil, fmt.Errorf(
			"protocol: track points: %w: %d bytes is not a multiple of %d",
			ErrShortPayload, len(tail), TrackPointSize)
	}

	be := binary.BigEndian
	rng := SessionRange{
		First: be.Uint32(param[offFirstIndex:]),
		Last:  be.Uint32(param[offLastIndex:]),
	}
	points := make([]track.TrackPoint, 0, len(tail)/TrackPointSize)
	for off := 0; off < len(tail); off += TrackPointSize {
		r := tail[off : off+TrackPointSize]
		points = append(points, track.TrackPoint{
			Latitude:  float64(int32(be.Uint32(r[pointLatitude:]))) / coordScale,
			Longitude: float64(int32(be.Uint32(r[pointLongitude:]))) / coordScale,
			Altitude:  int16(be.Uint16(r[pointAltitude:])),
			Speed:     float64(be.Uint16(r[pointSpeed:])) / speedScale,
			HeartRate: r[pointHeartRate],
			Interval:  deciseconds(uint32(be.Uint16(r[pointInterval:]))),
		})
	}
	return d.summary(param), rng, points, nil
}
