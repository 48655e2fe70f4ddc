package protocol

import (
	"encoding/binary"
	"math"

	"github.com/shaunagostinho/sq100/internal/track"
)

// The encoders below produce reply parameters in device layout. They back the
// simulated device and tests.

// EncodeTrackList builds the parameter of a CmdListTracks reply.
func EncodeTrackList(headers []track.Header) []byte {
	out := make([]byte, len(headers)*HeaderSize)
	for i, h := range headers {
		putIdentified(out[i*HeaderSize:], h)
	}
	return out
}

// EncodeTrackInfo builds a track info segment.
func EncodeTrackInfo(h track.Header) []byte {
	out := make([]byte, HeaderSize+TrackInfoSize)
	putIdentified(out, h)
	out[HeaderTagOffset] = TagTrackInfo

	be := binary.BigEndian
	info := out[HeaderSize:]
	be.PutUint16(info[infoCalories:], h.Calories)
	be.PutUint16(info[infoMaxSpeed:], h.MaxSpeed)
	info[infoMaxHR] = h.MaxHeartRate
	info[infoAvgHR] = h.AvgHeartRate
	be.PutUint16(info[infoAscending:], h.AscendingHeight)
	be.PutUint16(info[infoDescend:], h.DescendingHeight)
	be.PutUint16(info[infoMinHeight:], uint16(h.MinHeight))
	be.PutUint16(info[infoMaxHeight:], uint16(h.MaxHeight))
	return out
}

// EncodeLapInfo builds a lap segment.
func EncodeLapInfo(h track.Header, laps []track.Lap) []byte {
	out := make([]byte, HeaderSize+len(laps)*LapSize)
	putSummary(out, h)
	out[HeaderTagOffset] = TagLapInfo

	be := binary.BigEndian
	for i, l := range laps {
		r := out[HeaderSize+i*LapSize:]
		be.PutUint32(r[lapDuration:], toDeciseconds(l.Duration))
		be.PutUint32(r[lapTotalTime:], toDeciseconds(l.TotalTime))
		be.PutUint32(r[lapDistance:], l.Distance)
		be.PutUint16(r[lapCalories:], l.Calories)
		be.PutUint16(r[lapMaxSpeed:], l.MaxSpeed)
		r[lapMaxHR] = l.MaxHeartRate
		r[lapAvgHR] = l.AvgHeartRate
		be.PutUint16(r[lapMinHeight:], uint16(l.MinHeight))
		be.PutUint16(r[lapMaxHeight:], uint16(l.MaxHeight))
		be.PutUint16(r[lapFirstIndex:], l.FirstIndex)
		be.PutUint16(r[lapLastIndex:], l.LastIndex)
	}
	return out
}

// EncodeTrackPoints builds a track point segment covering rng.
func EncodeTrackPoints(h track.Header, rng SessionRange, points []track.TrackPoint) []byte {
	out := make([]byte, HeaderSize+len(points)*TrackPointSize)
	putSummary(out, h)
	out[HeaderTagOffset] = TagTrackPoints

	be := binary.BigEndian
	be.PutUint32(out[offFirstIndex:], rng.First)
	be.PutUint32(out[offLastIndex:], rng.Last)
	for i, p := range points {
		r := out[HeaderSize+i*TrackPointSize:]
		be.PutUint32(r[pointLatitude:], uint32(int32(math.Round(p.Latitude*coordScale))))
		be.PutUint32(r[pointLongitude:], uint32(int32(math.Round(p.Longitude*coordScale))))
		be.PutUint16(r[pointAltitude:], uint16(p.Altitude))
		be.PutUint16(r[pointSpeed:], uint16(math.Round(p.Speed*speedScale)))
		r[pointHeartRate] = p.HeartRate
		be.PutUint16(r[pointInterval:], uint16(toDeciseconds(p.Interval)))
	}
	return out
}

// EncodeDownload builds the CmdDownloadTracks parameter for the given memory
// block indices.
func EncodeDownload(indices []uint16) []byte {
	out := make([]byte, 0, 2+2*len(indices))
	out = binary.BigEndian.AppendUint16(out, uint16(len(indices)))
	for _, idx := range indices {
		out = binary.BigEndian.AppendUint16(out, idx)
	}
	return out
}

// DecodeDownload is the inverse of EncodeDownload.
func DecodeDownload(param []byte) ([]uint16, error) {
	if len(param) < 2 {
		return nil, shortPayload("download request", 2, len(param))
	}
	n := int(binary.BigEndian.Uint16(param))
	if len(param) < 2+2*n {
		return nil, shortPayload("download request", 2+2*n, len(param))
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(param[2+2*i:])
	}
	return out, nil
}
