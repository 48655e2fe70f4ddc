package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/sq100/internal/device"
	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/track"
	"github.com/shaunagostinho/sq100/internal/transport"
	"github.com/shaunagostinho/sq100/internal/transport/transporttest"
)

var start = time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)

func header(id, mem uint16, points uint32, laps uint16) track.Header {
	return track.Header{
		ID:               id,
		MemoryBlockIndex: mem,
		Date:             start,
		Duration:         3 * time.Second,
		Distance:         12,
		NoLaps:           laps,
		NoTrackPoints:    points,
	}
}

func frame(t *testing.T, cmd byte, param []byte) []byte {
	t.Helper()
	raw, err := protocol.EncodeReply(cmd, param)
	require.NoError(t, err)
	return raw
}

func twoPoints() []track.TrackPoint {
	return []track.TrackPoint{
		{Latitude: 51.532719, Longitude: -0.1, Speed: 10.2, HeartRate: 120, Interval: time.Second},
		{Latitude: 51.532801, Longitude: -0.1001, Speed: 10.4, HeartRate: 122, Interval: 2 * time.Second},
	}
}

// session opens a gh625 session over a scripted channel, skipping whoAmI.
func session(t *testing.T, replies ...[]byte) (device.Session, *transporttest.Channel) {
	t.Helper()
	ch := transporttest.New(replies...)
	s, err := device.Open(context.Background(), transport.New(ch, transport.Options{}),
		device.Options{Firmware: device.FirmwareGH625})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, ch
}

func TestDownloadScenario(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, ch := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{header(5, 2, 9, 1), h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(h, protocol.SessionRange{First: 0, Last: 1}, twoPoints())),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	tracks, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	got := tracks[0]
	assert.Equal(t, uint16(7), got.ID)
	assert.True(t, got.Complete())
	require.Len(t, got.TrackPoints, 2)
	assert.Equal(t, start.Add(time.Second), got.TrackPoints[0].Time)
	assert.Equal(t, start.Add(3*time.Second), got.TrackPoints[1].Time)
	assert.Equal(t, 51.532719, got.TrackPoints[0].Latitude)

	written := ch.Written()
	require.Len(t, written, 5)
	listReq, _ := protocol.Encode(protocol.CmdListTracks, nil)
	dlReq, _ := protocol.Encode(protocol.CmdDownloadTracks, []byte{0x00, 0x01, 0x00, 0x03})
	nextReq, _ := protocol.Encode(protocol.CmdNextSegment, nil)
	assert.Equal(t, [][]byte{listReq, dlReq, nextReq, nextReq, nextReq}, written)
}

func TestDownloadRejectsIndexGap(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(h, protocol.SessionRange{First: 1, Last: 2}, twoPoints())),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	tracks, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrSessionIndex)
	assert.Nil(t, tracks)

	var serr *device.SessionIndexError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, uint32(1), serr.First)
	assert.Equal(t, 0, serr.Have)
}

func TestDownloadRejectsRangeCountMismatch(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(h, protocol.SessionRange{First: 0, Last: 0}, twoPoints())),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrSessionIndex)
}

func TestDownloadRejectsPointOverflow(t *testing.T) {
	h := header(7, 3, 1, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(h, protocol.SessionRange{First: 0, Last: 1}, twoPoints())),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrSessionIndex)
}

func TestDownloadRejectsIncompatibleHeader(t *testing.T) {
	h := header(7, 3, 2, 0)
	other := h
	other.Distance = 999

	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(other, nil)),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompatibleHeader)
}

func TestDownloadRejectsEarlyEndOfStream(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompleteStream)

	var uerr *device.UnexpectedSegmentError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "awaiting track points", uerr.State)
	assert.Equal(t, "end of stream", uerr.Segment)
}

func TestDownloadRejectsOutOfOrderSegment(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeLapInfo(h, nil)),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompleteStream)
}

func TestDownloadEmptyTrackCompletesAfterLaps(t *testing.T) {
	h := header(7, 3, 0, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	tracks, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Empty(t, tracks[0].TrackPoints)
}

func TestDownloadUnknownIDBeforeDownloadIO(t *testing.T) {
	s, ch := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{header(7, 3, 2, 0)})),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7, 8})
	var uerr *device.UnknownTrackIDError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, uint16(8), uerr.ID)
	assert.Len(t, ch.Written(), 1, "only the track list may be requested")
}

func TestDownloadNoIDs(t *testing.T) {
	s, ch := session(t)

	tracks, err := s.DownloadTracks(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tracks)
	assert.Empty(t, tracks)
	assert.Empty(t, ch.Written())
}

func TestDownloadTooManyIDs(t *testing.T) {
	s, ch := session(t)

	_, err := s.DownloadTracks(context.Background(), make([]uint16, device.MaxDownload+1))
	require.ErrorIs(t, err, device.ErrTooManyTracks)
	assert.Empty(t, ch.Written())
}

func TestDownloadChecksumFailureAborts(t *testing.T) {
	h := header(7, 3, 2, 0)
	bad := frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h))
	bad[len(bad)-1]++
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		bad,
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, protocol.ErrFrameChecksum)
}

func TestListTracks(t *testing.T) {
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{header(1, 10, 5, 1), header(2, 11, 6, 1)})),
	)

	tracks, err := s.ListTracks(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, uint16(1), tracks[0].ID)
	assert.Equal(t, uint16(11), tracks[1].MemoryBlockIndex)
	assert.Equal(t, start, tracks[1].Date)
}

func TestListTracksNoReply(t *testing.T) {
	s, _ := session(t)

	_, err := s.ListTracks(context.Background())
	require.ErrorIs(t, err, transport.ErrNoData)
}

func TestDownloadRejectsMissingTrack(t *testing.T) {
	h7, h8 := header(7, 3, 2, 0), header(8, 4, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h7, h8})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h7)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h7, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(h7, protocol.SessionRange{First: 0, Last: 1}, twoPoints())),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	tracks, err := s.DownloadTracks(context.Background(), []uint16{7, 8})
	require.ErrorIs(t, err, device.ErrIncompleteStream)
	assert.Nil(t, tracks)

	var merr *device.MissingTracksError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, device.MissingTracksError{Requested: 2, Received: 1}, *merr)
}

func TestDownloadRejectsImmediateEndOfStream(t *testing.T) {
	h := header(7, 3, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdEndOfStream, nil),
	)

	tracks, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompleteStream)
	assert.Nil(t, tracks)

	var merr *device.MissingTracksError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 0, merr.Received)
}

func TestDownloadRejectsUnrequestedTrack(t *testing.T) {
	h7, h8 := header(7, 3, 2, 0), header(8, 4, 2, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h7, h8})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h8)),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompleteStream)

	var uerr *device.UnrequestedTrackError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, uint16(7), uerr.Want)
	assert.Equal(t, uint16(8), uerr.Got)
}

func TestDownloadRejectsTrackBeyondRequest(t *testing.T) {
	h7, h8 := header(7, 3, 0, 0), header(8, 4, 0, 0)
	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h7, h8})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h7)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h7, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackInfo(h8)),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompleteStream)

	var uerr *device.UnexpectedSegmentError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "track info", uerr.Segment)
}

func TestDownloadRejectsIncompatibleTrackPoints(t *testing.T) {
	h := header(7, 3, 2, 0)
	other := h
	other.Distance = 999

	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(h)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeLapInfo(h, nil)),
		frame(t, protocol.CmdNextSegment, protocol.EncodeTrackPoints(other, protocol.SessionRange{First: 0, Last: 1}, twoPoints())),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompatibleHeader)

	var herr *device.IncompatibleHeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "track points", herr.Segment)
}

func TestDownloadRejectsTrackInfoUnlikeListing(t *testing.T) {
	h := header(7, 3, 2, 0)
	other := h
	other.Duration = time.Hour

	s, _ := session(t,
		frame(t, protocol.CmdListTracks, protocol.EncodeTrackList([]track.Header{h})),
		frame(t, protocol.CmdDownloadTracks, protocol.EncodeTrackInfo(other)),
	)

	_, err := s.DownloadTracks(context.Background(), []uint16{7})
	require.ErrorIs(t, err, device.ErrIncompatibleHeader)

	var herr *device.IncompatibleHeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "track info", herr.Segment)
	assert.Equal(t, time.Hour, herr.Got.Duration)
}
