package device

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/track"
	"github.com/shaunagostinho/sq100/internal/transport"
)

// MaxDownload is the most tracks one download request can name.
const MaxDownload = (protocol.MaxParameter - 2) / 2

// SQ100 drives GH-625 class firmware.
type SQ100 struct {
	tr       *transport.Transport
	dec      protocol.Decoder
	id       protocol.Identity
	log      zerolog.Logger
	progress func(Progress)
}

func (s *SQ100) Identity() protocol.Identity { return s.id }

func (s *SQ100) Close() error { return s.tr.Disconnect() }

// ListTracks sends CmdListTracks and decodes the single reply.
func (s *SQ100) ListTracks(ctx context.Context) ([]track.Track, error) {
	f, err := query(ctx, s.tr, protocol.CmdListTracks, nil)
	if err != nil {
		return nil, fmt.Errorf("device: list tracks: %w", err)
	}
	tracks, err := s.dec.TrackList(f.Parameter)
	if err != nil {
		return nil, fmt.Errorf("device: list tracks: %w", err)
	}
	s.log.Info().Int("count", len(tracks)).Msg("track list received")
	return tracks, nil
}

// DownloadTracks resolves ids against the track list, requests them by
// memory block index and assembles the resulting segment stream.
func (s *SQ100) DownloadTracks(ctx context.Context, ids []uint16) ([]track.Track, error) {
	if len(ids) == 0 {
		return []track.Track{}, nil
	}
	if len(ids) > MaxDownload {
		return nil, fmt.Errorf("device: %d ids, at most %d: %w", len(ids), MaxDownload, ErrTooManyTracks)
	}

	list, err := s.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[uint16]track.Header, len(list))
	for _, t := range list {
		known[t.ID] = t.Header
	}

	indices := make([]uint16, len(ids))
	totalPoints := 0
	for i, id := range ids {
		h, ok := known[id]
		if !ok {
			return nil, &UnknownTrackIDError{ID: id}
		}
		indices[i] = h.MemoryBlockIndex
		totalPoints += int(h.NoTrackPoints)
	}

	dl := &download{
		listed:      known,
		ids:         ids,
		totalPoints: totalPoints,
		log:         s.log,
		progress:    s.progress,
	}

	// The reply to the download request is already the first segment.
	cmd, param := protocol.CmdDownloadTracks, protocol.EncodeDownload(indices)
	for dl.state != stateDone {
		f, err := query(ctx, s.tr, cmd, param)
		if err != nil {
			dl.fail()
			return nil, fmt.Errorf("device: download: %w", err)
		}
		seg, err := s.dec.Segment(f)
		if err != nil {
			dl.fail()
			return nil, fmt.Errorf("device: download: %w", err)
		}
		if err := dl.handle(seg); err != nil {
			return nil, err
		}
		cmd, param = protocol.CmdNextSegment, nil
	}

	for i := range dl.tracks {
		dl.tracks[i].UpdateTrackPointTimes()
	}
	s.log.Info().Int("tracks", len(dl.tracks)).Int("points", dl.received).Msg("download complete")
	return dl.tracks, nil
}
