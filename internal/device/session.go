// Package device talks to an SQ100 / GH-625 class GPS watch: it identifies the
// firmware, lists stored tracks and downloads them.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/track"
	"github.com/shaunagostinho/sq100/internal/transport"
)

// Session is a connected device.
type Session interface {
	// Identity returns what the device reported on connect. It is empty when
	// the firmware was forced instead of detected.
	Identity() protocol.Identity
	// ListTracks returns header-only tracks for everything stored.
	ListTracks(ctx context.Context) ([]track.Track, error)
	// DownloadTracks fetches complete tracks, in device order. Any protocol
	// violation aborts the whole call.
	DownloadTracks(ctx context.Context, ids []uint16) ([]track.Track, error)
	// Close disconnects from the device.
	Close() error
}

// Firmware selects the command set. FirmwareAuto asks the device.
type Firmware string

const (
	FirmwareAuto  Firmware = "auto"
	FirmwareGH625 Firmware = "gh625"
	FirmwareGH615 Firmware = "gh615"
)

// ParseFirmware validates a configured firmware name. Empty means auto.
func ParseFirmware(s string) (Firmware, error) {
	switch f := Firmware(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FirmwareAuto, nil
	case FirmwareAuto, FirmwareGH625, FirmwareGH615:
		return f, nil
	default:
		return "", fmt.Errorf("device: unknown firmware %q (want auto, gh625 or gh615)", s)
	}
}

// Progress describes an in-flight download after each accepted segment.
type Progress struct {
	TrackID     uint16 `json:"trackId"`
	Track       int    `json:"track"` // 1-based
	Tracks      int    `json:"tracks"`
	Points      int    `json:"points"`
	TotalPoints int    `json:"totalPoints"`
	State       string `json:"state"`
}

// Options configures Open.
type Options struct {
	Logger   zerolog.Logger
	Progress func(Progress)
	Firmware Firmware
	Location *time.Location // device-local time zone, UTC when nil
}

// legacyProducts identifies firmware speaking the older GH-615 command set.
var legacyProducts = []string{"GH-615"}

// Open connects tr, determines the firmware and returns the matching
// session. On error the transport is left disconnected.
func Open(ctx context.Context, tr *transport.Transport, opts Options) (Session, error) {
	if opts.Firmware == "" {
		opts.Firmware = FirmwareAuto
	}
	log := opts.Logger.With().Str("component", "device").Logger()

	if err := tr.Connect(); err != nil {
		return nil, err
	}

	var id protocol.Identity
	switch opts.Firmware {
	case FirmwareGH615:
		_ = tr.Disconnect()
		return nil, fmt.Errorf("device: firmware %s: %w", opts.Firmware, ErrUnsupportedFirmware)
	case FirmwareGH625:
		log.Info().Msg("firmware forced to gh625, skipping whoAmI")
	default:
		detected, err := identify(ctx, tr)
		if err != nil {
			_ = tr.Disconnect()
			return nil, err
		}
		id = detected
		log.Info().Str("product", id.Product).Str("model", id.Model).Msg("device identified")
	}

	return &SQ100{
		tr:       tr,
		dec:      protocol.Decoder{Location: opts.Location},
		id:       id,
		log:      log,
		progress: opts.Progress,
	}, nil
}

// identify asks the device who it is. Silence and legacy product names both mean
// firmware this package cannot drive.
func identify(ctx context.Context, tr *transport.Transport) (protocol.Identity, error) {
	f, err := query(ctx, tr, protocol.CmdWhoAmI, nil)
	if errors.Is(err, transport.ErrNoData) {
		return protocol.Identity{}, fmt.Errorf("device: no reply to whoAmI: %w", ErrUnsupportedFirmware)
	}
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("device: whoAmI: %w", err)
	}
	id, err := protocol.ParseIdentity(f.Parameter)
	if err != nil {
		return protocol.Identity{}, fmt.Errorf("device: whoAmI: %w", err)
	}
	for _, p := range legacyProducts {
		if strings.HasPrefix(id.Product, p) {
			return id, fmt.Errorf("device: %s: %w", id, ErrUnsupportedFirmware)
		}
	}
	return id, nil
}

// query runs one request/reply exchange and validates the reply frame.
func query(ctx context.Context, tr *transport.Transport, cmd byte, param []byte) (protocol.Frame, error) {
	req, err := protocol.Encode(cmd, param)
	if err != nil {
		return protocol.Frame{}, err
	}
	raw, err := tr.Query(ctx, req, protocol.ReplyHeaderSize, protocol.ReplyRemaining)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Decode(raw)
}
