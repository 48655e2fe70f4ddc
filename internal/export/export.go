// Package export writes downloaded tracks to GPX or CSV files.
package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/shaunagostinho/sq100/internal/track"
)

// Format is an output file format.
type Format string

const (
	FormatGPX Format = "gpx"
	FormatCSV Format = "csv"
)

// MergedBase is the file name stem used when all tracks go to one file.
const MergedBase = "downloaded_tracks"

// Options configures an Exporter.
type Options struct {
	Dir    string
	Format Format
	Merge  bool
	Logger zerolog.Logger
	Now    func() time.Time // metadata timestamp, time.Now when nil
}

// Exporter writes tracks into a directory on a filesystem.
type Exporter struct {
	fs   afero.Fs
	opts Options
	log  zerolog.Logger
}

// New validates opts and returns an exporter writing to fs.
func New(fs afero.Fs, opts Options) (*Exporter, error) {
	switch opts.Format {
	case "":
		opts.Format = FormatGPX
	case FormatGPX, FormatCSV:
	default:
		return nil, fmt.Errorf("export: unknown format %q", opts.Format)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{
		fs:   fs,
		opts: opts,
		log:  opts.Logger.With().Str("component", "export").Logger(),
	}, nil
}

// FileName is the per-track file name, e.g. track-2023-05-06-07-08-09.gpx.
func FileName(t *track.Track, f Format) string {
	return fmt.Sprintf("track-%s.%s", t.Date.Format("2006-01-02-15-04-05"), f)
}

// Export writes tracks and returns the paths created, either one file per
// track or a single merged file.
func (e *Exporter) Export(tracks []track.Track) ([]string, error) {
	if len(tracks) == 0 {
		return nil, nil
	}
	if err := e.fs.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: mkdir %s: %w", e.opts.Dir, err)
	}

	if e.opts.Merge {
		path := filepath.Join(e.opts.Dir, fmt.Sprintf("%s.%s", MergedBase, e.opts.Format))
		if err := e.writeFile(path, tracks); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	paths := make([]string, 0, len(tracks))
	for i := range tracks {
		path := filepath.Join(e.opts.Dir, FileName(&tracks[i], e.opts.Format))
		if err := e.writeFile(path, tracks[i:i+1]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Encode renders tracks in the exporter's format.
func (e *Exporter) Encode(tracks []track.Track) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch e.opts.Format {
	case FormatCSV:
		err = WriteCSV(&buf, tracks)
	default:
		err = WriteGPX(&buf, tracks, e.opts.Now())
	}
	return buf.Bytes(), err
}

func (e *Exporter) writeFile(path string, tracks []track.Track) error {
	data, err := e.Encode(tracks)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(e.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	e.log.Info().Str("path", path).Int("tracks", len(tracks)).Msg("exported")
	return nil
}
