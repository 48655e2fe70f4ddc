package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/sq100/internal/config"
	"github.com/shaunagostinho/sq100/internal/device"
	"github.com/shaunagostinho/sq100/internal/export"
	"github.com/shaunagostinho/sq100/internal/server"
	"github.com/shaunagostinho/sq100/internal/store"
	"github.com/shaunagostinho/sq100/internal/track"
	"github.com/shaunagostinho/sq100/internal/transport"
	"github.com/shaunagostinho/sq100/web"
)

// demoTrackCount is how many tracks the simulated watch holds.
const demoTrackCount = 5

type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	out   io.Writer
	fs    afero.Fs
	clock clockwork.Clock
}

func newApp(cfg *config.Config, log zerolog.Logger, out io.Writer) *app {
	return &app{
		cfg:   cfg,
		log:   log,
		out:   out,
		fs:    afero.NewOsFs(),
		clock: clockwork.NewRealClock(),
	}
}

// openSession connects to the watch, or to the simulator in demo mode.
func (a *app) openSession(ctx context.Context, progress func(device.Progress)) (device.Session, error) {
	if err := a.cfg.RequireDevice(); err != nil {
		return nil, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	snap := a.cfg.Snapshot()
	fw, err := device.ParseFirmware(snap.Device.Firmware)
	if err != nil {
		return nil, err
	}

	var ch transport.Channel
	if snap.Device.Demo {
		end := a.clock.Now().In(loc).Truncate(time.Hour)
		ch = device.NewSimulator(device.DemoTracks(demoTrackCount, end, 1))
		a.log.Info().Msg("using simulated watch")
	} else {
		ch = transport.NewSerial(transport.SerialConfig{
			Port:     snap.Serial.Port,
			BaudRate: snap.Serial.BaudRate,
			Timeout:  time.Duration(snap.Serial.TimeoutMs) * time.Millisecond,
		})
	}

	tr := transport.New(ch, transport.Options{
		Retry: transport.RetryPolicy{
			Attempts: snap.Serial.Attempts,
			Delay:    time.Duration(snap.Serial.RetryDelayMs) * time.Millisecond,
			Clock:    a.clock,
		},
		Logger: a.log,
	})
	return device.Open(ctx, tr, device.Options{
		Logger:   a.log,
		Progress: progress,
		Firmware: fw,
		Location: loc,
	})
}

func (a *app) openArchive() (*store.Store, error) {
	snap := a.cfg.Snapshot()
	if !snap.Archive.Enabled {
		return nil, nil
	}
	return store.Open(snap.Archive.Path)
}

func (a *app) logProgress(p device.Progress) {
	a.log.Info().
		Uint16("id", p.TrackID).
		Str("track", fmt.Sprintf("%d/%d", p.Track, p.Tracks)).
		Str("points", fmt.Sprintf("%d/%d", p.Points, p.TotalPoints)).
		Msg("downloading")
}

func (a *app) list(ctx context.Context) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	tracks, err := sess.ListTracks(ctx)
	if err != nil {
		return err
	}
	headers := make([]track.Header, len(tracks))
	for i := range tracks {
		headers[i] = tracks[i].Header
	}
	return a.printHeaders(nil, headers)
}

// printHeaders writes a track table. keys, when given, label each row.
func (a *app) printHeaders(keys []string, headers []track.Header) error {
	table := tablewriter.NewTable(a.out,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders: tw.BorderNone,
			Symbols: tw.NewSymbols(tw.StyleNone),
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off, BetweenRows: tw.Off},
				Lines:      tw.Lines{ShowHeaderLine: tw.Off},
			},
		})),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
	)

	columns := []any{"ID", "DATE", "DURATION", "DISTANCE", "LAPS", "POINTS", "MEMORY"}
	if keys != nil {
		columns = append([]any{"KEY"}, columns...)
	}
	table.Header(columns...)

	for i, h := range headers {
		row := []string{
			strconv.Itoa(int(h.ID)),
			h.Date.Format(time.DateTime),
			h.Duration.Round(time.Second).String(),
			fmt.Sprintf("%.2f km", float64(h.Distance)/1000),
			strconv.Itoa(int(h.NoLaps)),
			strconv.FormatUint(uint64(h.NoTrackPoints), 10),
			strconv.FormatUint(uint64(h.MemoryBlockIndex), 10),
		}
		if keys != nil {
			row = append([]string{keys[i]}, row...)
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func (a *app) exporter(format, dir string, merge bool) (*export.Exporter, error) {
	snap := a.cfg.Snapshot()
	if format == "" {
		format = snap.Export.Format
	}
	if dir == "" {
		dir = snap.Export.Dir
	}
	return export.New(a.fs, export.Options{
		Dir:    dir,
		Format: export.Format(format),
		Merge:  merge || snap.Export.Merge,
		Logger: a.log,
		Now:    a.clock.Now,
	})
}

func (a *app) download(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("download", flag.ContinueOnError)
	latest := flags.Bool("latest", false, "Download only the newest track")
	merge := flags.Bool("merge", false, "Write all tracks to one file")
	format := flags.String("format", "", "Output format: gpx or csv")
	dir := flags.String("dir", "", "Output directory")
	if err := flags.Parse(args); err != nil {
		return err
	}
	ex, err := a.exporter(*format, *dir, *merge)
	if err != nil {
		return err
	}

	sess, err := a.openSession(ctx, a.logProgress)
	if err != nil {
		return err
	}
	defer sess.Close()

	var ids []uint16
	switch {
	case *latest:
		list, err := sess.ListTracks(ctx)
		if err != nil {
			return err
		}
		newest, ok := track.Latest(list)
		if !ok {
			return errors.New("no tracks on the watch")
		}
		ids = []uint16{newest.ID}
	case flags.NArg() > 0:
		if ids, err = parseIDs(strings.Join(flags.Args(), ",")); err != nil {
			return err
		}
	default:
		list, err := sess.ListTracks(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		a.log.Info().Msg("nothing to download")
		return nil
	}

	tracks, err := sess.DownloadTracks(ctx, ids)
	if err != nil {
		return err
	}

	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
		keys, err := archive.Put(tracks...)
		if err != nil {
			return err
		}
		a.log.Info().Strs("keys", keys).Msg("archived")
	}

	paths, err := ex.Export(tracks)
	for _, p := range paths {
		fmt.Fprintln(a.out, p)
	}
	return err
}

func (a *app) archive(args []string) error {
	if len(args) == 0 {
		return errors.New("archive: want list, export or delete")
	}
	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	if archive == nil {
		return errors.New("archive: disabled (set archive.enabled)")
	}
	defer archive.Close()

	switch args[0] {
	case "list":
		entries, err := archive.List()
		if err != nil {
			return err
		}
		keys := make([]string, len(entries))
		headers := make([]track.Header, len(entries))
		for i, e := range entries {
			keys[i], headers[i] = e.Key, e.Header
		}
		return a.printHeaders(keys, headers)

	case "export":
		flags := flag.NewFlagSet("archive export", flag.ContinueOnError)
		merge := flags.Bool("merge", false, "Write all tracks to one file")
		format := flags.String("format", "", "Output format: gpx or csv")
		dir := flags.String("dir", "", "Output directory")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if flags.NArg() == 0 {
			return errors.New("archive export: no keys given")
		}
		tracks := make([]track.Track, 0, flags.NArg())
		for _, key := range flags.Args() {
			t, err := archive.Get(key)
			if err != nil {
				return fmt.Errorf("archive export %s: %w", key, err)
			}
			tracks = append(tracks, t)
		}
		ex, err := a.exporter(*format, *dir, *merge)
		if err != nil {
			return err
		}
		paths, err := ex.Export(tracks)
		for _, p := range paths {
			fmt.Fprintln(a.out, p)
		}
		return err

	case "delete":
		if len(args) < 2 {
			return errors.New("archive delete: no keys given")
		}
		for _, key := range args[1:] {
			if err := archive.Delete(key); err != nil {
				return fmt.Errorf("archive delete %s: %w", key, err)
			}
			a.log.Info().Str("key", key).Msg("track removed from archive")
		}
		return nil

	default:
		return fmt.Errorf("archive: unknown command %q", args[0])
	}
}

func (a *app) ports() error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(a.out, p)
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	srv := server.New(a.cfg, archive, web.FS, a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	// The web interface starts regardless; the watch attaches when it answers.
	g.Go(func() error {
		sess, err := connectWithRetry(ctx, a.clock, a.log, func(ctx context.Context) (device.Session, error) {
			return a.openSession(ctx, srv.Progress)
		}, 10)
		if err != nil {
			return nil // cancelled
		}
		srv.SetSession(sess)
		<-ctx.Done()
		srv.SetSession(nil)
		return sess.Close()
	})
	return g.Wait()
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, logs each failure up to
// maxAttempts then continues at max interval quietly. It only gives up when
// ctx is cancelled.
func connectWithRetry(ctx context.Context, clock clockwork.Clock, log zerolog.Logger,
	open func(context.Context) (device.Session, error), maxAttempts int,
) (device.Session, error) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess, err := open(ctx)
		if err == nil {
			log.Info().Int("attempt", attempt+1).Str("identity", sess.Identity().String()).Msg("watch connected")
			return sess, nil
		}
		attempt++
		if attempt <= maxAttempts {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connect failed")
		} else {
			log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connect failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clock.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
