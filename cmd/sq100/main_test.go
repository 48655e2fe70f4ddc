package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/sq100/internal/device"
	"github.com/shaunagostinho/sq100/internal/protocol"
	"github.com/shaunagostinho/sq100/internal/store"
	"github.com/shaunagostinho/sq100/internal/track"
)

func runDemo(t *testing.T, configYAML string, args ...string) string {
	t.Helper()
	out, err := runDemoErr(t, configYAML, args...)
	require.NoError(t, err)
	return out
}

func runDemoErr(t *testing.T, configYAML string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sq100.yaml")
	if configYAML != "" {
		require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))
	}
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-config", path, "-demo"}, args...), &out)
	return out.String(), err
}

func TestListDemo(t *testing.T) {
	out := runDemo(t, "", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+demoTrackCount)
	assert.Equal(t, []string{"ID", "DATE", "DURATION", "DISTANCE", "LAPS", "POINTS", "MEMORY"},
		strings.Fields(lines[0]))
	assert.Equal(t, "1", strings.Fields(lines[1])[0])
}

func TestDownloadLatest(t *testing.T) {
	dir := t.TempDir()
	out := runDemo(t, "", "download", "-latest", "-dir", dir)

	paths := strings.Fields(out)
	require.Len(t, paths, 1)
	assert.Equal(t, dir, filepath.Dir(paths[0]))
	assert.Equal(t, ".gpx", filepath.Ext(paths[0]))
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<trkpt")
}

func TestDownloadMergedCSV(t *testing.T) {
	dir := t.TempDir()
	out := runDemo(t, "", "download", "-dir", dir, "-format", "csv", "-merge", "1,2")
	assert.Equal(t, filepath.Join(dir, "downloaded_tracks.csv"), strings.TrimSpace(out))
}

func TestDownloadArchivesAndReexports(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "archive.db")
	cfg := "archive:\n  enabled: true\n  path: " + db + "\n"

	runDemo(t, cfg, "download", "-dir", dir, "2")

	out := runDemo(t, cfg, "archive", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	key := strings.Fields(lines[1])[0]

	exportDir := filepath.Join(dir, "again")
	out = runDemo(t, cfg, "archive", "export", "-dir", exportDir, key)
	assert.Equal(t, exportDir, filepath.Dir(strings.TrimSpace(out)))

	runDemo(t, cfg, "archive", "delete", key)
	out = runDemo(t, cfg, "archive", "list")
	assert.NotContains(t, out, key)

	_, err := runDemoErr(t, cfg, "archive", "delete", key)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "x.yaml"), "frobnicate"}, &out)
	require.ErrorContains(t, err, "frobnicate")
}

type stubSession struct{}

func (stubSession) Identity() protocol.Identity {
	return protocol.Identity{Product: "GH-625", Model: "M"}
}

func (stubSession) ListTracks(context.Context) ([]track.Track, error) {
	return nil, nil
}

func (stubSession) DownloadTracks(context.Context, []uint16) ([]track.Track, error) {
	return nil, nil
}

func (stubSession) Close() error { return nil }

func TestConnectWithRetryBacksOff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := clockwork.NewFakeClock()

	calls := 0
	open := func(context.Context) (device.Session, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("no watch")
		}
		return stubSession{}, nil
	}

	done := make(chan device.Session, 1)
	go func() {
		sess, err := connectWithRetry(ctx, clock, zerolog.Nop(), open, 10)
		assert.NoError(t, err)
		done <- sess
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	select {
	case sess := <-done:
		assert.NotNil(t, sess)
		assert.Equal(t, 3, calls)
	case <-ctx.Done():
		t.Fatal("connectWithRetry did not return")
	}
}

func TestConnectWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := connectWithRetry(ctx, clockwork.NewFakeClock(), zerolog.Nop(), func(context.Context) (device.Session, error) {
		return nil, errors.New("unreachable")
	}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
