package export

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/shaunagostinho/sq100/internal/track"
)

var (
	start = time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	now   = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
)

func sample(id uint16, date time.Time) track.Track {
	t := track.Track{Header: track.Header{ID: id, Date: date, NoTrackPoints: 2, Distance: 1500, NoLaps: 1}}
	t.TrackPoints = []track.TrackPoint{
		{Latitude: 51.532719, Longitude: -0.123456, Altitude: 12, Speed: 10.2, HeartRate: 120, Interval: 0},
		{Latitude: 51.5331, Longitude: -0.1231, Altitude: -3, Speed: 11.05, HeartRate: 131, Interval: 1500 * time.Millisecond},
	}
	t.UpdateTrackPointTimes()
	return t
}

func TestWriteGPX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGPX(&buf, []track.Track{sample(7, start)}, now))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `xmlns="http://www.topografix.com/GPX/1/1"`)
	assert.Regexp(t, `<(\w+:)?hr[^>]*>131</(\w+:)?hr>`, out)
	assert.Contains(t, out, tpxNS)

	doc, err := gpx.ParseBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, gpxCreator, doc.Creator)
	require.NotNil(t, doc.Time)
	assert.True(t, now.Equal(*doc.Time))

	require.Len(t, doc.Tracks, 1)
	trk := doc.Tracks[0]
	assert.Equal(t, "Track 2023-05-06 07:08", trk.Name)
	assert.Equal(t, "id=7", trk.Comment)
	assert.Equal(t, gpxSource, trk.Source)
	require.Len(t, trk.Segments, 1)
	points := trk.Segments[0].Points
	require.Len(t, points, 2)
	assert.Equal(t, 51.532719, points[0].Latitude)
	assert.Equal(t, -0.123456, points[0].Longitude)
	assert.Equal(t, 12.0, points[0].Elevation.Value())
	assert.Equal(t, -3.0, points[1].Elevation.Value())
	assert.True(t, start.Equal(points[0].Timestamp))
	assert.WithinDuration(t, start.Add(1500*time.Millisecond), points[1].Timestamp, time.Second)

	// The document must stay well-formed.
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		if _, err := dec.Token(); err != nil {
			assert.Equal(t, "EOF", err.Error())
			break
		}
	}
}

func TestWriteGPXTrackWithoutPoints(t *testing.T) {
	var buf bytes.Buffer
	empty := track.Track{Header: track.Header{ID: 1, Date: start}}
	require.NoError(t, WriteGPX(&buf, []track.Track{empty, sample(2, start)}, now))

	doc, err := gpx.ParseBytes(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 2)
	assert.Equal(t, "id=1", doc.Tracks[0].Comment)
	assert.Zero(t, doc.Tracks[0].GetTrackPointsNo())
	assert.Equal(t, 2, doc.Tracks[1].GetTrackPointsNo())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []track.Track{sample(7, start), sample(8, start.Add(time.Hour))}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "track_id,index,time,latitude,longitude,altitude_m,speed_kph,heart_rate,interval_s", lines[0])

	var rows []*PointRow
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, uint16(8), rows[3].TrackID)
	assert.Equal(t, 1, rows[3].Index)
	assert.Equal(t, "2023-05-06T08:08:10Z", rows[3].Time)
	assert.Equal(t, 51.532719, rows[0].Latitude)
	assert.Equal(t, 1.5, rows[1].Interval)
}

func TestExportPerTrack(t *testing.T) {
	fs := afero.NewMemMapFs()
	e, err := New(fs, Options{Dir: "/out", Now: func() time.Time { return now }})
	require.NoError(t, err)

	paths, err := e.Export([]track.Track{sample(7, start), sample(8, start.Add(time.Hour))})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/out/track-2023-05-06-07-08-09.gpx",
		"/out/track-2023-05-06-08-08-09.gpx",
	}, paths)

	data, err := afero.ReadFile(fs, paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<cmt>id=8</cmt>")
	assert.NotContains(t, string(data), "<cmt>id=7</cmt>")
}

func TestExportMerged(t *testing.T) {
	fs := afero.NewMemMapFs()
	e, err := New(fs, Options{Dir: "/out", Format: FormatCSV, Merge: true})
	require.NoError(t, err)

	paths, err := e.Export([]track.Track{sample(7, start), sample(8, start)})
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/downloaded_tracks.csv"}, paths)

	exists, err := afero.Exists(fs, paths[0])
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExportNothing(t *testing.T) {
	e, err := New(afero.NewMemMapFs(), Options{})
	require.NoError(t, err)
	paths, err := e.Export(nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), Options{Format: "kml"})
	require.Error(t, err)
}
