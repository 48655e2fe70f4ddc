package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/shaunagostinho/sq100/internal/track"
)

const (
	tpxNS      = "http://www.garmin.com/xmlschemas/TrackPointExtension/v2"
	gpxCreator = "sq100"
	gpxSource  = "Arival SQ100 computer"
)

// TrackName is the display name used for a track in exports.
func TrackName(t *track.Track) string {
	return "Track " + t.Date.Format("2006-01-02 15:04")
}

func trackDescription(t *track.Track) string {
	return fmt.Sprintf("%.2f km in %s, %d laps, avg hr %d",
		float64(t.Distance)/1000, t.Duration.Round(time.Second), t.NoLaps, t.AvgHeartRate)
}

// heartRate is a Garmin TrackPointExtension carrying one heart rate sample.
func heartRate(bpm uint8) gpx.Extension {
	return gpx.Extension{Nodes: []gpx.ExtensionNode{{
		XMLName: xml.Name{Space: tpxNS, Local: "TrackPointExtension"},
		Nodes: []gpx.ExtensionNode{{
			XMLName: xml.Name{Space: tpxNS, Local: "hr"},
			Data:    strconv.Itoa(int(bpm)),
		}},
	}}}
}

func gpxTrack(t *track.Track, number int) gpx.GPXTrack {
	points := make([]gpx.GPXPoint, len(t.TrackPoints))
	for i, p := range t.TrackPoints {
		points[i] = gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				Elevation: *gpx.NewNullableFloat64(float64(p.Altitude)),
			},
			Timestamp:  p.Time.UTC(),
			Extensions: heartRate(p.HeartRate),
		}
	}
	return gpx.GPXTrack{
		Name:        TrackName(t),
		Comment:     fmt.Sprintf("id=%d", t.ID),
		Description: trackDescription(t),
		Source:      gpxSource,
		Number:      *gpx.NewNullableInt(number),
		Segments:    []gpx.GPXTrackSegment{{Points: points}},
	}
}

// WriteGPX writes tracks as one GPX 1.1 document with Garmin heart rate
// extensions. now stamps the metadata.
func WriteGPX(w io.Writer, tracks []track.Track, now time.Time) error {
	stamp := now.UTC()
	doc := gpx.GPX{
		Version:     "1.1",
		Creator:     gpxCreator,
		Name:        "SQ100 Tracks",
		Description: "Tracks exported from an SQ100 device",
		Time:        &stamp,
	}
	for i := range tracks {
		doc.Tracks = append(doc.Tracks, gpxTrack(&tracks[i], i))
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("export: encode gpx: %w", err)
	}
	_, err = w.Write(data)
	return err
}
