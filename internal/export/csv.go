package export

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/shaunagostinho/sq100/internal/track"
)

// PointRow is one CSV line: a track point with its track id.
type PointRow struct {
	TrackID   uint16  `csv:"track_id"`
	Index     int     `csv:"index"`
	Time      string  `csv:"time"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
	Altitude  int16   `csv:"altitude_m"`
	Speed     float64 `csv:"speed_kph"`
	HeartRate uint8   `csv:"heart_rate"`
	Interval  float64 `csv:"interval_s"`
}

// Rows flattens tracks into CSV rows, in track then point order.
func Rows(tracks []track.Track) []*PointRow {
	rows := []*PointRow{}
	for i := range tracks {
		t := &tracks[i]
		for j, p := range t.TrackPoints {
			rows = append(rows, &PointRow{
				TrackID:   t.ID,
				Index:     j,
				Time:      p.Time.UTC().Format(time.RFC3339),
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				Altitude:  p.Altitude,
				Speed:     p.Speed,
				HeartRate: p.HeartRate,
				Interval:  p.Interval.Seconds(),
			})
		}
	}
	return rows
}

// WriteCSV writes one row per track point, header first.
func WriteCSV(w io.Writer, tracks []track.Track) error {
	if err := gocsv.Marshal(Rows(tracks), w); err != nil {
		return fmt.Errorf("export: encode csv: %w", err)
	}
	return nil
}
