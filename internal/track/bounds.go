package track

import "math"

// Point is a plain coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Bounds is the bounding box of a set of track points.
type Bounds struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Bounds returns the bounding box of the track's points. ok is false when the
// track has no points.
func (t *Track) Bounds() (b Bounds, ok bool) {
	if len(t.TrackPoints) == 0 {
		return Bounds{}, false
	}
	b = Bounds{
		Min: Point{Latitude: math.Inf(1), Longitude: math.Inf(1)},
		Max: Point{Latitude: math.Inf(-1), Longitude: math.Inf(-1)},
	}
	for _, p := range t.TrackPoints {
		b = b.extend(p.Latitude, p.Longitude)
	}
	return b, true
}

func (b Bounds) extend(lat, lon float64) Bounds {
	b.Min.Latitude = math.Min(b.Min.Latitude, lat)
	b.Min.Longitude = math.Min(b.Min.Longitude, lon)
	b.Max.Latitude = math.Max(b.Max.Latitude, lat)
	b.Max.Longitude = math.Max(b.Max.Longitude, lon)
	return b
}
