package track

import (
	"fmt"
	"strings"
	"time"
)

// Field identifies one header attribute. A Header records which attributes
// the device actually reported, because the different download messages
// each carry only a subset of them.
type Field uint32

const (
	FieldDate Field = 1 << iota
	FieldDuration
	FieldDistance
	FieldNoLaps
	FieldNoTrackPoints
	FieldMemoryBlockIndex
	FieldID
	FieldCalories
	FieldMaxSpeed
	FieldMaxHeartRate
	FieldAvgHeartRate
	FieldAscendingHeight
	FieldDescendingHeight
	FieldMinHeight
	FieldMaxHeight
)

// AllFields marks every header field as present.
const AllFields = FieldMaxHeight<<1 - 1

// Summary fields are reported by every 29-byte track header.
const Summary = FieldDate | FieldDuration | FieldDistance | FieldNoLaps | FieldNoTrackPoints

// Header holds the per-track metadata reported by the device.
type Header struct {
	ID               uint16        `json:"id"`
	MemoryBlockIndex uint16        `json:"memoryBlockIndex"` // device storage slot, not the id
	Date             time.Time     `json:"date"`             // device-local start time
	Duration         time.Duration `json:"duration"`
	Distance         uint32        `json:"distance"` // m
	Calories         uint16        `json:"calories"` // kcal
	NoLaps           uint16        `json:"noLaps"`
	NoTrackPoints    uint32        `json:"noTrackPoints"`
	MaxSpeed         uint16        `json:"maxSpeed"` // raw device units
	MaxHeartRate     uint8         `json:"maxHeartRate"`
	AvgHeartRate     uint8         `json:"avgHeartRate"`
	AscendingHeight  uint16        `json:"ascendingHeight"`  // m
	DescendingHeight uint16        `json:"descendingHeight"` // m
	MinHeight        int16         `json:"minHeight"`        // m
	MaxHeight        int16         `json:"maxHeight"`        // m

	Fields Field `json:"fields"` // which of the above were reported
}

// Has reports whether all fields in f are present.
func (h Header) Has(f Field) bool { return h.Fields&f == f }

// With marks f as present and returns the header.
func (h Header) With(f Field) Header {
	h.Fields |= f
	return h
}

// CompatibleTo reports whether h and o can describe the same track: every
// field present in both must agree. Fields missing on either side are
// unconstrained. The relation is symmetric.
func (h Header) CompatibleTo(o Header) bool {
	both := h.Fields & o.Fields
	same := func(f Field, equal bool) bool { return both&f == 0 || equal }

	return same(FieldDate, h.Date.Equal(o.Date)) &&
		same(FieldDuration, h.Duration == o.Duration) &&
		same(FieldDistance, h.Distance == o.Distance) &&
		same(FieldNoLaps, h.NoLaps == o.NoLaps) &&
		same(FieldNoTrackPoints, h.NoTrackPoints == o.NoTrackPoints) &&
		same(FieldMemoryBlockIndex, h.MemoryBlockIndex == o.MemoryBlockIndex) &&
		same(FieldID, h.ID == o.ID) &&
		same(FieldCalories, h.Calories == o.Calories) &&
		same(FieldMaxSpeed, h.MaxSpeed == o.MaxSpeed) &&
		same(FieldMaxHeartRate, h.MaxHeartRate == o.MaxHeartRate) &&
		same(FieldAvgHeartRate, h.AvgHeartRate == o.AvgHeartRate) &&
		same(FieldAscendingHeight, h.AscendingHeight == o.AscendingHeight) &&
		same(FieldDescendingHeight, h.DescendingHeight == o.DescendingHeight) &&
		same(FieldMinHeight, h.MinHeight == o.MinHeight) &&
		same(FieldMaxHeight, h.MaxHeight == o.MaxHeight)
}

// String lists the reported fields, for log output.
func (h Header) String() string {
	var parts []string
	add := func(f Field, name string, v any) {
		if h.Has(f) {
			parts = append(parts, fmt.Sprintf("%s=%v", name, v))
		}
	}
	add(FieldID, "id", h.ID)
	add(FieldDate, "date", h.Date.Format("2006-01-02 15:04:05"))
	add(FieldDuration, "duration", h.Duration)
	add(FieldDistance, "distance", h.Distance)
	add(FieldNoLaps, "laps", h.NoLaps)
	add(FieldNoTrackPoints, "points", h.NoTrackPoints)
	add(FieldMemoryBlockIndex, "mem", h.MemoryBlockIndex)
	add(FieldCalories, "calories", h.Calories)
	add(FieldMaxSpeed, "max_speed", h.MaxSpeed)
	add(FieldMaxHeartRate, "max_hr", h.MaxHeartRate)
	add(FieldAvgHeartRate, "avg_hr", h.AvgHeartRate)
	add(FieldAscendingHeight, "asc", h.AscendingHeight)
	add(FieldDescendingHeight, "desc", h.DescendingHeight)
	add(FieldMinHeight, "min_height", h.MinHeight)
	add(FieldMaxHeight, "max_height", h.MaxHeight)
	return "Track(" + strings.Join(parts, ", ") + ")"
}
