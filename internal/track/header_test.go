package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCompatibleToIgnoresMissingFields(t *testing.T) {
	list := Header{ID: 13, MemoryBlockIndex: 7}.With(FieldID | FieldMemoryBlockIndex)
	info := Header{Calories: 420, MaxHeartRate: 171}.With(FieldCalories | FieldMaxHeartRate)

	assert.True(t, list.CompatibleTo(info))
	assert.True(t, info.CompatibleTo(list))
}

func TestCompatibleToRejectsDifferingSharedField(t *testing.T) {
	date := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	a := Header{Date: date, NoTrackPoints: 100}.With(FieldDate | FieldNoTrackPoints)
	b := Header{Date: date, NoTrackPoints: 101}.With(FieldDate | FieldNoTrackPoints)

	assert.False(t, a.CompatibleTo(b))
	assert.False(t, b.CompatibleTo(a))

	b.NoTrackPoints = 100
	assert.True(t, a.CompatibleTo(b))
}

func TestCompatibleToEmptyHeader(t *testing.T) {
	full := Header{ID: 1, Distance: 5000}.With(FieldID | FieldDistance)
	assert.True(t, Header{}.CompatibleTo(full))
	assert.True(t, full.CompatibleTo(Header{}))
}

func TestHeaderString(t *testing.T) {
	h := Header{ID: 2, NoLaps: 3}.With(FieldID | FieldNoLaps)
	assert.Equal(t, "Track(id=2, laps=3)", h.String())
	assert.Equal(t, "Track()", Header{}.String())
}

func genHeader(t *rapid.T) Header {
	return Header{
		ID:            rapid.Uint16Range(0, 3).Draw(t, "id"),
		Distance:      rapid.Uint32Range(0, 3).Draw(t, "distance"),
		NoTrackPoints: rapid.Uint32Range(0, 3).Draw(t, "points"),
		MaxHeartRate:  rapid.Uint8Range(0, 3).Draw(t, "max_hr"),
		Fields:        Field(rapid.Uint32Range(0, uint32(AllFields)).Draw(t, "fields")),
	}
}

func TestCompatibleToIsSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b := genHeader(t), genHeader(t)
		if a.CompatibleTo(b) != b.CompatibleTo(a) {
			t.Fatalf("asymmetric: %v vs %v", a, b)
		}
	})
}

func TestCompatibleToIsReflexive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := genHeader(t)
		if !h.CompatibleTo(h) {
			t.Fatalf("header not compatible with itself: %v", h)
		}
	})
}
