// Package index groups decoded trips by the hour of day they are rendered in.
package index

import (
	"sort"

	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// HourlyIndex is built once at load and is read-only afterwards.
type HourlyIndex struct {
	byHour map[int][]*gtfs.Trip
	trips  int
}

// New stores each bucket's trip list verbatim. A later bucket for the same
// hour replaces an earlier one.
func New(buckets []gtfs.HourBucket) *HourlyIndex {
	idx := &HourlyIndex{byHour: make(map[int][]*gtfs.Trip, len(buckets))}
	for _, b := range buckets {
		if prev, ok := idx.byHour[b.Hour]; ok {
			idx.trips -= len(prev)
		}
		idx.byHour[b.Hour] = b.Trips
		idx.trips += len(b.Trips)
	}
	return idx
}

// Trips returns the trips listed under hour. ok is false when the bundle
// declared no entry for that hour, which callers treat as an empty hour.
func (idx *HourlyIndex) Trips(hour int) (trips []*gtfs.Trip, ok bool) {
	if idx == nil {
		return nil, false
	}
	trips, ok = idx.byHour[hour]
	return trips, ok
}

func (idx *HourlyIndex) Len(hour int) int {
	trips, _ := idx.Trips(hour)
	return len(trips)
}

// Hours lists the declared hours in ascending order.
func (idx *HourlyIndex) Hours() []int {
	hours := make([]int, 0, len(idx.byHour))
	for h := range idx.byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func (idx *HourlyIndex) TripCount() int { return idx.trips }
