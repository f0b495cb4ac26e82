package sim

import (
	"sort"

	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// DefaultTopRoutes is how many routes a summary ranking shows.
const DefaultTopRoutes = 12

type Summary struct {
	ActiveCount int            `json:"activeCount"`
	TripsCount  int            `json:"tripsCount"`
	ByRoute     map[string]int `json:"byRoute"`
}

type RouteCount struct {
	RouteID string `json:"routeId"`
	Count   int    `json:"count"`
}

// Summarize tallies one frame. active[i] reports whether trips[i] resolved to
// a position.
func Summarize(trips []*gtfs.Trip, active []bool) Summary {
	s := Summary{TripsCount: len(trips), ByRoute: make(map[string]int)}
	for i, trip := range trips {
		if i >= len(active) || !active[i] {
			continue
		}
		s.ActiveCount++
		s.ByRoute[trip.RouteID]++
	}
	return s
}

// Percent is the share of active trips, 0 when there are no trips.
func (s Summary) Percent() float64 {
	if s.TripsCount == 0 {
		return 0
	}
	return float64(s.ActiveCount) / float64(s.TripsCount) * 100
}

// TopRoutes ranks routes by active count, highest first, breaking ties by
// route id. n <= 0 returns every route.
func (s Summary) TopRoutes(n int) []RouteCount {
	out := make([]RouteCount, 0, len(s.ByRoute))
	for id, c := range s.ByRoute {
		out = append(out, RouteCount{RouteID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RouteID < out[j].RouteID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
