package bundle

import (
	"math"
	"sort"
	"strings"

	"github.com/devbret/trimet-gtfs-visualization/internal/codec"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// DefaultBuildScale is the fixed-point scale written by the builder.
const DefaultBuildScale = 50000

// Schedule is the static input a bundle is built from.
type Schedule struct {
	Routes []gtfs.Route
	Trips  []gtfs.ScheduledTrip
	Stops  map[string]gtfs.Stop
}

type BuildOptions struct {
	Q           int
	StartHour   int
	EndHour     int    // exclusive
	RouteFilter string // empty keeps every route
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Q: DefaultBuildScale, StartHour: 9, EndHour: 18}
}

// NormalizeColor returns "#RRGGBB" in upper case, or gtfs.DefaultColor when
// s is blank.
func NormalizeColor(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return gtfs.DefaultColor
	}
	return "#" + strings.ToUpper(strings.TrimPrefix(s, "#"))
}

type rawSegment struct {
	ta, tb     int
	aLat, aLon float64
	bLat, bLon float64
}

// Build clips every trip's stop-to-stop hops to each hour of the window and
// encodes the result. A trip appears once per hour in which it moves.
func Build(s Schedule, opt BuildOptions) *Bundle {
	if opt.Q <= 0 {
		opt.Q = DefaultBuildScale
	}
	windowStart := opt.StartHour * 3600
	windowEnd := opt.EndHour * 3600

	b := &Bundle{
		Meta:   Meta{Q: opt.Q, Window: &Window{StartHour: opt.StartHour, EndHour: opt.EndHour}},
		Routes: make(map[string]RouteMeta),
	}
	for _, r := range s.Routes {
		if opt.RouteFilter != "" && r.ID != opt.RouteFilter {
			continue
		}
		b.Routes[r.ID] = RouteMeta{ShortName: r.ShortName, Color: NormalizeColor(r.Color)}
	}

	byHour := make(map[int][]TripRecord)
	hourlyByStop := make(map[string]*[24]int)
	for _, trip := range s.Trips {
		if _, ok := b.Routes[trip.RouteID]; !ok {
			continue
		}
		rows := append([]gtfs.StopTime(nil), trip.StopTimes...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].StopSequence < rows[j].StopSequence })

		for _, st := range rows {
			if _, ok := s.Stops[st.StopID]; !ok {
				continue
			}
			if st.DepartureSec < windowStart || st.DepartureSec >= windowEnd {
				continue
			}
			counts, ok := hourlyByStop[st.StopID]
			if !ok {
				counts = new([24]int)
				hourlyByStop[st.StopID] = counts
			}
			counts[min(23, max(0, st.DepartureSec/3600))]++
		}

		for h := opt.StartHour; h < opt.EndHour; h++ {
			segs := clipToHour(rows, s.Stops, h)
			if len(segs) == 0 {
				continue
			}
			byHour[h] = append(byHour[h], TripRecord{
				TripID:         trip.TripID,
				RouteID:        trip.RouteID,
				Headsign:       trip.Headsign,
				SegmentsPacked: pack(segs, opt.Q),
			})
		}
	}

	for h := opt.StartHour; h < opt.EndHour; h++ {
		trips := byHour[h]
		if trips == nil {
			trips = []TripRecord{}
		}
		b.TripsByHour = append(b.TripsByHour, HourEntry{Hour: h, Trips: trips})
	}

	stopIDs := make([]string, 0, len(hourlyByStop))
	for id := range hourlyByStop {
		stopIDs = append(stopIDs, id)
	}
	sort.Strings(stopIDs)
	for _, id := range stopIDs {
		stop := s.Stops[id]
		b.StopsHourly = append(b.StopsHourly, StopHourly{
			StopID: id,
			Lat:    stop.Lat,
			Lon:    stop.Lon,
			Hourly: hourlyByStop[id][:],
		})
	}
	return b
}

func clipToHour(rows []gtfs.StopTime, stops map[string]gtfs.Stop, hour int) []rawSegment {
	start := hour * 3600
	end := start + 3600
	var out []rawSegment
	for i := 0; i+1 < len(rows); i++ {
		a, b := rows[i], rows[i+1]
		t0, t1 := a.DepartureSec, b.ArrivalSec
		if t1 <= t0 {
			continue
		}
		s0, ok0 := stops[a.StopID]
		s1, ok1 := stops[b.StopID]
		if !ok0 || !ok1 {
			continue
		}
		if t1 <= start || t0 >= end {
			continue
		}
		ta, tb := max(t0, start), min(t1, end)
		if tb <= ta {
			continue
		}
		ua := float64(ta-t0) / float64(t1-t0)
		ub := float64(tb-t0) / float64(t1-t0)
		out = append(out, rawSegment{
			ta: ta, tb: tb,
			aLat: lerp(s0.Lat, s1.Lat, ua), aLon: lerp(s0.Lon, s1.Lon, ua),
			bLat: lerp(s0.Lat, s1.Lat, ub), bLon: lerp(s0.Lon, s1.Lon, ub),
		})
	}
	return out
}

func pack(segs []rawSegment, q int) *PackedSegments {
	scale := float64(q)
	t := make([]int32, 0, 2*len(segs))
	p := make([]int32, 0, 4*len(segs))
	for _, s := range segs {
		t = append(t, int32(s.ta), int32(s.tb))
		p = append(p,
			int32(math.Round(s.aLat*scale)), int32(math.Round(s.aLon*scale)),
			int32(math.Round(s.bLat*scale)), int32(math.Round(s.bLon*scale)),
		)
	}
	return &PackedSegments{
		T: codec.EncodeDeltasBase64(t),
		P: codec.EncodeDeltasBase64(p),
		N: len(segs),
	}
}

func lerp(a, b, u float64) float64 { return a + (b-a)*u }
