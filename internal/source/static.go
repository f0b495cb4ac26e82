// Package source reads GTFS static feeds into bundle schedules. Only the
// bundler may import it: the static parser registers gtfs-realtime.proto,
// which collides with the realtime bindings linked into the playback binary.
package source

import (
	"fmt"
	"sort"
	"time"

	jgtfs "github.com/jamespfennell/gtfs"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// StaticOptions narrows what FromStatic keeps.
type StaticOptions struct {
	RouteFilter string
	// ServiceDate keeps trips whose service runs that day when non-zero.
	ServiceDate time.Time
}

// ParseStatic parses a GTFS static zip archive into a Schedule.
func ParseStatic(data []byte, opts StaticOptions) (bundle.Schedule, error) {
	static, err := jgtfs.ParseStatic(data, jgtfs.ParseStaticOptions{})
	if err != nil {
		return bundle.Schedule{}, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	return FromStatic(static, opts), nil
}

// FromStatic converts parsed GTFS data. Stops without coordinates are
// dropped; stop times that reference them are kept so the builder skips the
// hops on either side instead of joining their neighbours.
func FromStatic(static *jgtfs.Static, opts StaticOptions) bundle.Schedule {
	s := bundle.Schedule{Stops: make(map[string]gtfs.Stop, len(static.Stops))}
	for _, r := range static.Routes {
		if opts.RouteFilter != "" && r.Id != opts.RouteFilter {
			continue
		}
		s.Routes = append(s.Routes, gtfs.Route{ID: r.Id, ShortName: r.ShortName, Color: r.Color})
	}
	sort.Slice(s.Routes, func(i, j int) bool { return s.Routes[i].ID < s.Routes[j].ID })

	for _, st := range static.Stops {
		if st.Latitude == nil || st.Longitude == nil {
			continue
		}
		s.Stops[st.Id] = gtfs.Stop{StopID: st.Id, Lat: *st.Latitude, Lon: *st.Longitude}
	}

	for _, t := range static.Trips {
		if t.Route == nil {
			continue
		}
		if opts.RouteFilter != "" && t.Route.Id != opts.RouteFilter {
			continue
		}
		if !opts.ServiceDate.IsZero() && !runsOn(t.Service, opts.ServiceDate) {
			continue
		}
		trip := gtfs.ScheduledTrip{TripID: t.ID, RouteID: t.Route.Id, Headsign: t.Headsign}
		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			trip.StopTimes = append(trip.StopTimes, gtfs.StopTime{
				StopSequence: int(st.StopSequence),
				ArrivalSec:   int(st.ArrivalTime / time.Second),
				DepartureSec: int(st.DepartureTime / time.Second),
				StopID:       st.Stop.Id,
			})
		}
		s.Trips = append(s.Trips, trip)
	}
	sort.SliceStable(s.Trips, func(i, j int) bool {
		if s.Trips[i].RouteID != s.Trips[j].RouteID {
			return s.Trips[i].RouteID < s.Trips[j].RouteID
		}
		return s.Trips[i].TripID < s.Trips[j].TripID
	})
	return s
}

// runsOn applies calendar then calendar_dates exceptions for one day.
func runsOn(svc *jgtfs.Service, day time.Time) bool {
	if svc == nil {
		return false
	}
	date := day.Format("20060102")
	for _, d := range svc.RemovedDates {
		if d.Format("20060102") == date {
			return false
		}
	}
	for _, d := range svc.AddedDates {
		if d.Format("20060102") == date {
			return true
		}
	}
	if date < svc.StartDate.Format("20060102") || date > svc.EndDate.Format("20060102") {
		return false
	}
	switch day.Weekday() {
	case time.Monday:
		return svc.Monday
	case time.Tuesday:
		return svc.Tuesday
	case time.Wednesday:
		return svc.Wednesday
	case time.Thursday:
		return svc.Thursday
	case time.Friday:
		return svc.Friday
	case time.Saturday:
		return svc.Saturday
	default:
		return svc.Sunday
	}
}
