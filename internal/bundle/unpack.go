package bundle

import (
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// Loaded is the decoded, immutable form of a bundle.
type Loaded struct {
	Q       float64
	Routes  map[string]gtfs.Route
	Buckets []gtfs.HourBucket
	Stops   []gtfs.StopActivity
	Stats   UnpackStats
}

type UnpackStats struct {
	Trips    int
	Decoded  int
	Empty    int // no segments_packed
	Failures []TripFailure
}

type TripFailure struct {
	Hour   int
	TripID string
	Err    error
}

// Unpack decodes every trip's packed segments. A trip whose payload is
// absent or malformed is kept with nil segments so that it stays inactive;
// malformed payloads are reported in Stats.Failures. A route's headsign is
// the first non-empty headsign among its trips, in hour order.
func (b *Bundle) Unpack() *Loaded {
	l := &Loaded{
		Q:       b.Scale(),
		Routes:  make(map[string]gtfs.Route, len(b.Routes)),
		Buckets: make([]gtfs.HourBucket, 0, len(b.TripsByHour)),
	}
	for id, r := range b.Routes {
		l.Routes[id] = gtfs.Route{ID: id, ShortName: r.ShortName, Color: r.Color}
	}
	for _, entry := range b.TripsByHour {
		bucket := gtfs.HourBucket{Hour: entry.Hour, Trips: make([]*gtfs.Trip, 0, len(entry.Trips))}
		for _, rec := range entry.Trips {
			trip := &gtfs.Trip{ID: rec.TripID, RouteID: rec.RouteID, Headsign: rec.Headsign}
			if r, ok := l.Routes[rec.RouteID]; ok && r.Headsign == "" && rec.Headsign != "" {
				r.Headsign = rec.Headsign
				l.Routes[rec.RouteID] = r
			}
			l.Stats.Trips++
			switch sp := rec.SegmentsPacked; {
			case sp == nil:
				l.Stats.Empty++
			default:
				segs, err := DecodePacked(sp)
				if err != nil {
					l.Stats.Failures = append(l.Stats.Failures, TripFailure{Hour: entry.Hour, TripID: rec.TripID, Err: err})
					break
				}
				trip.Segments = segs
				l.Stats.Decoded++
			}
			bucket.Trips = append(bucket.Trips, trip)
		}
		l.Buckets = append(l.Buckets, bucket)
	}
	for _, s := range b.StopsHourly {
		sa := gtfs.StopActivity{StopID: s.StopID, Lat: s.Lat, Lon: s.Lon}
		copy(sa.Hourly[:], s.Hourly)
		l.Stops = append(l.Stops, sa)
	}
	return l
}
