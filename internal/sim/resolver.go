package sim

import "github.com/devbret/trimet-gtfs-visualization/internal/gtfs"

// Resolve returns the trip's interpolated position at simulation time t, or
// false if no segment covers t. Segments are scanned in stored order and the
// first one with Start <= t <= End wins. q is the fixed-point scale.
func Resolve(trip *gtfs.Trip, t, q float64) (gtfs.Position, bool) {
	if trip == nil {
		return gtfs.Position{}, false
	}
	for _, s := range trip.Segments {
		ta, tb := float64(s.Start), float64(s.End)
		if t < ta || t > tb {
			continue
		}
		aLat, aLon := float64(s.StartLat)/q, float64(s.StartLon)/q
		bLat, bLon := float64(s.EndLat)/q, float64(s.EndLon)/q
		if tb == ta {
			return gtfs.Position{Lat: bLat, Lon: bLon}, true
		}
		u := (t - ta) / (tb - ta)
		return gtfs.Position{Lat: interp(aLat, bLat, u), Lon: interp(aLon, bLon, u)}, true
	}
	return gtfs.Position{}, false
}

func interp(a, b, u float64) float64 { return a + (b-a)*u }
