package gtfs

// DefaultColor is used for routes that carry no color of their own.
const DefaultColor = "#084C8D"

type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	Headsign  string `json:"headsign,omitempty"`
	Color     string `json:"color"` // #RRGGBB
}

// Segment is one timed straight-line hop of a trip. Times are seconds since
// midnight; coordinates are fixed-point and must be divided by the bundle's
// scale factor to obtain degrees.
type Segment struct {
	Start    int32
	End      int32
	StartLat int32
	StartLon int32
	EndLat   int32
	EndLon   int32
}

type Trip struct {
	ID       string
	RouteID  string
	Headsign string
	// Segments is nil when the trip has no decodable movement data. Such a
	// trip is never active.
	Segments []Segment
}

func (t *Trip) HasSegments() bool { return len(t.Segments) > 0 }

type HourBucket struct {
	Hour  int
	Trips []*Trip
}

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type TrailSample struct {
	T   float64 // simulation seconds since midnight
	Lat float64
	Lon float64
}

// StopActivity counts scheduled departures at one stop per hour of day.
type StopActivity struct {
	StopID string  `json:"stopId"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hourly [24]int `json:"hourly"`
}

// StopTime is one scheduled call used when building a bundle.
type StopTime struct {
	StopSequence int
	ArrivalSec   int // seconds since midnight (can exceed 24h)
	DepartureSec int // seconds since midnight (can exceed 24h)
	StopID       string
}

// ScheduledTrip is the raw schedule of a trip before it is encoded.
type ScheduledTrip struct {
	TripID    string
	RouteID   string
	Headsign  string
	StopTimes []StopTime
}

type Stop struct {
	StopID string
	Lat    float64
	Lon    float64
}
