package sim

import (
	"cmp"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devbret/trimet-gtfs-visualization/internal/bundle"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
	"github.com/devbret/trimet-gtfs-visualization/internal/index"
)

// Metrics receives engine observations. A nil Metrics is allowed.
type Metrics interface {
	HourRebuilt(hour, trips int)
	FrameBuilt(d time.Duration, s Summary, simTime float64)
	ControlsChanged(speed, trailSeconds float64)
}

type EngineOptions struct {
	Speed        float64
	TrailSeconds float64
	TopRoutes    int
	TrailChunks  int
	Metrics      Metrics
	Logger       zerolog.Logger
}

// Catalog is the immutable reference data of a loaded bundle.
type Catalog struct {
	SessionID string
	Q         float64
	Routes    map[string]gtfs.Route
	Stops     []gtfs.StopActivity
	Hours     []int
	Trips     int
}

// RouteInfo returns display data for a route, falling back to the default
// color and the raw id when the route is unknown.
func (c *Catalog) RouteInfo(id string) gtfs.Route {
	r, ok := c.Routes[id]
	if !ok {
		return gtfs.Route{ID: id, ShortName: id, Color: gtfs.DefaultColor}
	}
	if r.ShortName == "" {
		r.ShortName = id
	}
	if r.Color == "" {
		r.Color = gtfs.DefaultColor
	}
	return r
}

// Engine owns all playback state for one loaded bundle. It is not safe for
// concurrent use; Player confines it to a single goroutine.
type Engine struct {
	catalog *Catalog
	idx     *index.HourlyIndex
	clock   *Clock
	opts    EngineOptions
	log     zerolog.Logger

	trailWindow float64
	hour        int
	trips       []*gtfs.Trip
	trails      []TrailBuffer
	active      []bool
	rebuilds    int
}

func NewEngine(l *bundle.Loaded, opts EngineOptions) *Engine {
	if opts.TopRoutes <= 0 {
		opts.TopRoutes = DefaultTopRoutes
	}
	if opts.TrailChunks <= 0 {
		opts.TrailChunks = DefaultTrailChunks
	}
	idx := index.New(l.Buckets)
	e := &Engine{
		catalog: &Catalog{
			SessionID: uuid.New().String(),
			Q:         l.Q,
			Routes:    l.Routes,
			Stops:     l.Stops,
			Hours:     idx.Hours(),
			Trips:     idx.TripCount(),
		},
		idx:         idx,
		clock:       NewClock(opts.Speed),
		opts:        opts,
		log:         opts.Logger.With().Str("component", "engine").Logger(),
		trailWindow: max(0, opts.TrailSeconds),
	}
	e.rebuild(e.clock.Hour())
	return e
}

func (e *Engine) Catalog() *Catalog     { return e.catalog }
func (e *Engine) Clock() *Clock         { return e.clock }
func (e *Engine) Hour() int             { return e.hour }
func (e *Engine) Rebuilds() int         { return e.rebuilds }
func (e *Engine) Playing() bool         { return e.clock.Playing() }
func (e *Engine) TrailSeconds() float64 { return e.trailWindow }

func (e *Engine) SetTime(t float64) Change { return e.apply(e.clock.SetTime(t)) }
func (e *Engine) Play() Change             { return e.apply(e.clock.Play()) }
func (e *Engine) Toggle() Change           { return e.apply(e.clock.Toggle()) }
func (e *Engine) Tick(wall time.Duration) Change {
	return e.apply(e.clock.Tick(wall))
}

func (e *Engine) Pause() { e.clock.Pause() }

func (e *Engine) SetSpeed(x float64) {
	e.clock.SetSpeed(x)
	e.controlsChanged()
}

// SetTrail sets the trail window in seconds. Zero disables trails and drops
// every buffered sample. Non-finite values are ignored.
func (e *Engine) SetTrail(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	e.trailWindow = max(0, seconds)
	if e.trailWindow == 0 {
		for i := range e.trails {
			e.trails[i].Reset()
		}
	}
	e.controlsChanged()
}

func (e *Engine) controlsChanged() {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ControlsChanged(e.clock.Speed(), e.trailWindow)
	}
}

func (e *Engine) apply(c Change) Change {
	if c.HourChanged {
		e.rebuild(HourOf(c.To))
	}
	return c
}

// rebuild swaps in the trip list of hour h and starts fresh trails.
func (e *Engine) rebuild(h int) {
	trips, ok := e.idx.Trips(h)
	e.hour = h
	e.trips = trips
	e.trails = make([]TrailBuffer, len(trips))
	e.active = make([]bool, len(trips))
	e.rebuilds++
	if !ok {
		e.log.Debug().Int("hour", h).Msg("no trips for hour")
	} else {
		e.log.Debug().Int("hour", h).Int("trips", len(trips)).Msg("hour loaded")
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.HourRebuilt(h, len(trips))
	}
}

// Vehicle is one trip's state in a frame. Position is nil when inactive.
type Vehicle struct {
	TripID    string         `json:"tripId"`
	RouteID   string         `json:"routeId"`
	RouteName string         `json:"routeName"`
	Headsign  string         `json:"headsign"`
	Color     string         `json:"color"`
	Active    bool           `json:"active"`
	Position  *gtfs.Position `json:"position,omitempty"`
	Trail     []TrailChunk   `json:"trail,omitempty"`
}

// Frame is the pure-data result of one render pass.
type Frame struct {
	SessionID    string       `json:"sessionId"`
	SimTime      float64      `json:"simTime"`
	Clock        string       `json:"clock"`
	Hour         int          `json:"hour"`
	Window       string       `json:"window"`
	Playing      bool         `json:"playing"`
	Speed        float64      `json:"speed"`
	TrailSeconds float64      `json:"trailSeconds"`
	Vehicles     []Vehicle    `json:"vehicles"`
	Summary      Summary      `json:"summary"`
	Percent      float64      `json:"percent"`
	TopRoutes    []RouteCount `json:"topRoutes"`
}

// Frame resolves every trip of the current hour at the clock's time, updates
// trails and returns the result.
func (e *Engine) Frame() *Frame {
	start := time.Now()
	now := e.clock.Now()
	f := &Frame{
		SessionID:    e.catalog.SessionID,
		SimTime:      now,
		Clock:        FormatClock(now),
		Hour:         e.hour,
		Window:       HourWindow(e.hour),
		Playing:      e.clock.Playing(),
		Speed:        e.clock.Speed(),
		TrailSeconds: e.trailWindow,
		Vehicles:     make([]Vehicle, len(e.trips)),
	}
	for i, trip := range e.trips {
		r := e.catalog.RouteInfo(trip.RouteID)
		v := Vehicle{
			TripID:    trip.ID,
			RouteID:   trip.RouteID,
			RouteName: r.ShortName,
			Headsign:  cmp.Or(trip.Headsign, r.Headsign),
			Color:     r.Color,
		}
		pos, ok := Resolve(trip, now, e.catalog.Q)
		e.active[i] = ok
		if ok {
			v.Active = true
			v.Position = &pos
			e.trails[i].Push(gtfs.TrailSample{T: now, Lat: pos.Lat, Lon: pos.Lon}, e.trailWindow)
		}
		v.Trail = e.trails[i].Chunks(e.opts.TrailChunks)
		f.Vehicles[i] = v
	}
	f.Summary = Summarize(e.trips, e.active)
	f.Percent = f.Summary.Percent()
	f.TopRoutes = f.Summary.TopRoutes(e.opts.TopRoutes)
	if e.opts.Metrics != nil {
		e.opts.Metrics.FrameBuilt(time.Since(start), f.Summary, now)
	}
	return f
}

// Trail returns a copy of trip slot i's trail samples.
func (e *Engine) Trail(i int) []gtfs.TrailSample {
	if i < 0 || i >= len(e.trails) {
		return nil
	}
	return e.trails[i].Samples()
}
