// Package server exposes the playback over HTTP: a JSON API with playback
// controls, a server-sent events frame stream and a GTFS-Realtime feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

// Playback is the part of *sim.Player the HTTP layer drives.
type Playback interface {
	Latest() *sim.Frame
	Catalog() *sim.Catalog
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Seek(ctx context.Context, t float64) error
	SetSpeed(ctx context.Context, x float64) error
	SetTrail(ctx context.Context, seconds float64) error
}

type Metrics interface {
	ControlRequested(action string)
}

type Options struct {
	Metrics        Metrics
	MetricsHandler http.Handler // mounted at /metrics when set
	Events         http.Handler // mounted at /events when set
	Logger         zerolog.Logger
	Now            func() time.Time
}

type Server struct {
	pb   Playback
	opts Options
	log  zerolog.Logger
}

func New(pb Playback, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		pb:   pb,
		opts: opts,
		log:  opts.Logger.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/healthz", s.healthHandler)
	router.HandlerFunc(http.MethodGet, "/api/frame", s.frameHandler)
	router.HandlerFunc(http.MethodGet, "/api/summary", s.summaryHandler)
	router.HandlerFunc(http.MethodGet, "/api/routes", s.routesHandler)
	router.HandlerFunc(http.MethodGet, "/api/stops/:hour", s.stopsHandler)
	router.HandlerFunc(http.MethodGet, "/gtfs-rt/vehicle-positions", s.vehiclePositionsHandler)

	router.HandlerFunc(http.MethodPost, "/api/play", s.control("play", func(ctx context.Context, _ *http.Request) error {
		return s.pb.Play(ctx)
	}))
	router.HandlerFunc(http.MethodPost, "/api/pause", s.control("pause", func(ctx context.Context, _ *http.Request) error {
		return s.pb.Pause(ctx)
	}))
	router.HandlerFunc(http.MethodPost, "/api/toggle", s.control("toggle", func(ctx context.Context, _ *http.Request) error {
		return s.pb.Toggle(ctx)
	}))
	router.HandlerFunc(http.MethodPost, "/api/seek", s.control("seek", func(ctx context.Context, r *http.Request) error {
		t, err := parseTimeOfDay(r.URL.Query().Get("t"))
		if err != nil {
			return err
		}
		return s.pb.Seek(ctx, t)
	}))
	router.HandlerFunc(http.MethodPost, "/api/speed", s.control("speed", func(ctx context.Context, r *http.Request) error {
		x, err := floatParam(r, "x", func(v float64) bool { return v > 0 })
		if err != nil {
			return err
		}
		return s.pb.SetSpeed(ctx, x)
	}))
	router.HandlerFunc(http.MethodPost, "/api/trail", s.control("trail", func(ctx context.Context, r *http.Request) error {
		sec, err := floatParam(r, "s", func(v float64) bool { return v >= 0 })
		if err != nil {
			return err
		}
		return s.pb.SetTrail(ctx, sec)
	}))

	if s.opts.MetricsHandler != nil {
		router.Handler(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}
	if s.opts.Events != nil {
		router.Handler(http.MethodGet, "/events", s.opts.Events)
	}
	return router
}

// Serve starts an HTTP server for Routes on the given address.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
	s.log.Info().Str("addr", addr).Msg("http listening")
	return srv
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status    string `json:"status"`
		Loaded    bool   `json:"loaded"`
		SessionID string `json:"sessionId,omitempty"`
	}{Status: "ok"}
	if c := s.pb.Catalog(); c != nil {
		resp.Loaded = true
		resp.SessionID = c.SessionID
	}
	s.sendJSON(w, r, http.StatusOK, resp)
}

func (s *Server) frameHandler(w http.ResponseWriter, r *http.Request) {
	f := s.pb.Latest()
	if f == nil {
		s.notLoadedResponse(w, r)
		return
	}
	s.sendJSON(w, r, http.StatusOK, f)
}

type summaryResponse struct {
	SessionID   string           `json:"sessionId"`
	SimTime     float64          `json:"simTime"`
	Clock       string           `json:"clock"`
	Hour        int              `json:"hour"`
	Window      string           `json:"window"`
	Playing     bool             `json:"playing"`
	Speed       float64          `json:"speed"`
	ActiveCount int              `json:"activeCount"`
	TripsCount  int              `json:"tripsCount"`
	Percent     float64          `json:"percent"`
	TopRoutes   []sim.RouteCount `json:"topRoutes"`
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	top := sim.DefaultTopRoutes
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.badRequestResponse(w, r, &paramError{name: "top", value: v})
			return
		}
		top = n
	}
	f := s.pb.Latest()
	if f == nil {
		s.notLoadedResponse(w, r)
		return
	}
	s.sendJSON(w, r, http.StatusOK, summaryResponse{
		SessionID:   f.SessionID,
		SimTime:     f.SimTime,
		Clock:       f.Clock,
		Hour:        f.Hour,
		Window:      f.Window,
		Playing:     f.Playing,
		Speed:       f.Speed,
		ActiveCount: f.Summary.ActiveCount,
		TripsCount:  f.Summary.TripsCount,
		Percent:     f.Percent,
		TopRoutes:   f.Summary.TopRoutes(top),
	})
}

func (s *Server) routesHandler(w http.ResponseWriter, r *http.Request) {
	c := s.pb.Catalog()
	if c == nil {
		s.notLoadedResponse(w, r)
		return
	}
	routes := make([]gtfs.Route, 0, len(c.Routes))
	for id := range c.Routes {
		routes = append(routes, c.RouteInfo(id))
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	s.sendJSON(w, r, http.StatusOK, routes)
}

type stopCount struct {
	StopID string  `json:"stopId"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Count  int     `json:"count"`
}

// stopsHandler lists stops with at least one departure in the hour.
func (s *Server) stopsHandler(w http.ResponseWriter, r *http.Request) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName("hour")
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		s.badRequestResponse(w, r, &paramError{name: "hour", value: raw})
		return
	}
	c := s.pb.Catalog()
	if c == nil {
		s.notLoadedResponse(w, r)
		return
	}
	out := make([]stopCount, 0)
	for _, st := range c.Stops {
		if n := st.Hourly[hour]; n > 0 {
			out = append(out, stopCount{StopID: st.StopID, Lat: st.Lat, Lon: st.Lon, Count: n})
		}
	}
	s.sendJSON(w, r, http.StatusOK, out)
}

type controlState struct {
	Playing      bool    `json:"playing"`
	SimTime      float64 `json:"simTime"`
	Clock        string  `json:"clock"`
	Speed        float64 `json:"speed"`
	TrailSeconds float64 `json:"trailSeconds"`
}

func (s *Server) control(action string, fn func(ctx context.Context, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Metrics != nil {
			s.opts.Metrics.ControlRequested(action)
		}
		if err := fn(r.Context(), r); err != nil {
			var pe *paramError
			if errors.As(err, &pe) {
				s.badRequestResponse(w, r, pe)
				return
			}
			s.log.Error().Err(err).Str("action", action).Msg("control failed")
			s.serverErrorResponse(w, r, err)
			return
		}
		f := s.pb.Latest()
		if f == nil {
			s.notLoadedResponse(w, r)
			return
		}
		s.sendJSON(w, r, http.StatusOK, controlState{
			Playing:      f.Playing,
			SimTime:      f.SimTime,
			Clock:        f.Clock,
			Speed:        f.Speed,
			TrailSeconds: f.TrailSeconds,
		})
	}
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.name, e.value)
}

func floatParam(r *http.Request, name string, ok func(float64) bool) (float64, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || !ok(v) {
		return 0, &paramError{name: name, value: raw}
	}
	return v, nil
}

// parseTimeOfDay accepts seconds since midnight or HH:MM[:SS].
func parseTimeOfDay(raw string) (float64, error) {
	bad := &paramError{name: "t", value: raw}
	if !strings.Contains(raw, ":") {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, bad
		}
		return v, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0, bad
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, bad
		}
		total += n * []int{3600, 60, 1}[i]
	}
	return float64(total), nil
}
