package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

// NATSPublisher is a sim.Renderer that publishes active vehicle positions
// on <prefix>.<route>.<trip> and the frame summary on <prefix>.summary, at
// most once per interval while playing.
type NATSPublisher struct {
	nc          *nats.Conn
	conn        publishConn
	prefix      string
	throttle    sim.Throttle
	logSubjects bool
	log         zerolog.Logger
	metrics     PublisherMetrics
}

type publishConn interface {
	Publish(subject string, data []byte) error
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, interval time.Duration, logSubjects bool, m PublisherMetrics, log zerolog.Logger) (*NATSPublisher, error) {
	log = log.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("gtfs-playback"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, interval, logSubjects, m, log)
	p.nc = nc
	return p, nil
}

func newPublisher(conn publishConn, prefix string, interval time.Duration, logSubjects bool, m PublisherMetrics, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:        conn,
		prefix:      subjectPrefix(prefix),
		throttle:    sim.Throttle{Interval: interval},
		logSubjects: logSubjects,
		log:         log,
		metrics:     m,
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	SessionID string  `json:"sessionId"`
	TripID    string  `json:"tripId"`
	RouteID   string  `json:"routeId"`
	RouteName string  `json:"routeName"`
	Headsign  string  `json:"headsign,omitempty"`
	Color     string  `json:"color"`
	SimTime   float64 `json:"simTime"`
	Clock     string  `json:"clock"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

type SummaryMessage struct {
	SessionID string           `json:"sessionId"`
	SimTime   float64          `json:"simTime"`
	Clock     string           `json:"clock"`
	Hour      int              `json:"hour"`
	Playing   bool             `json:"playing"`
	Active    int              `json:"active"`
	Trips     int              `json:"trips"`
	Percent   float64          `json:"percent"`
	TopRoutes []sim.RouteCount `json:"topRoutes"`
}

func (p *NATSPublisher) Render(ctx context.Context, f *sim.Frame) error {
	if f == nil || !p.throttle.Allow(f) {
		return nil
	}

	var failed int
	var firstErr error
	note := func(err error) {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, v := range f.Vehicles {
		if !v.Active || v.Position == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		note(p.publish(p.prefix+"."+subjectToken(v.RouteID)+"."+subjectToken(v.TripID), PositionMessage{
			SessionID: f.SessionID,
			TripID:    v.TripID,
			RouteID:   v.RouteID,
			RouteName: v.RouteName,
			Headsign:  v.Headsign,
			Color:     v.Color,
			SimTime:   f.SimTime,
			Clock:     f.Clock,
			Lat:       v.Position.Lat,
			Lon:       v.Position.Lon,
		}))
	}
	note(p.publish(p.prefix+".summary", SummaryMessage{
		SessionID: f.SessionID,
		SimTime:   f.SimTime,
		Clock:     f.Clock,
		Hour:      f.Hour,
		Playing:   f.Playing,
		Active:    f.Summary.ActiveCount,
		Trips:     f.Summary.TripsCount,
		Percent:   f.Percent,
		TopRoutes: f.TopRoutes,
	}))
	if failed > 0 {
		return fmt.Errorf("nats publish: %d messages failed: %w", failed, firstErr)
	}
	return nil
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// subjectPrefix keeps dotted hierarchies but drops empty leading or
// trailing tokens.
func subjectPrefix(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return "playback"
	}
	return s
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
