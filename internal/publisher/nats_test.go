package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

type sent struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []sent
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, sent{subject, data})
	return nil
}

type countingMetrics struct {
	published, errs, observed int
}

func (m *countingMetrics) NATSPublishedInc()            { m.published++ }
func (m *countingMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) { m.observed++ }
func (m *countingMetrics) NATSSetConnected(bool)        {}

func testFrame() *sim.Frame {
	return &sim.Frame{
		SessionID: "s1",
		SimTime:   32460,
		Clock:     "09:01:00",
		Hour:      9,
		Vehicles: []sim.Vehicle{
			{TripID: "t.1", RouteID: "MAX Blue", RouteName: "MAX Blue", Color: "#084C8D", Active: true, Position: &gtfs.Position{Lat: 45.5, Lon: -122.6}},
			{TripID: "t2", RouteID: "4", Active: false},
		},
		Summary:   sim.Summary{ActiveCount: 1, TripsCount: 2, ByRoute: map[string]int{"MAX Blue": 1}},
		Percent:   50,
		TopRoutes: []sim.RouteCount{{RouteID: "MAX Blue", Count: 1}},
	}
}

func TestRenderPublishesActiveVehiclesAndSummary(t *testing.T) {
	conn := &fakeConn{}
	m := &countingMetrics{}
	p := newPublisher(conn, "trimet.playback.", time.Second, true, m, zerolog.Nop())

	require.NoError(t, p.Render(context.Background(), testFrame()))
	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "trimet.playback.MAX_Blue.t_1", conn.msgs[0].subject)
	assert.Equal(t, "trimet.playback.summary", conn.msgs[1].subject)

	var pos PositionMessage
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &pos))
	assert.Equal(t, PositionMessage{
		SessionID: "s1", TripID: "t.1", RouteID: "MAX Blue", RouteName: "MAX Blue",
		Color: "#084C8D", SimTime: 32460, Clock: "09:01:00", Lat: 45.5, Lon: -122.6,
	}, pos)

	var sum SummaryMessage
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &sum))
	assert.Equal(t, 1, sum.Active)
	assert.Equal(t, 2, sum.Trips)
	assert.Equal(t, 50.0, sum.Percent)

	assert.Equal(t, 2, m.published)
	assert.Equal(t, 2, m.observed)
}

func TestRenderThrottles(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "playback", time.Second, false, nil, zerolog.Nop())
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	p.throttle.Now = func() time.Time { return now }
	f := testFrame()
	f.Playing = true

	require.NoError(t, p.Render(context.Background(), f))
	now = now.Add(500 * time.Millisecond)
	require.NoError(t, p.Render(context.Background(), f))
	assert.Len(t, conn.msgs, 2, "second frame inside the interval is dropped")

	now = now.Add(500 * time.Millisecond)
	require.NoError(t, p.Render(context.Background(), f))
	assert.Len(t, conn.msgs, 4)
}

func TestRenderReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	m := &countingMetrics{}
	p := newPublisher(&fakeConn{err: boom}, "playback", time.Second, false, m, zerolog.Nop())

	err := p.Render(context.Background(), testFrame())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, m.errs)
	assert.Equal(t, 0, m.published)
}

func TestRenderNilFrame(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "playback", time.Second, false, nil, zerolog.Nop())
	assert.NoError(t, p.Render(context.Background(), nil))
	assert.Empty(t, conn.msgs)
}

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"100":         "100",
		" MAX Red ":   "MAX_Red",
		"a.b>c*d/e":   "a_b_c_d_e",
		"":            "_",
		"\t":          "_",
		"Portland St": "Portland_St",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestSubjectPrefix(t *testing.T) {
	assert.Equal(t, "playback", subjectPrefix(""))
	assert.Equal(t, "a.b", subjectPrefix(" .a.b. "))
}
