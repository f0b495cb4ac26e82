package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

// FrameStreamID is the SSE stream clients subscribe to with ?stream=frames.
const FrameStreamID = "frames"

type StreamMetrics interface {
	SSEFrameSent()
}

// FrameStream is a sim.Renderer pushing JSON frames to SSE subscribers.
type FrameStream struct {
	srv      *sse.Server
	throttle sim.Throttle
	metrics  StreamMetrics
}

func NewFrameStream(interval time.Duration, m StreamMetrics) *FrameStream {
	srv := sse.New()
	srv.AutoReplay = false
	srv.CreateStream(FrameStreamID)
	return &FrameStream{
		srv:      srv,
		throttle: sim.Throttle{Interval: interval},
		metrics:  m,
	}
}

func (s *FrameStream) Render(_ context.Context, f *sim.Frame) error {
	if f == nil || !s.throttle.Allow(f) {
		return nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if s.srv.TryPublish(FrameStreamID, &sse.Event{Data: data}) && s.metrics != nil {
		s.metrics.SSEFrameSent()
	}
	return nil
}

func (s *FrameStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.ServeHTTP(w, r)
}

func (s *FrameStream) Close() {
	s.srv.Close()
}
