package sim

import (
	"context"
	"errors"
	"time"
)

// Renderer consumes frames. Implementations must not modify the frame; the
// same value is handed to every renderer and kept as the latest snapshot.
type Renderer interface {
	Render(ctx context.Context, f *Frame) error
}

type RendererFunc func(ctx context.Context, f *Frame) error

func (fn RendererFunc) Render(ctx context.Context, f *Frame) error { return fn(ctx, f) }

// Renderers fans a frame out to each renderer in order and joins their errors.
type Renderers []Renderer

func (rs Renderers) Render(ctx context.Context, f *Frame) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Render(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttle lets playing frames through at most once per Interval. Frames of
// a paused clock always pass. The zero value passes everything.
type Throttle struct {
	Interval time.Duration
	Now      func() time.Time // nil means time.Now

	last time.Time
}

func (t *Throttle) Allow(f *Frame) bool {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	at := now()
	if f.Playing && !t.last.IsZero() && at.Sub(t.last) < t.Interval {
		return false
	}
	t.last = at
	return true
}
