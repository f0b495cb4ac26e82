package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFrameInterval approximates an animation-frame cadence.
const DefaultFrameInterval = time.Second / 60

var ErrNotRunning = errors.New("sim: player stopped")

// Player runs the frame loop. All engine access happens on the goroutine
// executing Run; other goroutines talk to it through queued commands and
// read frames through Latest.
type Player struct {
	renderer Renderer
	interval time.Duration
	log      zerolog.Logger

	cmds    chan func(ctx context.Context)
	done    chan struct{}
	engine  *Engine
	latest  atomic.Pointer[Frame]
	catalog atomic.Pointer[Catalog]
}

func NewPlayer(r Renderer, interval time.Duration, log zerolog.Logger) *Player {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Player{
		renderer: r,
		interval: interval,
		log:      log.With().Str("component", "player").Logger(),
		cmds:     make(chan func(ctx context.Context), 32),
		done:     make(chan struct{}),
	}
}

// Latest returns the most recently rendered frame, or nil before the first.
func (p *Player) Latest() *Frame { return p.latest.Load() }

// Catalog returns the installed bundle's reference data, or nil before load.
func (p *Player) Catalog() *Catalog { return p.catalog.Load() }

// Run processes commands and, while playing, advances the clock once per
// frame interval. It returns when ctx is done.
func (p *Player) Run(ctx context.Context) error {
	defer close(p.done)
	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
		last   time.Time
	)
	syncTicker := func() {
		playing := p.engine != nil && p.engine.Playing()
		switch {
		case playing && ticker == nil:
			ticker = time.NewTicker(p.interval)
			tickC = ticker.C
			last = time.Now()
		case !playing && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-p.cmds:
			cmd(ctx)
			syncTicker()
		case now := <-tickC:
			p.engine.Tick(now.Sub(last))
			last = now
			p.render(ctx)
			syncTicker()
		}
	}
}

func (p *Player) render(ctx context.Context) {
	if p.engine == nil {
		return
	}
	f := p.engine.Frame()
	p.latest.Store(f)
	if p.renderer == nil {
		return
	}
	if err := p.renderer.Render(ctx, f); err != nil {
		p.log.Warn().Err(err).Float64("sim_time", f.SimTime).Msg("render failed")
	}
}

// submit queues fn for the loop goroutine and waits until it has run.
func (p *Player) submit(ctx context.Context, fn func(ctx context.Context)) error {
	ran := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		defer close(ran)
		fn(loopCtx)
	}
	select {
	case p.cmds <- wrapped:
	case <-p.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-p.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// control runs fn against the engine and renders a frame. Before a bundle
// is installed controls do nothing.
func (p *Player) control(ctx context.Context, fn func(e *Engine)) error {
	return p.submit(ctx, func(loopCtx context.Context) {
		if p.engine == nil {
			return
		}
		fn(p.engine)
		p.render(loopCtx)
	})
}

// Install hands a freshly built engine to the loop and renders its first
// frame.
func (p *Player) Install(ctx context.Context, e *Engine, autoplay bool) error {
	return p.submit(ctx, func(loopCtx context.Context) {
		p.engine = e
		p.catalog.Store(e.Catalog())
		if autoplay {
			e.Play()
		}
		p.log.Info().
			Int("trips", e.Catalog().Trips).
			Ints("hours", e.Catalog().Hours).
			Str("session", e.Catalog().SessionID).
			Msg("bundle installed")
		p.render(loopCtx)
	})
}

func (p *Player) Play(ctx context.Context) error {
	return p.control(ctx, func(e *Engine) { e.Play() })
}

func (p *Player) Pause(ctx context.Context) error {
	return p.control(ctx, func(e *Engine) { e.Pause() })
}

func (p *Player) Toggle(ctx context.Context) error {
	return p.control(ctx, func(e *Engine) { e.Toggle() })
}

func (p *Player) Seek(ctx context.Context, t float64) error {
	return p.control(ctx, func(e *Engine) { e.SetTime(t) })
}

func (p *Player) SetSpeed(ctx context.Context, x float64) error {
	return p.control(ctx, func(e *Engine) { e.SetSpeed(x) })
}

func (p *Player) SetTrail(ctx context.Context, seconds float64) error {
	return p.control(ctx, func(e *Engine) { e.SetTrail(seconds) })
}
