package leaderboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/millionaire/internal/timer"
)

type Refresher interface {
	Refresh(ctx context.Context) error
	Loaded() bool
}

type PollerConfig struct {
	Refresher Refresher
	// Interval between fetches while the board is visible. Defaults to 60s.
	Interval time.Duration
	// IdleTimeout hides the board when nobody looked at it for that long. Zero disables it.
	IdleTimeout   time.Duration
	NewTickerFunc timer.NewTickerFunc
	Now           func() time.Time
}

// Poller refreshes the leaderboard periodically, only while it is visible.
type Poller struct {
	r         Refresher
	interval  time.Duration
	idle      time.Duration
	newTicker timer.NewTickerFunc
	now       func() time.Time

	mu       sync.Mutex
	visible  bool
	closed   bool
	lastSeen time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPoller(c PollerConfig) *Poller {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.NewTickerFunc == nil {
		c.NewTickerFunc = timer.NewTicker
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Poller{
		r:         c.Refresher,
		interval:  c.Interval,
		idle:      c.IdleTimeout,
		newTicker: c.NewTickerFunc,
		now:       c.Now,
	}
}

// Show marks the board as visible and starts polling if it was hidden.
// It fetches right away when no snapshot was loaded yet.
func (p *Poller) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.lastSeen = p.now()
	if p.visible {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.visible = true
	p.cancel = cancel

	t := p.newTicker(p.interval)
	p.wg.Add(1)
	go p.run(ctx, t)
}

// Hide stops polling. Show resumes it.
func (p *Poller) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hideLocked()
}

func (p *Poller) hideLocked() {
	if !p.visible {
		return
	}
	p.visible = false
	p.cancel()
	p.cancel = nil
}

func (p *Poller) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Close stops polling for good and waits for the running fetch, if any.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.hideLocked()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, t timer.Ticker) {
	defer p.wg.Done()
	defer t.Stop()

	if !p.r.Loaded() {
		p.refresh(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}

		if p.hideIfIdle(ctx) {
			return
		}

		p.refresh(ctx)
	}
}

// hideIfIdle reports whether this loop should exit.
func (p *Poller) hideIfIdle(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return true
	}

	if p.idle > 0 && p.now().Sub(p.lastSeen) >= p.idle {
		slog.Debug("leaderboard: idle, polling paused")
		p.hideLocked()
		return true
	}

	return false
}

func (p *Poller) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.r.Refresh(ctx); err != nil {
		slog.Warn("leaderboard: poll failed", "error", err)
	}
}
