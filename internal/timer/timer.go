// Package timer provides a cancellable per-question countdown driven by an injectable ticker.
package timer

import (
	"sync"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type NewTickerFunc func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type Tier string

const (
	TierCalm     Tier = "calm"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

// TierOf returns the display urgency for the remaining units.
func TierOf(left int) Tier {
	switch {
	case left > 30:
		return TierCalm
	case left > 15:
		return TierWarning
	default:
		return TierCritical
	}
}

type Config struct {
	// Units is the countdown length in ticks.
	Units int
	// Unit is the duration of one tick.
	Unit          time.Duration
	NewTickerFunc NewTickerFunc

	// OnTick receives the remaining units after each decrement, down to 1.
	OnTick func(left int)
	// OnExpire is called exactly once when the remaining units reach 0.
	OnExpire func()
}

// Countdown decrements once per tick until it expires or is stopped.
type Countdown struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start runs a new countdown in its own goroutine.
func Start(c Config) *Countdown {
	if c.NewTickerFunc == nil {
		c.NewTickerFunc = NewTicker
	}
	if c.Unit <= 0 {
		c.Unit = time.Second
	}

	cd := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go cd.run(c, c.NewTickerFunc(c.Unit))

	return cd
}

func (cd *Countdown) run(c Config, t Ticker) {
	defer close(cd.done)
	defer t.Stop()

	left := c.Units
	for {
		select {
		case <-cd.stop:
			return
		case <-t.C():
		}

		// Stop wins over a tick that arrived at the same time.
		select {
		case <-cd.stop:
			return
		default:
		}

		left--
		if left <= 0 {
			if c.OnExpire != nil {
				c.OnExpire()
			}
			return
		}

		if c.OnTick != nil {
			c.OnTick(left)
		}
	}
}

// Stop cancels the countdown. It does not wait for the goroutine, so it is safe to call
// while holding a lock the callbacks also take. Callbacks already running may still complete.
func (cd *Countdown) Stop() {
	cd.once.Do(func() { close(cd.stop) })
}

// Done is closed once the countdown goroutine has exited.
func (cd *Countdown) Done() <-chan struct{} {
	return cd.done
}
