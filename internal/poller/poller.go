// Package poller keeps re-reading the channel window currently on display.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/pace"
)

// Key identifies the polled window. A change of any field restarts the loop.
type Key struct {
	Universe int `json:"universe"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// RequestFunc issues one page read for k.
type RequestFunc func(ctx context.Context, k Key)

// Poller runs at most one polling loop at a time.
type Poller struct {
	request  RequestFunc
	interval func() time.Duration
	sleep    pace.Func

	// switchMu serialises SetKey and Stop so only one loop is ever live.
	switchMu sync.Mutex

	mu     sync.Mutex
	key    Key
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle poller. interval is read again before every pause so
// a changed refresh delay applies on the next tick.
func New(request RequestFunc, interval func() time.Duration, sleep pace.Func) *Poller {
	if sleep == nil {
		sleep = pace.Sleep
	}
	return &Poller{
		request:  request,
		interval: interval,
		sleep:    sleep,
	}
}

// SetKey starts polling k. The loop for the previous key is cancelled and
// has exited before the new one starts. Setting the current key again is a
// no-op and returns false.
func (p *Poller) SetKey(ctx context.Context, k Key) bool {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	p.mu.Lock()
	same := p.active && p.key == k
	p.mu.Unlock()
	if same {
		return false
	}

	p.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.key = k
	p.active = true
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	log.Debug().
		Int("universe", k.Universe).
		Int("page", k.Page).
		Int("page_size", k.PageSize).
		Msg("Polling window changed")

	go p.loop(loopCtx, k, done)
	return true
}

func (p *Poller) loop(ctx context.Context, k Key, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		p.request(ctx, k)
		if err := p.sleep(ctx, p.interval()); err != nil {
			return
		}
	}
}

// Stop cancels the running loop and waits for it to exit.
func (p *Poller) Stop() {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.active = false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Key returns the polled key and whether a loop is running.
func (p *Poller) Key() (Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key, p.active
}
