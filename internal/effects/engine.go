// Package effects drives animated and momentary patterns over a channel group.
package effects

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/pace"
	"github.com/dokzlo13/qlcremote/internal/protocol"
)

// Mode is the animated effect currently running.
type Mode int

const (
	None Mode = iota
	Strobe
	Pulse
	Chase
	Wave
)

func (m Mode) String() string {
	switch m {
	case Strobe:
		return "strobe"
	case Pulse:
		return "pulse"
	case Chase:
		return "chase"
	case Wave:
		return "wave"
	default:
		return "none"
	}
}

// MarshalText renders the mode in JSON snapshots.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode accepts a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{None, Strobe, Pulse, Chase, Wave} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return None, fmt.Errorf("unknown effect %q", s)
}

// Generator timings.
const (
	StrobeInterval = 60 * time.Millisecond
	PulseInterval  = 12 * time.Millisecond
	PulseStep      = 5
	ChaseInterval  = 80 * time.Millisecond
	WaveInterval   = 25 * time.Millisecond
	WaveOffset     = 0.4  // radians between neighbouring channels
	WaveStep       = 0.25 // radians per tick
)

// Output writes one channel value. Implementations send the value to the
// host and mirror it locally.
type Output interface {
	Write(ctx context.Context, channel, value int)
}

// Engine runs at most one animated effect at a time. Sweeps and flashes
// drive the same output independently of the running effect.
type Engine struct {
	out   Output
	sleep pace.Func

	switchMu sync.Mutex

	mu     sync.Mutex
	mode   Mode
	group  []int
	cancel context.CancelFunc
	done   chan struct{}

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New creates an idle engine.
func New(out Output, sleep pace.Func) *Engine {
	if sleep == nil {
		sleep = pace.Sleep
	}
	return &Engine{out: out, sleep: sleep}
}

// Start stops the running effect, waits for it to exit and then launches
// mode over group. Starting None only stops.
func (e *Engine) Start(ctx context.Context, mode Mode, group []int) {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	e.stopLocked()

	channels := validChannels(group)
	if mode == None || len(channels) == 0 {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.mode = mode
	e.group = channels
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	log.Info().
		Str("effect", mode.String()).
		Ints("channels", channels).
		Msg("Effect started")

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("effect", mode.String()).Msg("Effect panicked")
			}
		}()
		e.run(runCtx, mode, channels)
	}()
}

// Stop ends the running effect and waits for it to exit.
func (e *Engine) Stop() {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.mu.Lock()
	cancel, done, mode := e.cancel, e.done, e.mode
	e.cancel, e.done = nil, nil
	e.mode = None
	e.group = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Str("effect", mode.String()).Msg("Effect stopped")
}

// Mode returns the running effect, or None.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Group returns the channels of the running effect.
func (e *Engine) Group() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.group))
	copy(out, e.group)
	return out
}

func (e *Engine) run(ctx context.Context, mode Mode, group []int) {
	switch mode {
	case Strobe:
		e.strobe(ctx, group)
	case Pulse:
		e.pulse(ctx, group)
	case Chase:
		e.chase(ctx, group)
	case Wave:
		e.wave(ctx, group)
	}
}

// writeAll writes value to every channel, stopping early once ctx ends.
func (e *Engine) writeAll(ctx context.Context, group []int, value func(i int) int) bool {
	for i, ch := range group {
		if ctx.Err() != nil {
			return false
		}
		e.out.Write(ctx, ch, value(i))
	}
	return ctx.Err() == nil
}

func (e *Engine) strobe(ctx context.Context, group []int) {
	on := true
	for {
		v := 0
		if on {
			v = protocol.MaxValue
		}
		if !e.writeAll(ctx, group, func(int) int { return v }) {
			return
		}
		if e.sleep(ctx, StrobeInterval) != nil {
			return
		}
		on = !on
	}
}

func (e *Engine) pulse(ctx context.Context, group []int) {
	v, dir := 0, 1
	for {
		level := v
		if !e.writeAll(ctx, group, func(int) int { return level }) {
			return
		}
		v += dir * PulseStep
		if v >= protocol.MaxValue {
			v, dir = protocol.MaxValue, -1
		} else if v <= 0 {
			v, dir = 0, 1
		}
		if e.sleep(ctx, PulseInterval) != nil {
			return
		}
	}
}

func (e *Engine) chase(ctx context.Context, group []int) {
	idx := 0
	for {
		lit := idx
		if !e.writeAll(ctx, group, func(i int) int {
			if i == lit {
				return protocol.MaxValue
			}
			return 0
		}) {
			return
		}
		idx = (idx + 1) % len(group)
		if e.sleep(ctx, ChaseInterval) != nil {
			return
		}
	}
}

func (e *Engine) wave(ctx context.Context, group []int) {
	phase := 0.0
	for {
		t := phase
		if !e.writeAll(ctx, group, func(i int) int { return WaveValue(t, i) }) {
			return
		}
		phase += WaveStep
		if e.sleep(ctx, WaveInterval) != nil {
			return
		}
	}
}

// WaveValue is the wave level of the channel at index i for global phase t.
func WaveValue(t float64, i int) int {
	return protocol.ClampLevel((math.Sin(t+float64(i)*WaveOffset) + 1) / 2)
}

// Sweep writes value to each channel of group in order, pausing between
// writes. A new Sweep cancels the one in progress and waits for it first.
// Returns how many channels were written.
func (e *Engine) Sweep(ctx context.Context, group []int, value int, delay time.Duration) int {
	e.sweepMu.Lock()
	if e.sweepCancel != nil {
		e.sweepCancel()
		<-e.sweepDone
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.sweepCancel, e.sweepDone = cancel, done
	e.sweepMu.Unlock()

	defer func() {
		cancel()
		close(done)
		e.sweepMu.Lock()
		if e.sweepDone == done {
			e.sweepCancel, e.sweepDone = nil, nil
		}
		e.sweepMu.Unlock()
	}()

	value = protocol.ClampValue(value)
	written := 0
	for _, ch := range validChannels(group) {
		if sweepCtx.Err() != nil {
			break
		}
		e.out.Write(sweepCtx, ch, value)
		written++
		if e.sleep(sweepCtx, delay) != nil {
			break
		}
	}
	return written
}

// Flash drives group fully on when pressed and fully off on release.
func (e *Engine) Flash(ctx context.Context, group []int, pressed bool, delay time.Duration) int {
	v := 0
	if pressed {
		v = protocol.MaxValue
	}
	return e.Sweep(ctx, group, v, delay)
}

// Close stops every running effect.
func (e *Engine) Close() {
	e.Stop()
	e.sweepMu.Lock()
	cancel, done := e.sweepCancel, e.sweepDone
	e.sweepMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func validChannels(group []int) []int {
	out := make([]int, 0, len(group))
	for _, ch := range group {
		if protocol.ValidChannel(ch) {
			out = append(out, ch)
		}
	}
	return out
}
