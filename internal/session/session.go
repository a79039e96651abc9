// Package session composes the transport, the stores and the background
// loops into one remote-control session for a QLC+ host.
//
// A Session owns every piece of mutable state. It is created at start,
// handed to the presentation layer by reference and torn down with Close.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/qlcremote/internal/dmx"
	"github.com/dokzlo13/qlcremote/internal/effects"
	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/history"
	"github.com/dokzlo13/qlcremote/internal/pace"
	"github.com/dokzlo13/qlcremote/internal/poller"
	"github.com/dokzlo13/qlcremote/internal/protocol"
	"github.com/dokzlo13/qlcremote/internal/router"
	"github.com/dokzlo13/qlcremote/internal/settings"
	"github.com/dokzlo13/qlcremote/internal/transport"
	"github.com/dokzlo13/qlcremote/internal/widget"
)

// ErrReadTimeout is returned when a channel read is never answered.
var ErrReadTimeout = errors.New("channel read timed out")

// Transport is the connection the session drives. *transport.Client
// implements it.
type Transport interface {
	Connect(ctx context.Context, host string, port int) error
	Disconnect()
	Send(line protocol.Line) error
	State() transport.State
	Lines() *eventbus.Bus[string]
	States() *eventbus.Bus[transport.State]
}

// Options configures a Session. Settings and Transport are required.
type Options struct {
	Settings  *settings.Store
	Transport Transport
	History   history.Log

	RateLimitRPS float64 // negative disables limiting
	Burst        int

	DiscoveryTimeout time.Duration // <= 0 waits forever
	ReadTimeout      time.Duration // relative keypad commands
	Reconnect        ReconnectPolicy

	// Sleep paces multi-channel operations and effects. Tests replace it.
	Sleep pace.Func
}

// Session is one remote-control session.
type Session struct {
	id   string
	opts Options

	settings  *settings.Store
	transport Transport
	limiter   *rate.Limiter
	history   history.Log

	channels *dmx.Store
	widgets  *widget.Store
	router   *router.Router
	poller   *poller.Poller
	effects  *effects.Engine
	notices  *eventbus.Bus[Notice]
	retry    *reconnector

	mu    sync.RWMutex
	view  poller.Key
	group []int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// New creates a stopped session.
func New(opts Options) *Session {
	if opts.History == nil {
		opts.History = history.NewMemory(0)
	}
	if opts.Sleep == nil {
		opts.Sleep = pace.Sleep
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.Reconnect.Interval <= 0 {
		opts.Reconnect = DefaultReconnectPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.NewString(),
		opts:      opts,
		settings:  opts.Settings,
		transport: opts.Transport,
		history:   opts.History,
		channels:  dmx.NewStore(),
		widgets:   widget.NewStore(opts.DiscoveryTimeout),
		notices:   eventbus.New[Notice]("notices"),
		retry:     newReconnector(opts.Reconnect, time.Now()),
		ctx:       ctx,
		cancel:    cancel,
	}

	if opts.RateLimitRPS >= 0 {
		rps := opts.RateLimitRPS
		if rps == 0 {
			rps = 500
		}
		burst := opts.Burst
		if burst <= 0 {
			burst = int(rps)
		}
		// Same token-bucket shape the reconciler used for bridge calls
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	s.router = router.New(s.channels, s.widgets, func(ctx context.Context, line protocol.Line) {
		_ = s.send(ctx, line)
	})
	// Polling keeps wall-clock pacing; Sleep only paces command sequences
	s.poller = poller.New(s.requestPage, func() time.Duration {
		return s.settings.Current().PollInterval
	}, pace.Sleep)
	s.effects = effects.New(output{s}, opts.Sleep)

	return s
}

// ID identifies the session in logs and history.
func (s *Session) ID() string { return s.id }

// Start wires the background loops and connects when the control mode
// needs a host. Cancelling ctx has the same effect as Close.
func (s *Session) Start(ctx context.Context) error {
	context.AfterFunc(ctx, s.cancel)

	cur := s.settings.Current()
	log.Info().
		Str("session", s.id).
		Str("host", cur.Host).
		Int("port", cur.Port).
		Str("control_mode", cur.ControlMode.String()).
		Msg("Session starting")

	// Lossless: discovery and page reads need every line
	lines := s.transport.Lines().Subscribe("router", 256, eventbus.Block)
	states := s.transport.States().Subscribe("session", 16, eventbus.DropNewest)
	changes := s.settings.Changes().Subscribe("session", 16, eventbus.Block)

	s.spawn(func() {
		defer lines.Close()
		s.router.Run(s.ctx, lines)
	})
	s.spawn(func() {
		defer states.Close()
		s.watchConnection(states)
	})
	s.spawn(func() {
		defer changes.Close()
		s.watchSettings(changes)
	})
	s.spawn(s.reconnectLoop)
	if s.opts.DiscoveryTimeout > 0 {
		s.spawn(s.discoveryWatchdog)
	}

	if err := s.ViewPage(s.ctx, cur.DefaultUniverse, 0); err != nil {
		return err
	}

	if cur.ControlMode == settings.ModeWebSocket {
		s.retry.attempted(time.Now())
		s.spawn(func() {
			if err := s.Connect(s.ctx); err != nil {
				log.Debug().Err(err).Msg("Initial connect failed")
			}
		})
	}
	return nil
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close stops every loop and disconnects. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.effects.Close()
		s.poller.Stop()
		s.transport.Disconnect()
		s.wg.Wait()
		s.router.Close()
		s.notices.Close()
		log.Info().Str("session", s.id).Msg("Session closed")
	})
}

// send is the rate-limited outgoing path used by commands, reads and
// discovery. In control mode none every line goes to a logging no-op sink.
func (s *Session) send(ctx context.Context, line protocol.Line) error {
	return s.transmit(ctx, line, true)
}

// transmit writes one line, waiting for the limiter when limited is set.
// Effect generators pace themselves and bypass the limiter so their timing
// holds on large groups.
func (s *Session) transmit(ctx context.Context, line protocol.Line, limited bool) error {
	if s.settings.Current().ControlMode == settings.ModeNone {
		log.Debug().Str("line", string(line)).Msg("Control mode none, line discarded")
		return nil
	}
	if limited && s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	err := s.transport.Send(line)
	if errors.Is(err, transport.ErrNotConnected) {
		log.Trace().Str("line", string(line)).Msg("Not connected, line dropped")
	}
	return err
}

// requestPage is the poller's per-tick action.
func (s *Session) requestPage(ctx context.Context, k poller.Key) {
	start, count := protocol.PageWindow(k.Page, k.PageSize)
	if s.settings.Current().ControlMode != settings.ModeNone {
		// Registered before sending; the answer can beat the return of Send
		s.channels.Expect(dmx.Window{Universe: k.Universe, Start: start, Count: count})
	}
	_ = s.send(ctx, protocol.ReadChannels(k.Universe, start, count))
}

// Connect dials the configured host. A no-op while connected or connecting.
func (s *Session) Connect(ctx context.Context) error {
	cur := s.settings.Current()
	if cur.ControlMode == settings.ModeNone {
		return nil
	}
	return s.transport.Connect(ctx, cur.Host, cur.Port)
}

// Disconnect closes the connection and leaves it closed until the next
// Connect or automatic retry.
func (s *Session) Disconnect() {
	s.transport.Disconnect()
}

// Retry makes an immediate attempt and restarts the retry cool-down.
func (s *Session) Retry(ctx context.Context) error {
	s.retry.attempted(time.Now())
	return s.Connect(ctx)
}

// SetAutoRetry turns automatic reconnection on or off.
func (s *Session) SetAutoRetry(auto bool) {
	s.retry.setAuto(auto)
	log.Info().Bool("auto_retry", auto).Msg("Reconnect policy changed")
}

// State returns the transport connection state.
func (s *Session) State() transport.State {
	return s.transport.State()
}

// Ready reports whether commands can reach their destination.
func (s *Session) Ready() bool {
	return s.settings.Current().ControlMode == settings.ModeNone || s.transport.State() == transport.Connected
}

// Status returns the reconnect status shown to observers.
func (s *Session) Status() ReconnectStatus {
	return s.retry.current()
}

// Notices streams user-visible messages.
func (s *Session) Notices() *eventbus.Bus[Notice] { return s.notices }

// Updates streams applied inbound messages.
func (s *Session) Updates() *eventbus.Bus[router.Update] { return s.router.Updates() }

// Channels exposes the channel mirror.
func (s *Session) Channels() *dmx.Store { return s.channels }

// ChannelValue returns the mirrored value of ch in the viewed universe.
func (s *Session) ChannelValue(ch int) int {
	v, _ := s.channels.Get(s.viewUniverse(), ch)
	return int(v)
}

// Widgets exposes the widget mirror.
func (s *Session) Widgets() *widget.Store { return s.widgets }

// Settings returns the settings store.
func (s *Session) Settings() *settings.Store { return s.settings }

// History returns up to limit executed commands, newest first.
func (s *Session) History(limit int) ([]history.Entry, error) {
	return s.history.Recent(limit)
}

func (s *Session) watchConnection(sub *eventbus.Subscription[transport.State]) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-sub.Done():
			return
		case st := <-sub.C():
			switch st {
			case transport.Connected:
				s.channels.ResetOutstanding()
				s.retry.step(time.Now(), true)
				if err := s.DiscoverWidgets(s.ctx); err != nil {
					log.Debug().Err(err).Msg("Widget discovery request failed")
				}
			case transport.Failed:
				s.notify(s.ctx, Err, "Connection to QLC+ lost.")
			}
		}
	}
}

func (s *Session) watchSettings(sub *eventbus.Subscription[settings.Change]) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-sub.Done():
			return
		case c := <-sub.C():
			s.applyChange(c)
		}
	}
}

func (s *Session) applyChange(c settings.Change) {
	if c.Has(settings.KeyHost, settings.KeyPort, settings.KeyControlMode) {
		s.transport.Disconnect()
		s.retry.restart(time.Now())
		if c.New.ControlMode == settings.ModeWebSocket {
			s.retry.attempted(time.Now())
			if err := s.Connect(s.ctx); err != nil {
				log.Debug().Err(err).Msg("Reconnect after settings change failed")
			}
		}
	}

	if c.Has(settings.KeyPageSize, settings.KeyDefaultUniverse, settings.KeyUniverseCount) {
		view, _ := s.View()
		universe := view.Universe
		if c.Has(settings.KeyDefaultUniverse) || universe > c.New.UniverseCount {
			universe = c.New.DefaultUniverse
		}
		if err := s.ViewPage(s.ctx, universe, 0); err != nil {
			log.Warn().Err(err).Msg("Failed to restart polling after settings change")
		}
	}
}

func (s *Session) reconnectLoop() {
	ticker := time.NewTicker(s.opts.Reconnect.Interval)
	defer ticker.Stop()

	var last ReconnectStatus = -1
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if s.settings.Current().ControlMode == settings.ModeNone {
				continue
			}
			status, attempt := s.retry.step(now, s.transport.State() == transport.Connected)
			if status != last {
				log.Debug().Str("status", status.String()).Msg("Reconnect status")
				if status == Error {
					s.notify(s.ctx, Err, "Not connected to QLC+.")
				}
				last = status
			}
			if attempt {
				if err := s.Connect(s.ctx); err != nil {
					log.Debug().Err(err).Msg("Automatic reconnect failed")
				}
			}
		}
	}
}

func (s *Session) discoveryWatchdog() {
	interval := s.opts.DiscoveryTimeout / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if ids := s.widgets.Expire(); len(ids) > 0 {
				s.notify(s.ctx, Err, fmt.Sprintf("%d widget(s) never reported their type: %v", len(ids), ids))
			}
		}
	}
}

// output lets the effect engine write through the session.
type output struct{ s *Session }

func (o output) Write(ctx context.Context, channel, value int) {
	_ = o.s.writeChannel(ctx, o.s.viewUniverse(), channel, value, false)
}
