package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/dmx"
	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/history"
	"github.com/dokzlo13/qlcremote/internal/keypad"
	"github.com/dokzlo13/qlcremote/internal/poller"
	"github.com/dokzlo13/qlcremote/internal/protocol"
	"github.com/dokzlo13/qlcremote/internal/router"
	"github.com/dokzlo13/qlcremote/internal/settings"
)

// Validation errors returned by the command API.
var (
	ErrInvalidChannel  = errors.New("channel out of range")
	ErrInvalidUniverse = errors.New("universe out of range")
	ErrInvalidPage     = errors.New("page out of range")
)

// DefaultCueWidget is the widget id the cue page drives.
const DefaultCueWidget = 1

// View returns the polled page and whether polling is active.
func (s *Session) View() (poller.Key, bool) {
	return s.poller.Key()
}

func (s *Session) viewUniverse() int {
	if k, ok := s.poller.Key(); ok {
		return k.Universe
	}
	return s.settings.Current().DefaultUniverse
}

// ViewPage makes (universe, page) the polled window at the configured
// page size. Polling restarts only if the window changed.
func (s *Session) ViewPage(ctx context.Context, universe, page int) error {
	cur := s.settings.Current()
	if universe < 1 || universe > cur.UniverseCount {
		return fmt.Errorf("%w: %d", ErrInvalidUniverse, universe)
	}
	if page < 0 || page >= protocol.TotalPages(cur.PageSize) {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	start, count := protocol.PageWindow(page, cur.PageSize)
	s.channels.SetWindow(dmx.Window{Universe: universe, Start: start, Count: count})
	s.poller.SetKey(s.ctx, poller.Key{Universe: universe, Page: page, PageSize: cur.PageSize})
	return nil
}

// setChannel sends one channel write and echoes it into universe.
func (s *Session) setChannel(ctx context.Context, universe, ch, value int) error {
	return s.writeChannel(ctx, universe, ch, value, true)
}

func (s *Session) writeChannel(ctx context.Context, universe, ch, value int, limited bool) error {
	line, ok := protocol.SetChannel(ch, value)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	if err := s.transmit(ctx, line, limited); err != nil {
		return err
	}
	s.channels.Set(universe, ch, byte(protocol.ClampValue(value)))
	return nil
}

// SetChannel writes value to ch. The value is clamped to [0,255] and
// mirrored into the viewed universe before the host confirms it.
func (s *Session) SetChannel(ctx context.Context, ch, value int) error {
	return s.setChannel(ctx, s.viewUniverse(), ch, value)
}

// ResetChannel returns ch to its default through the simple desk.
func (s *Session) ResetChannel(ctx context.Context, ch int) error {
	line, ok := protocol.ResetChannel(ch)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return s.send(ctx, line)
}

// ResetUniverse resets every channel of universe.
func (s *Session) ResetUniverse(ctx context.Context, universe int) error {
	line, ok := protocol.ResetUniverse(universe)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidUniverse, universe)
	}
	return s.send(ctx, line)
}

func (s *Session) pause(ctx context.Context, d time.Duration) error {
	if err := s.opts.Sleep(ctx, d); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// ResetRange resets channels start..end inclusive in ascending order,
// pausing by the fade delay after each reset, zero included.
func (s *Session) ResetRange(ctx context.Context, start, end, universe int) error {
	if universe < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidUniverse, universe)
	}
	delay := s.settings.Current().FadeDelay
	for _, line := range protocol.ResetRange(start, end) {
		if err := s.send(ctx, line); err != nil {
			return err
		}
		if err := s.pause(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// ApplyToRange writes value to channels first..last of universe,
// intersected with [1,512], in ascending order and paced by the fade delay.
func (s *Session) ApplyToRange(ctx context.Context, universe, first, last, value int) error {
	if universe < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidUniverse, universe)
	}
	delay := s.settings.Current().FadeDelay
	first = max(first, protocol.MinChannel)
	last = min(last, protocol.MaxChannel)

	for ch := first; ch <= last; ch++ {
		if err := s.setChannel(ctx, universe, ch, value); err != nil {
			return err
		}
		if err := s.pause(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// ReadChannel asks the host for the current value of one channel and
// waits for the answer.
func (s *Session) ReadChannel(ctx context.Context, universe, ch int) (int, error) {
	line, ok := protocol.ReadChannel(universe, ch)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	// Subscribe first so the answer cannot slip past
	sub := s.router.Updates().Subscribe("read-channel", 16, eventbus.DropNewest)
	defer sub.Close()

	want := dmx.Window{Universe: universe, Start: ch, Count: 1}
	s.channels.Expect(want)
	if err := s.send(ctx, line); err != nil {
		return 0, err
	}

	timer := time.NewTimer(s.opts.ReadTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, fmt.Errorf("%w: universe %d channel %d", ErrReadTimeout, universe, ch)
		case <-sub.Done():
			return 0, ErrReadTimeout
		case u := <-sub.C():
			if u.Kind != router.ChannelsUpdated || u.Window != want {
				continue
			}
			v, _ := s.channels.Get(universe, ch)
			return int(v), nil
		}
	}
}

// AdjustChannel reads ch on the default universe, adds delta and writes
// the result back. A result outside [0,255] is clamped and reported.
// In control mode none the local mirror stands in for the host.
func (s *Session) AdjustChannel(ctx context.Context, ch, delta int) error {
	if !protocol.ValidChannel(ch) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	universe := s.settings.Current().DefaultUniverse

	var current int
	if s.settings.Current().ControlMode == settings.ModeNone {
		v, _ := s.channels.Get(universe, ch)
		current = int(v)
	} else {
		v, err := s.ReadChannel(ctx, universe, ch)
		if err != nil {
			return err
		}
		current = v
	}

	next := current + delta
	if next < 0 || next > protocol.MaxValue {
		s.notify(ctx, Info, msgOutOfRange)
		next = protocol.ClampValue(next)
	}

	log.Debug().
		Int("channel", ch).
		Int("from", current).
		Int("to", next).
		Msg("Adjusting channel")
	return s.setChannel(ctx, universe, ch, next)
}

// CueNext advances the cue list bound to widgetID.
func (s *Session) CueNext(ctx context.Context, widgetID int) error {
	return s.send(ctx, protocol.CueNext(widgetID))
}

// DiscoverWidgets starts a virtual console discovery cycle. Type queries
// follow automatically when the list arrives.
func (s *Session) DiscoverWidgets(ctx context.Context) error {
	return s.send(ctx, protocol.RequestWidgetList())
}

// PressButton sends a button press edge.
func (s *Session) PressButton(ctx context.Context, id int) error {
	return s.send(ctx, protocol.ButtonPress(id))
}

// ReleaseButton sends a button release edge.
func (s *Session) ReleaseButton(ctx context.Context, id int) error {
	return s.send(ctx, protocol.ButtonRelease(id))
}

// SetSlider moves a slider and mirrors the clamped value locally.
func (s *Session) SetSlider(ctx context.Context, id, value int) error {
	if err := s.send(ctx, protocol.SliderSet(id, value)); err != nil {
		return err
	}
	s.widgets.SetSliderValue(id, protocol.ClampValue(value))
	return nil
}

// Execute parses and runs one keypad line, records it in the history and
// returns the entry. Invalid input sends nothing. Empty input only raises a
// notice and is not recorded.
func (s *Session) Execute(ctx context.Context, text string) history.Entry {
	err := s.execute(ctx, text)
	entry := history.NewEntry(s.id, text, err == nil)

	if !errors.Is(err, keypad.ErrEmptyCommand) {
		if appendErr := s.history.Append(entry); appendErr != nil {
			log.Error().Err(appendErr).Msg("Failed to record command")
		}
	}

	switch {
	case err == nil:
		log.Info().Str("command", text).Msg("Command executed")
	case errors.Is(err, keypad.ErrEmptyCommand):
		s.notify(ctx, Err, msgEmptyCommand)
	case errors.Is(err, keypad.ErrInvalidCommand):
		s.notify(ctx, Err, msgInvalidCommand)
	default:
		s.notify(ctx, Err, fmt.Sprintf("Command failed: %v", err))
	}
	return entry
}

func (s *Session) execute(ctx context.Context, text string) error {
	cmd, err := keypad.Parse(text)
	if err != nil {
		return err
	}

	universe := s.settings.Current().DefaultUniverse
	switch cmd.Op {
	case keypad.OpSet:
		return s.setChannel(ctx, universe, cmd.Channel, cmd.Value)
	case keypad.OpAdjust:
		return s.AdjustChannel(ctx, cmd.Channel, cmd.Delta)
	case keypad.OpClear:
		return s.ResetChannel(ctx, cmd.Channel)
	case keypad.OpUniverseClear:
		return s.ResetUniverse(ctx, cmd.Universe)
	case keypad.OpUniverseSet:
		return s.ApplyToRange(ctx, cmd.Universe, protocol.MinChannel, protocol.MaxChannel, cmd.Value)
	case keypad.OpRangeSet:
		return s.ApplyToRange(ctx, universe, cmd.Channel, cmd.Last, cmd.Value)
	case keypad.OpRangeClear:
		return s.ResetRange(ctx, cmd.Channel, cmd.Last, universe)
	}
	return fmt.Errorf("%w: unsupported operation %s", keypad.ErrInvalidCommand, cmd.Op)
}
