package session

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/effects"
	"github.com/dokzlo13/qlcremote/internal/protocol"
)

// ErrNoGroup is returned by group operations before a group is selected.
var ErrNoGroup = errors.New("no channel group selected")

// SelectGroup sets the channel group driven by the fader, flash and effect
// operations. Invalid channels and duplicates are dropped; order is kept.
func (s *Session) SelectGroup(channels []int) []int {
	group := make([]int, 0, len(channels))
	for _, ch := range channels {
		if protocol.ValidChannel(ch) && !slices.Contains(group, ch) {
			group = append(group, ch)
		}
	}

	s.mu.Lock()
	s.group = group
	s.mu.Unlock()

	log.Debug().Ints("group", group).Msg("Channel group selected")
	return slices.Clone(group)
}

// Group returns the selected channel group.
func (s *Session) Group() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.group)
}

func (s *Session) requireGroup() ([]int, error) {
	g := s.Group()
	if len(g) == 0 {
		return nil, ErrNoGroup
	}
	return g, nil
}

// SetGroupValue sweeps value across the group, paced by the fade delay.
// It returns the number of channels written.
func (s *Session) SetGroupValue(ctx context.Context, value int) (int, error) {
	g, err := s.requireGroup()
	if err != nil {
		return 0, err
	}
	return s.effects.Sweep(ctx, g, value, s.settings.Current().FadeDelay), nil
}

// ZeroGroup sweeps the group to zero, paced by the poll interval.
func (s *Session) ZeroGroup(ctx context.Context) (int, error) {
	g, err := s.requireGroup()
	if err != nil {
		return 0, err
	}
	return s.effects.Sweep(ctx, g, 0, s.settings.Current().PollInterval), nil
}

// ClearGroup resets every channel of the group through the simple desk.
func (s *Session) ClearGroup(ctx context.Context) error {
	g, err := s.requireGroup()
	if err != nil {
		return err
	}
	delay := s.settings.Current().PollInterval
	for _, ch := range g {
		if err := s.ResetChannel(ctx, ch); err != nil {
			return err
		}
		if err := s.pause(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// FlashPress drives the group full on. It returns once every channel was
// written or a FlashRelease took over.
func (s *Session) FlashPress(ctx context.Context) (int, error) {
	g, err := s.requireGroup()
	if err != nil {
		return 0, err
	}
	return s.effects.Flash(ctx, g, true, s.settings.Current().PollInterval), nil
}

// FlashRelease drives the group full off, cancelling a press in progress.
func (s *Session) FlashRelease(ctx context.Context) (int, error) {
	g, err := s.requireGroup()
	if err != nil {
		return 0, err
	}
	return s.effects.Flash(ctx, g, false, s.settings.Current().PollInterval), nil
}

// GroupAverage is the mean mirrored value of the group in the viewed
// universe.
func (s *Session) GroupAverage() int {
	return s.channels.Average(s.viewUniverse(), s.Group())
}

// StartEffect runs mode on the selected group, replacing any running
// effect. None stops effects.
func (s *Session) StartEffect(mode effects.Mode) error {
	if mode == effects.None {
		s.StopEffects()
		return nil
	}
	g, err := s.requireGroup()
	if err != nil {
		return err
	}
	s.effects.Start(s.ctx, mode, g)
	return nil
}

// StopEffects stops the running effect and waits for it to exit.
func (s *Session) StopEffects() {
	s.effects.Stop()
}

// Effect returns the running effect mode.
func (s *Session) Effect() effects.Mode {
	return s.effects.Mode()
}
