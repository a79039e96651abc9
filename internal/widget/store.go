package widget

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/protocol"
)

type pendingEntry struct {
	name  string
	since time.Time
}

// Store holds the widgets of the current discovery cycle.
type Store struct {
	mu sync.RWMutex

	timeout time.Duration
	now     func() time.Time

	order    []int // resolved ids in discovery order
	widgets  map[int]*Widget
	pending  map[int]pendingEntry
	requests []int // every id of the cycle in list order
	timedOut map[int]string
	cycle    uint64
	version  uint64
}

// NewStore creates an empty store. A zero timeout keeps pending entries
// forever.
func NewStore(timeout time.Duration) *Store {
	return &Store{
		timeout:  timeout,
		now:      time.Now,
		widgets:  make(map[int]*Widget),
		pending:  make(map[int]pendingEntry),
		timedOut: make(map[int]string),
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SetTimeout changes how long an id may stay pending.
func (s *Store) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// BeginDiscovery starts a new cycle from a widget list response. Every
// previous widget and pending entry is dropped. Returns the ids whose type
// must be queried, in list order and without duplicates.
func (s *Store) BeginDiscovery(entries []protocol.WidgetEntry) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.widgets = make(map[int]*Widget)
	s.pending = make(map[int]pendingEntry, len(entries))
	s.timedOut = make(map[int]string)
	s.requests = make([]int, 0, len(entries))
	s.cycle++
	s.version++

	now := s.now()
	for _, e := range entries {
		if _, dup := s.pending[e.ID]; dup {
			// Later caption wins, the id is queried once
			s.pending[e.ID] = pendingEntry{name: e.Name, since: now}
			continue
		}
		s.pending[e.ID] = pendingEntry{name: e.Name, since: now}
		s.requests = append(s.requests, e.ID)
	}

	log.Debug().
		Uint64("cycle", s.cycle).
		Int("widgets", len(s.requests)).
		Msg("Widget discovery started")

	ids := make([]int, len(s.requests))
	copy(ids, s.requests)
	return ids
}

// Resolve promotes a pending id into a typed widget. Ids that are not
// pending (unknown, already resolved or timed out) are ignored.
func (s *Store) Resolve(id int, typ string) (Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		if _, late := s.timedOut[id]; late {
			log.Debug().Int("widget_id", id).Msg("Ignoring type response for timed out widget")
		}
		return Widget{}, false
	}
	delete(s.pending, id)

	w := &Widget{ID: id, Name: entry.name, Kind: KindOf(typ)}
	if w.Kind == KindOther {
		w.Type = typ
	}
	s.widgets[id] = w
	s.order = append(s.order, id)
	s.version++

	if len(s.pending) == 0 {
		log.Debug().
			Uint64("cycle", s.cycle).
			Int("widgets", len(s.order)).
			Int("timed_out", len(s.timedOut)).
			Msg("Widget discovery complete")
	}
	return *w, true
}

// SetFunctionState updates the button whose id equals the function id.
// Function ids that match no button are a no-op.
func (s *Store) SetFunctionState(id int, running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.widgets[id]
	if !ok || w.Kind != KindButton {
		return false
	}
	if w.On != running {
		w.On = running
		s.version++
	}
	return true
}

// SetSliderValue updates a slider from a value broadcast.
func (s *Store) SetSliderValue(id, value int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.widgets[id]
	if !ok || w.Kind != KindSlider {
		return false
	}
	value = protocol.ClampValue(value)
	if w.Value != value {
		w.Value = value
		s.version++
	}
	return true
}

// Expire moves pending ids older than the timeout into TimedOut and
// returns them.
func (s *Store) Expire() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout <= 0 || len(s.pending) == 0 {
		return nil
	}

	now := s.now()
	var expired []int
	for _, id := range s.requests {
		entry, ok := s.pending[id]
		if !ok || now.Sub(entry.since) < s.timeout {
			continue
		}
		delete(s.pending, id)
		s.timedOut[id] = entry.name
		expired = append(expired, id)
	}
	if len(expired) > 0 {
		s.version++
		log.Warn().
			Uint64("cycle", s.cycle).
			Ints("widget_ids", expired).
			Dur("timeout", s.timeout).
			Msg("Widget type query never answered")
	}
	return expired
}

// List returns resolved widgets in discovery order.
func (s *Store) List() []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Widget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.widgets[id])
	}
	return out
}

// Get returns a resolved widget.
func (s *Store) Get(id int) (Widget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.widgets[id]
	if !ok {
		return Widget{}, false
	}
	return *w, true
}

// Phase reports where id stands in the current cycle.
func (s *Store) Phase(id int) Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.widgets[id]; ok {
		return Resolved
	}
	if _, ok := s.pending[id]; ok {
		return Pending
	}
	if _, ok := s.timedOut[id]; ok {
		return TimedOut
	}
	return NotRequested
}

// Pending returns ids still waiting for a type response, in list order.
func (s *Store) Pending() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(id int) bool { _, ok := s.pending[id]; return ok })
}

// TimedOut returns ids whose type response never arrived, in list order.
func (s *Store) TimedOut() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(id int) bool { _, ok := s.timedOut[id]; return ok })
}

func (s *Store) filter(keep func(int) bool) []int {
	var ids []int
	for _, id := range s.requests {
		if keep(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Consistent reports whether the current cycle has no pending entries.
func (s *Store) Consistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) == 0
}

// Version increments on every change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
