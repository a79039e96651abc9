// Package dmx mirrors remote DMX channel values.
package dmx

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/protocol"
)

// Universe wraps the 512 byte array for convenience.
type Universe [protocol.ChannelsPerUniverse]byte

// Window is the contiguous channel range currently being polled.
type Window struct {
	Universe int `json:"universe"`
	Start    int `json:"start"`
	Count    int `json:"count"`
}

// Contains reports whether ch lies inside the window.
func (w Window) Contains(ch int) bool {
	return ch >= w.Start && ch < w.Start+w.Count
}

// maxOutstanding bounds the queue of unanswered reads.
const maxOutstanding = 64

// Store holds one Universe per tracked universe id.
// Concurrent writers are serialized; the last write wins.
type Store struct {
	mu          sync.RWMutex
	universes   map[int]*Universe
	window      Window
	outstanding []Window
	version     uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		universes: make(map[int]*Universe),
	}
}

func (s *Store) universe(id int) *Universe {
	u, ok := s.universes[id]
	if !ok {
		u = &Universe{}
		s.universes[id] = u
	}
	return u
}

// Set writes a single channel. Out-of-range channels are dropped.
func (s *Store) Set(universe, ch int, value byte) bool {
	if universe < 1 || !protocol.ValidChannel(ch) {
		return false
	}
	s.mu.Lock()
	s.universe(universe)[ch-1] = value
	s.version++
	s.mu.Unlock()
	return true
}

// Get returns the mirrored value of one channel.
func (s *Store) Get(universe, ch int) (byte, bool) {
	if !protocol.ValidChannel(ch) {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.universes[universe]
	if !ok {
		return 0, true
	}
	return u[ch-1], true
}

// ApplyReadings writes a confirmed page-read response whose first value
// belongs to channel start. Returns how many channels were written.
func (s *Store) ApplyReadings(universe, start int, readings []protocol.Reading) int {
	if universe < 1 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.universe(universe)
	written := 0
	for _, r := range readings {
		ch := start + r.Offset
		if !protocol.ValidChannel(ch) {
			log.Trace().Int("channel", ch).Msg("Dropping reading outside universe")
			continue
		}
		u[ch-1] = byte(r.Value)
		written++
	}
	if written > 0 {
		s.version++
	}
	return written
}

// Snapshot returns a copy of a universe.
func (s *Store) Snapshot(universe int) Universe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.universes[universe]; ok {
		return *u
	}
	return Universe{}
}

// Values returns the values of count channels starting at start.
func (s *Store) Values(universe, start, count int) []int {
	snap := s.Snapshot(universe)
	out := make([]int, 0, count)
	for ch := start; ch < start+count; ch++ {
		if !protocol.ValidChannel(ch) {
			break
		}
		out = append(out, int(snap[ch-1]))
	}
	return out
}

// Average returns the mean value of the given channels, or 0 when empty.
func (s *Store) Average(universe int, channels []int) int {
	snap := s.Snapshot(universe)
	sum, n := 0, 0
	for _, ch := range channels {
		if !protocol.ValidChannel(ch) {
			continue
		}
		sum += int(snap[ch-1])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// Version increments on every write; observers compare it to detect change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetWindow records the window currently of interest.
func (s *Store) SetWindow(w Window) {
	s.mu.Lock()
	s.window = w
	s.mu.Unlock()
}

// Window returns the window currently of interest.
func (s *Store) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// Expect records an outgoing read so its response can be placed.
func (s *Store) Expect(w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding = append(s.outstanding, w)
	if len(s.outstanding) > maxOutstanding {
		s.outstanding = s.outstanding[len(s.outstanding)-maxOutstanding:]
	}
}

// Match pairs a response carrying slots values with the oldest outstanding
// read of the same size. Older reads of a different size are assumed lost
// and discarded. Without a match the polling window is used.
func (s *Store) Match(slots int) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.outstanding {
		if w.Count == slots {
			s.outstanding = s.outstanding[i+1:]
			return w, true
		}
	}
	if s.window.Universe == 0 {
		return Window{}, false
	}
	return s.window, true
}

// ResetOutstanding forgets every unanswered read, e.g. after a reconnect.
func (s *Store) ResetOutstanding() {
	s.mu.Lock()
	s.outstanding = nil
	s.mu.Unlock()
}
