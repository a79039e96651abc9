package settings

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/kv"
)

// BucketName is the kv bucket settings are persisted in.
const BucketName = "settings"

// Change is published after settings were updated.
type Change struct {
	Old  Settings
	New  Settings
	Keys []string
}

// Has reports whether key changed.
func (c Change) Has(keys ...string) bool {
	for _, k := range keys {
		if slices.Contains(c.Keys, k) {
			return true
		}
	}
	return false
}

// Store keeps the current settings and persists every update.
type Store struct {
	bucket kv.Bucket

	mu      sync.RWMutex
	current Settings

	changes *eventbus.Bus[Change]
}

// NewStore creates a store holding factory defaults until Load is called.
func NewStore(bucket kv.Bucket) *Store {
	return &Store{
		bucket:  bucket,
		current: Default(),
		changes: eventbus.New[Change]("settings"),
	}
}

// Load starts from base (usually the config file values) and overlays every
// persisted value. Unparseable persisted values are logged and skipped.
func (s *Store) Load(base Settings) (Settings, error) {
	stored, err := s.bucket.All()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	merged := base
	for _, key := range Keys {
		raw, ok := stored[key]
		if !ok {
			continue
		}
		next, err := merged.With(key, raw)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Ignoring persisted setting")
			continue
		}
		merged = next
	}
	merged = merged.Normalize()

	s.mu.Lock()
	s.current = merged
	s.mu.Unlock()

	log.Debug().
		Str("bucket", s.bucket.Name()).
		Bool("persistent", s.bucket.IsPersistent()).
		Int("overrides", len(stored)).
		Msg("Settings loaded")
	return merged, nil
}

// Current returns the active settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set parses and applies a single setting.
func (s *Store) Set(ctx context.Context, key, raw string) (Settings, error) {
	var parseErr error
	next, err := s.Update(ctx, func(cur Settings) Settings {
		updated, err := cur.With(key, raw)
		if err != nil {
			parseErr = err
			return cur
		}
		return updated
	})
	if parseErr != nil {
		return s.Current(), parseErr
	}
	return next, err
}

// Update applies fn to the current settings, normalizes the result,
// persists the keys that changed and publishes a Change.
func (s *Store) Update(ctx context.Context, fn func(Settings) Settings) (Settings, error) {
	s.mu.Lock()
	old := s.current
	next := fn(old).Normalize()
	keys := old.Diff(next)
	if len(keys) == 0 {
		s.mu.Unlock()
		return next, nil
	}

	for _, k := range keys {
		v, _ := next.Get(k)
		if err := s.bucket.Put(k, v); err != nil {
			s.mu.Unlock()
			return old, fmt.Errorf("failed to persist %s: %w", k, err)
		}
	}
	s.current = next
	s.mu.Unlock()

	log.Info().Strs("keys", keys).Msg("Settings updated")
	s.changes.Publish(ctx, Change{Old: old, New: next, Keys: keys})
	return next, nil
}

// Changes announces every applied update.
func (s *Store) Changes() *eventbus.Bus[Change] {
	return s.changes
}

// Close ends every change subscription.
func (s *Store) Close() {
	s.changes.Close()
}
