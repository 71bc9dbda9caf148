// Package config holds the live simulation configuration for a session and
// the named presets it can be replaced from. The store performs no bounds
// validation: invalid values travel as far as the engine constructor, which
// is the single place that rejects them.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"agon/internal/model"
)

// Store is the single source of configuration truth for one session.
// Updates replace the held value; previously returned values are never
// mutated. Subscribers are notified synchronously, in registration order,
// outside the store lock.
type Store struct {
	log *logrus.Logger

	mu      sync.RWMutex
	current model.Config
	presets map[string]model.Config
	subs    []subscriber
	nextID  int
}

type subscriber struct {
	id int
	fn func(model.Config)
}

// New creates a store holding initial. A nil logger falls back to a default
// info-level logger.
func New(initial model.Config, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}
	return &Store{
		log:     log,
		current: initial,
		presets: builtinPresets(),
	}
}

// Get returns the current configuration.
func (s *Store) Get() model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges a partial update onto the current configuration and returns
// the result. Fields absent from the patch keep their previous values.
func (s *Store) Update(patch model.ConfigPatch) model.Config {
	s.mu.Lock()
	next := patch.Apply(s.current)
	s.current = next
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
	return next
}

// Replace swaps in a complete configuration wholesale.
func (s *Store) Replace(cfg model.Config) model.Config {
	s.mu.Lock()
	s.current = cfg
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(cfg)
	}
	return cfg
}

// LoadPreset replaces the configuration with the named preset. The reserved
// name "custom" is a no-op that returns the current value; unknown names
// fail without touching the configuration.
func (s *Store) LoadPreset(name string) (model.Config, error) {
	if name == PresetCustom {
		return s.Get(), nil
	}

	s.mu.Lock()
	cfg, ok := s.presets[name]
	if !ok {
		s.mu.Unlock()
		return model.Config{}, fmt.Errorf("unknown preset: %s", name)
	}
	s.current = cfg
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(cfg)
	}
	s.log.WithField("preset", name).Info("Configuration preset applied")
	return cfg, nil
}

// Preset looks up a named preset without applying it.
func (s *Store) Preset(name string) (model.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.presets[name]
	return cfg, ok
}

// Presets returns the known preset names in sorted order.
func (s *Store) Presets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribe registers a synchronous observer of configuration changes and
// returns its unsubscribe function. The observer must not call back into the
// store's mutating methods.
func (s *Store) Subscribe(fn func(model.Config)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}
