// Package script holds the presentation text the user rehearses and the lock
// that gates recording.
package script

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidState is returned for edits or lock transitions the current
// state does not allow.
var ErrInvalidState = errors.New("invalid script state")

// Store is safe for concurrent use. Lock observers run synchronously on the
// goroutine that changed the lock, after the store's mutex is released.
type Store struct {
	mu       sync.Mutex
	text     string
	locked   bool
	watchers []func(locked bool)
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return fmt.Errorf("%w: script is locked", ErrInvalidState)
	}
	s.text = text
	return nil
}

func (s *Store) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *Store) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Lock fails when the text is blank or the script is already locked.
func (s *Store) Lock() error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return fmt.Errorf("%w: already locked", ErrInvalidState)
	}
	if strings.TrimSpace(s.text) == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: script is empty", ErrInvalidState)
	}
	s.locked = true
	watchers := s.watchers
	s.mu.Unlock()

	notify(watchers, true)
	return nil
}

// Unlock always succeeds. Observers are only told about actual changes.
func (s *Store) Unlock() {
	s.mu.Lock()
	if !s.locked {
		s.mu.Unlock()
		return
	}
	s.locked = false
	watchers := s.watchers
	s.mu.Unlock()

	notify(watchers, false)
}

func (s *Store) Watch(fn func(locked bool)) {
	s.mu.Lock()
	s.watchers = append(s.watchers[:len(s.watchers):len(s.watchers)], fn)
	s.mu.Unlock()
}

func notify(watchers []func(bool), locked bool) {
	for _, fn := range watchers {
		fn(locked)
	}
}
