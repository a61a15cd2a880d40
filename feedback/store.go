// Package feedback holds the outcome of the last analysis and renders it for
// display and export.
package feedback

import "sync"

// Store keeps either the last result or the last error, never both.
// Readers get copies.
type Store struct {
	mu     sync.RWMutex
	result *Result
	errMsg string
	hasErr bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SetResult(r *Result) {
	s.mu.Lock()
	s.result = r.clone()
	s.errMsg, s.hasErr = "", false
	s.mu.Unlock()
}

func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.result = nil
	s.errMsg, s.hasErr = msg, true
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.result = nil
	s.errMsg, s.hasErr = "", false
	s.mu.Unlock()
}

func (s *Store) Result() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result.clone(), s.result != nil
}

func (s *Store) Error() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg, s.hasErr
}
