// Package selection holds the recipient emails a user picked on the contacts
// page until the compose page consumes them.
package selection

import "sync"

// Store is the recipient selection of one session
type Store struct {
	mu     sync.RWMutex
	emails []string
}

// NewStore creates an empty selection
func NewStore() *Store {
	return &Store{}
}

// SetSelected replaces the selection. No validation or deduplication is
// done here; the compose workflow dedups when it consumes the list.
func (s *Store) SetSelected(emails []string) {
	cp := make([]string, len(emails))
	copy(cp, emails)

	s.mu.Lock()
	s.emails = cp
	s.mu.Unlock()
}

// Clear empties the selection
func (s *Store) Clear() {
	s.mu.Lock()
	s.emails = nil
	s.mu.Unlock()
}

// Selected returns a copy of the current selection
func (s *Store) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make([]string, len(s.emails))
	copy(cp, s.emails)
	return cp
}

// Len returns the number of selected emails
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.emails)
}
