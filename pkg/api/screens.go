package api

import (
	"sync"
	"time"

	"fundwizard/pkg/presenter"
)

// navigation remembers where a screen sent the user. HTTP clients read it
// back instead of being moved.
type navigation struct {
	mu   sync.Mutex
	path string
}

func (n *navigation) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *navigation) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

type screenEntry struct {
	screen  *presenter.Screen
	nav     *navigation
	session string
	created time.Time
}

// screens holds the confirmation screens mounted through the API.
type screens struct {
	mu      sync.RWMutex
	entries map[string]*screenEntry
	now     func() time.Time
}

func newScreens() *screens {
	return &screens{entries: make(map[string]*screenEntry), now: time.Now}
}

func (s *screens) add(e *screenEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.created = s.now()
	s.entries[e.screen.ID()] = e
}

func (s *screens) get(id string) (*screenEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// sweep drops resolved screens older than age and returns how many went.
func (s *screens) sweep(age time.Duration) int {
	cutoff := s.now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.created.After(cutoff) {
			continue
		}
		select {
		case <-e.screen.Done():
			delete(s.entries, id)
			n++
		default:
		}
	}
	return n
}

func (s *screens) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
