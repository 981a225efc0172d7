package seat

import (
	"slices"
	"sync"
)

// Listener observes session-active changes. Listeners are invoked on the
// goroutine that flips the flag, in subscription order.
type Listener func(active bool)

// Seat is the session state for one seat of the display server.
type Seat struct {
	name string

	mu        sync.Mutex
	active    bool
	listeners []Listener
}

// New creates an inactive seat.
func New(name string) *Seat {
	return &Seat{name: name}
}

// Name returns the seat identifier.
func (s *Seat) Name() string {
	return s.name
}

// Active reports whether the session currently owns the VT.
func (s *Seat) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Subscribe registers a listener for session-active changes.
func (s *Seat) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetSessionActive sets the flag and broadcasts unconditionally, even
// when the value is unchanged: a repeated activation still re-notifies
// observers so they can re-assert device state.
func (s *Seat) SetSessionActive(active bool) {
	s.mu.Lock()
	s.active = active
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(active)
	}
}
