package broadcast

import (
	"sync/atomic"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

// Subscription is one display client's attachment to a channel.
type Subscription struct {
	b       *Broadcaster
	channel string
	ch      chan domain.Event
	dropped atomic.Uint64
	done    bool // guarded by b.mu
}

// Events is the subscriber's stream. It is closed by Close or when the
// broadcaster shuts down.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Channel names the logical channel this subscription joined.
func (s *Subscription) Channel() string { return s.channel }

// Dropped counts events discarded because the subscriber lagged. A non-zero
// value means the client should re-subscribe with a snapshot.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches from the broadcaster and closes the event stream.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if subs, ok := s.b.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.b.subs, s.channel)
		}
	}
	close(s.ch)
}
