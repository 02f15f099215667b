package cache

import (
	"context"
	"sync"

	"github.com/quorumhq/regcache/internal/log"
)

// Listener receives the full snapshot after every change. Notifications run
// synchronously on the poll goroutine in registration order, so listeners
// must not block; a listener that needs to do slow work should hand the
// snapshot off, e.g. via a ChannelListener.
//
// Add/Remove match listeners by identity, so implementations must be
// comparable (in practice: use a pointer receiver).
type Listener[K comparable, V any] interface {
	Notify(snapshot map[K]V)
}

// listenerSet is an ordered registry safe for registration concurrent with a
// notification pass: readers iterate a copy-on-write slice.
type listenerSet[K comparable, V any] struct {
	mu        sync.Mutex
	listeners []Listener[K, V]
}

func (s *listenerSet[K, V]) add(l Listener[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Listener[K, V], len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, l)
}

func (s *listenerSet[K, V]) remove(l Listener[K, V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.listeners {
		if existing == l {
			next := make([]Listener[K, V], 0, len(s.listeners)-1)
			next = append(next, s.listeners[:i]...)
			next = append(next, s.listeners[i+1:]...)
			s.listeners = next

			return true
		}
	}

	return false
}

// snapshot returns the current listener slice. The slice is never mutated
// after publication, so callers may iterate it without holding the lock.
func (s *listenerSet[K, V]) snapshot() []Listener[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listeners
}

func (s *listenerSet[K, V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.listeners)
}

// ChannelListener adapts the synchronous listener contract to a channel.
// Sends are non-blocking: when the buffer is full the snapshot is dropped,
// never stalling the poll loop. Consumers always converge on the latest
// snapshot because every later change sends again.
type ChannelListener[K comparable, V any] struct {
	ch   chan map[K]V
	once sync.Once
}

// NewChannelListener creates a ChannelListener with the given buffer
// (minimum 1).
func NewChannelListener[K comparable, V any](buffer int) *ChannelListener[K, V] {
	if buffer <= 0 {
		buffer = 1
	}

	return &ChannelListener[K, V]{ch: make(chan map[K]V, buffer)}
}

// Notify implements Listener.
func (cl *ChannelListener[K, V]) Notify(snapshot map[K]V) {
	select {
	case cl.ch <- snapshot:
	default:
		log.Debug(context.Background(), "channel listener buffer full, dropping snapshot")
	}
}

// C returns the receive side of the listener.
func (cl *ChannelListener[K, V]) C() <-chan map[K]V {
	return cl.ch
}

// Close closes the channel. Callers must remove the listener from the cache
// first; Notify on a closed listener panics.
func (cl *ChannelListener[K, V]) Close() {
	cl.once.Do(func() {
		close(cl.ch)
	})
}
