package session

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/transport"
)

// Subscriptions maps a key (channel id or reserved key) to at most one live
// broker subscription.
type Subscriptions struct {
	mu      sync.Mutex
	handles map[string]subEntry
	log     zerolog.Logger
}

type subEntry struct {
	handle transport.Subscription
	owner  Transport
}

// NewSubscriptions creates an empty subscription table
func NewSubscriptions(logger zerolog.Logger) *Subscriptions {
	return &Subscriptions{
		handles: make(map[string]subEntry),
		log:     logger,
	}
}

// Subscribe subscribes key to destination on t unless key already has a live
// handle on t. A handle left over from another transport is replaced.
// Returns true when a new subscription was made.
func (s *Subscriptions) Subscribe(t Transport, key, destination string, deliver func([]byte)) (bool, error) {
	if t == nil {
		return false, ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale transport.Subscription
	if e, ok := s.handles[key]; ok {
		if e.owner == t {
			return false, nil
		}
		stale = e.handle
	}

	handle, err := t.Subscribe(destination, deliver)
	if err != nil {
		return false, err
	}
	s.handles[key] = subEntry{handle: handle, owner: t}

	if stale != nil {
		go stale.Unsubscribe()
	}
	s.log.Debug().Str("key", key).Str("destination", destination).Msg("Subscribed")
	return true, nil
}

// Unsubscribe removes key and sends UNSUBSCRIBE for its handle
func (s *Subscriptions) Unsubscribe(key string) bool {
	handle := s.Release(key)
	if handle == nil {
		return false
	}
	if err := handle.Unsubscribe(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Unsubscribe failed")
	}
	return true
}

// Release removes key and returns its handle without unsubscribing it
func (s *Subscriptions) Release(key string) transport.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.handles[key]
	if !ok {
		return nil
	}
	delete(s.handles, key)
	return e.handle
}

// UnsubscribeAll drains the table and unsubscribes every handle in parallel.
// Returns the number of handles released.
func (s *Subscriptions) UnsubscribeAll() int {
	s.mu.Lock()
	drained := s.handles
	s.handles = make(map[string]subEntry)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for key, e := range drained {
		wg.Add(1)
		go func(key string, handle transport.Subscription) {
			defer wg.Done()
			if err := handle.Unsubscribe(); err != nil {
				s.log.Debug().Err(err).Str("key", key).Msg("Unsubscribe failed")
			}
		}(key, e.handle)
	}
	wg.Wait()
	return len(drained)
}

// Drop forgets every handle without any network traffic. Used when the
// connection died underneath the handles.
func (s *Subscriptions) Drop() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.handles)
	s.handles = make(map[string]subEntry)
	return n
}

// Has reports whether key has a live handle
func (s *Subscriptions) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[key]
	return ok
}

// Keys returns the subscribed keys in sorted order
func (s *Subscriptions) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.handles))
	for k := range s.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live handles
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
