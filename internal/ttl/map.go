package ttl

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Map is a thread-safe map with per-entry expiry.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	now     Clock
}

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// New creates an empty map. A nil clock means time.Now.
func New[K comparable, V any](clock Clock) *Map[K, V] {
	if clock == nil {
		clock = time.Now
	}
	return &Map[K, V]{
		entries: make(map[K]entry[V]),
		now:     clock,
	}
}

// Get returns the live value for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(key)
}

// Set stores value under key. A ttl <= 0 stores it without expiry.
func (m *Map[K, V]) Set(key K, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry[V]{value: value, expiresAt: m.deadline(ttl)}
}

// Update atomically replaces the value under key with fn(old, found).
// The new value expires after ttl (ttl <= 0 means no expiry).
func (m *Map[K, V]) Update(key K, ttl time.Duration, fn func(old V, found bool) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, found := m.getLocked(key)
	value := fn(old, found)
	m.entries[key] = entry[V]{value: value, expiresAt: m.deadline(ttl)}
	return value
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

// TTL returns the remaining lifetime of key. The second result is false when
// the key is missing or expired; a live key without expiry returns (0, true).
func (m *Map[K, V]) TTL(key K) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	now := m.now()
	if !ok || e.expired(now) {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return e.expiresAt.Sub(now), true
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Stored returns the number of entries held, expired ones included.
func (m *Map[K, V]) Stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep deletes expired entries and returns how many were removed.
func (m *Map[K, V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// getLocked returns the live value for key (caller must hold the lock).
func (m *Map[K, V]) getLocked(key K) (V, bool) {
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *Map[K, V]) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current manual time. Pass c.Now as a Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
