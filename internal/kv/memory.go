package kv

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rwa-platform/channel-service/internal/poller"
	"github.com/rwa-platform/channel-service/internal/ttl"
)

// MemoryStore implements Store and Queue in process memory. Expiry follows
// the clock passed to NewMemoryStore.
type MemoryStore struct {
	// mu serializes multi-key operations (Increment) and list updates.
	mu     sync.Mutex
	values *ttl.Map[string, []byte]
	lists  *ttl.Map[string, []string]

	qmu    sync.Mutex
	queues map[string][][]byte
	signal chan struct{} // closed and replaced on every Push
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Queue = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(clock ttl.Clock) *MemoryStore {
	return &MemoryStore{
		values: ttl.New[string, []byte](clock),
		lists:  ttl.New[string, []string](clock),
		queues: make(map[string][][]byte),
		signal: make(chan struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.values.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.values.Set(key, v, ttl)
	return nil
}

func (s *MemoryStore) PushCapped(_ context.Context, key, value string, max int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists.Update(key, ttl, func(old []string, _ bool) []string {
		n := len(old) + 1
		if max > 0 && n > max {
			n = max
		}
		next := make([]string, 0, n)
		next = append(next, value)
		for _, v := range old {
			if len(next) == n {
				break
			}
			next = append(next, v)
		}
		return next
	})
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string) ([]string, error) {
	v, ok := s.lists.Get(key)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Increment(_ context.Context, ttl time.Duration, deltas ...Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every key first so a bad key leaves all counters untouched.
	next := make([][]byte, len(deltas))
	for i, d := range deltas {
		cur, _ := s.values.Get(d.Key)
		v, err := applyDelta(cur, d)
		if err != nil {
			return fmt.Errorf("increment %s: %w", d.Key, err)
		}
		next[i] = v
	}
	for i, d := range deltas {
		s.values.Set(d.Key, next[i], ttl)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Push(_ context.Context, key string, payload []byte) error {
	v := make([]byte, len(payload))
	copy(v, payload)

	s.qmu.Lock()
	s.queues[key] = append(s.queues[key], v)
	close(s.signal)
	s.signal = make(chan struct{})
	s.qmu.Unlock()
	return nil
}

func (s *MemoryStore) Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		s.qmu.Lock()
		if q := s.queues[key]; len(q) > 0 {
			item := q[0]
			q[0] = nil
			s.queues[key] = q[1:]
			s.qmu.Unlock()
			return item, nil
		}
		wait := s.signal
		s.qmu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return nil, ErrEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Sweep drops expired values and lists and returns how many were removed.
// Reads skip expired entries, but they are only freed here.
func (s *MemoryStore) Sweep() int {
	return s.values.Sweep() + s.lists.Sweep()
}

// Stored returns the number of values and lists held, expired ones included.
func (s *MemoryStore) Stored() int {
	return s.values.Stored() + s.lists.Stored()
}

// NewSweeper returns a poller that calls Sweep every interval.
func (s *MemoryStore) NewSweeper(interval time.Duration, logger *slog.Logger) *poller.Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return poller.New(poller.Config{Name: "kv sweeper", Interval: interval}, poller.TaskFunc(func(context.Context) {
		if n := s.Sweep(); n > 0 {
			logger.Debug("swept expired keys", "removed", n)
		}
	}), logger)
}

// QueueLen returns the number of payloads waiting under key.
func (s *MemoryStore) QueueLen(key string) int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queues[key])
}

// applyDelta mirrors Redis INCRBY/INCRBYFLOAT on a string value.
func applyDelta(cur []byte, d Delta) ([]byte, error) {
	if d.IsFloat() {
		var base float64
		if len(cur) > 0 {
			f, err := strconv.ParseFloat(string(cur), 64)
			if err != nil {
				return nil, fmt.Errorf("value is not a valid float")
			}
			base = f
		}
		return []byte(strconv.FormatFloat(base+d.Float, 'f', -1, 64)), nil
	}

	var base int64
	if len(cur) > 0 {
		n, err := strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value is not an integer")
		}
		base = n
	}
	return []byte(strconv.FormatInt(base+d.Int, 10)), nil
}
