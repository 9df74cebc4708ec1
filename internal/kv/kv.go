package kv

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned by Get for missing or expired keys.
	ErrNotFound = errors.New("kv: key not found")

	// ErrEmpty is returned by Pop when nothing arrived before the timeout.
	ErrEmpty = errors.New("kv: queue empty")
)

// Store holds values, capped lists and counters with expiry.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PushCapped prepends value to the list at key, keeps the first max
	// entries and resets the list TTL. The three steps are atomic per key.
	PushCapped(ctx context.Context, key, value string, max int, ttl time.Duration) error

	// Range returns the whole list at key, head first. Missing keys yield an
	// empty list.
	Range(ctx context.Context, key string) ([]string, error)

	// Increment applies all deltas atomically and resets each key's TTL.
	Increment(ctx context.Context, ttl time.Duration, deltas ...Delta) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// Queue is a FIFO of opaque payloads keyed by name.
type Queue interface {
	Push(ctx context.Context, key string, payload []byte) error

	// Pop waits up to timeout for a payload. It returns ErrEmpty when the
	// wait elapsed and ctx.Err() when ctx was cancelled.
	Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
}

// Delta is one counter increment.
type Delta struct {
	Key   string
	Int   int64
	Float float64
	float bool
}

// IncrBy increments an integer counter.
func IncrBy(key string, n int64) Delta {
	return Delta{Key: key, Int: n}
}

// IncrByFloat increments a floating-point counter.
func IncrByFloat(key string, f float64) Delta {
	return Delta{Key: key, Float: f, float: true}
}

// IsFloat reports whether the delta is a floating-point increment.
func (d Delta) IsFloat() bool { return d.float }

// GetInt reads an integer counter. Missing keys read as 0.
func GetInt(ctx context.Context, s Store, key string) (int64, error) {
	b, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(b), 10, 64)
}

// GetFloat reads a floating-point counter. Missing keys read as 0.
func GetFloat(ctx context.Context, s Store, key string) (float64, error) {
	b, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(string(b), 64)
}
