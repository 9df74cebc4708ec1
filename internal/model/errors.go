package model

import (
	"errors"
	"fmt"
)

// Error classes. Use errors.Is to classify errors returned by any component.
var (
	// ErrNoEligibleChannels means no channel passed the asset/region filter.
	ErrNoEligibleChannels = errors.New("no eligible channels")

	// ErrValidation marks requests rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrBackingStore marks failures of the cache, database or queue.
	ErrBackingStore = errors.New("backing store error")

	// ErrNotFound is returned for missing or expired redirect tokens and stats.
	ErrNotFound = errors.New("not found")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BackingStoreError wraps a store failure with the operation that hit it.
type BackingStoreError struct {
	Op  string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is reports ErrBackingStore so callers can classify without errors.As.
func (e *BackingStoreError) Is(target error) bool { return target == ErrBackingStore }

func (e *BackingStoreError) Unwrap() error { return e.Err }

// StoreError wraps err as a BackingStoreError, passing nil through.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackingStoreError{Op: op, Err: err}
}

// EligibilityError reports the asset/region pair that had no channels.
type EligibilityError struct {
	AssetID string
	Region  string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("no eligible channels found for asset %s in region %s", e.AssetID, e.Region)
}

func (e *EligibilityError) Unwrap() error { return ErrNoEligibleChannels }
