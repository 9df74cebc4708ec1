// Package ttl provides an in-memory map whose entries expire.
//
// Expiry is evaluated against an injectable clock, so tests can move time
// forward deterministically with ManualClock instead of sleeping. Expired
// entries are invisible to readers immediately; Sweep reclaims their memory.
package ttl
