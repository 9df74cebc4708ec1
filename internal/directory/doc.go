// Package directory implements the Channel Directory Cache.
//
// EligibleChannels answers "which channels can serve asset A in region R".
// Answers are cached under "eligible_channels:<asset>:<region>" for the
// configured TTL. On a miss the backing Source is queried once per key even
// under concurrent callers, and the result is written back.
//
// There is no invalidation hook: a channel changed in the backing store is
// seen once the cached entry expires, or earlier when the background refresh
// rewrites a recently requested key.
package directory
