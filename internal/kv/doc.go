// Package kv is the key/value and work-queue layer behind the directory
// cache, redirect tokens, attribution paths and daily counters.
//
// Two implementations share one contract:
//   - RedisStore: go-redis, TTLs and atomicity enforced by Redis (MULTI/EXEC)
//   - MemoryStore: single process, built on ttl.Map with an injectable clock
//
// Key layout (owned by the callers):
//   - eligible_channels:<asset>:<region>   cached channel list (JSON)
//   - redirect:<id>                        redirect record (JSON)
//   - attribution_path:<user>              capped touchpoint list
//   - <counter>:<channel>:<YYYY-MM-DD>     daily counters
//   - matching:queue, attribution:events, attribution:conversions   work queues
package kv
