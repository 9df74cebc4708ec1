// Package attribution records user touchpoints and credits conversions.
//
// The Tracker persists each touchpoint, prepends it to the user's capped
// attribution path and bumps the per-channel daily counter for its type. The
// Aggregator freezes the path into each conversion, bumps the conversion and
// revenue counters together and rolls the daily counters up into persisted
// stats on an interval. The Ingestor feeds both from the raw event queues.
//
// Key layout in the kv store:
//
//	attribution_path:<user>                      list, newest first
//	clicks|views|redirects|signups:<ch>:<day>    integer counters
//	conversions:<ch>:<day>                       integer counter
//	revenue:<ch>:<day>                           float counter
//
// Days are UTC calendar days (model.Day).
package attribution
