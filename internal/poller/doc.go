// Package poller runs periodic background cycles.
//
// A Poller:
//   - Runs its Task once on start, then on every interval tick
//   - Stops promptly when its context is cancelled or Stop is called
//   - Logs lifecycle lines under the configured component name
//
// ForEach fans a cycle's work out over a bounded number of goroutines. The
// directory refresh, the stats rollup and the matching queue drain are all
// built on these two pieces.
package poller
