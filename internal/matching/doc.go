// Package matching ranks channels for a request and drains queued requests.
//
// Engine.Match validates the request, reads eligible channels from the
// directory, scores each one, keeps available channels scoring at least the
// minimum, sorts them by score (stable, so ties keep directory order),
// truncates to the maximum and attaches a redirect token to each survivor.
//
// Drainer periodically empties the matching queue through a bounded worker
// pool and publishes a matching_completed event per request. Payloads that
// cannot be decoded or matched are dead-lettered and the drain continues.
package matching
