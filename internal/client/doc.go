// Package client is a Go client for the channeld HTTP API. Requests that fail
// with 429 or 5xx are retried with jittered exponential backoff.
package client
