// Package httpapi exposes matching, redirect and attribution operations over
// HTTP with gin.
//
// Routes live under a configurable base path (default /api/v1). Domain
// errors map to status codes in one place, writeError, so handlers only
// decide what to call.
package httpapi
