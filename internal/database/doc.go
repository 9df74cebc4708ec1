// Package database provides the PostgreSQL connection pool and schema migrations.
//
// The relational store holds:
//   - channels: the channel directory (filter columns plus the full record as jsonb)
//   - attribution_events, conversion_events: the durable event log
//   - attribution_stats: daily per-channel rollups
//
// Migrations are embedded in the binary and applied with goose.
package database
