// Package store holds the relational and analytical repositories behind the
// directory, matching and attribution packages.
//
// Postgres holds channels, touchpoints, conversions and daily stats. When the
// event log backend is ClickHouse, touchpoints go to ClickHouseEventLog and
// everything else stays in Postgres.
package store
