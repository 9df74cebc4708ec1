// Package model defines shared data types used across the channel service.
//
// JSON field names mirror the public API and the Kafka event payloads.
//
// Conventions:
//   - Amounts and fees: float64 in the request currency (USD)
//   - Timestamps: time.Time, serialized as RFC 3339
//   - Days: "YYYY-MM-DD" strings in UTC (see DayFormat)
//   - IDs: UUID strings for tokens, events and conversions
package model
