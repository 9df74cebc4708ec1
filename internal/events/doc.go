// Package events publishes domain events asynchronously.
//
// Publish never blocks the caller: messages go into a bounded Buffer and a
// fixed pool of workers writes them to a Sink. Failures are not swallowed:
//   - A full buffer rejects the message with ErrBufferFull (counted as dropped)
//   - A failed write sends the message to the dead-letter Sink
//   - A failed dead-letter write is logged with the payload
//
// Sinks:
//   - KafkaSink writes to Kafka, keyed for per-user ordering
//   - LogSink writes a log line per message
//   - Tee fans out to several sinks
package events
