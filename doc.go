// loggen generates synthetic log records at sustained high throughput (the
// usual target is ~100,000 records/second) to find out how much a logging
// pipeline can take.
//
// A run goes through warm-up, measurement and shutdown:
//
// - warm-up pushes a fixed number of records through the sink synchronously,
// so that lazy initialization in the sink and its transport is out of the way,
// then waits a moment for things to settle.
//
// - the measured run starts one or more emitter workers and a progress
// monitor. Each worker is a tight loop: number the record, pick a message
// shape, attach the context fields, hand it to the sink, bump the shared
// counter. Every tenth record gets a long message with a nanosecond timestamp
// so downstream deduplication or compression can't flatter the numbers; the
// rest are short. Workers yield the scheduler every --yieldevery records.
//
// - the monitor wakes every --interval, reads the shared counter and prints
// the rate since its last reading.
//
// - on SIGINT/SIGTERM (or --runtime, or once every worker hits --target) the
// running flag is cleared, the workers are given --shutdowntimeout to notice,
// and the final count is printed. When the workers stop in time the count is
// exact; otherwise it's reported as a lower bound.
//
// Burst mode is the alternative: --bursttotal records are cut into batches of
// --burstsize, each batch is a task on a pool of --burstpool goroutines, and
// dispatch pauses briefly every --pauseevery batches. The overall rate is
// reported once every batch has finished.
//
// The shared counter is the only state written by more than one goroutine and
// is a set of atomics. The running flag has a single writer, the orchestrator.
//
// Sinks are pluggable (--sender): zap and logrus write JSON lines, print writes
// plain lines, honeycomb sends events with libhoney, otel exports OTLP log
// records, redis pushes JSON onto a list for Logstash, and dummy just counts.
// cmd/grpcsink and cmd/httpsink are OTLP logs receivers that count what
// actually arrives at the other end.
package main
