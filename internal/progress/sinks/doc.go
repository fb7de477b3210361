// Package sinks implements concrete progress consumers: Prometheus gauges,
// the Postgres status table, structured logging and an in-memory snapshot
// served by the ops API. Each sink satisfies progress.Sink.
package sinks
