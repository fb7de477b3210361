// Package progress provides the key/value progress events a sweep publishes,
// a non-blocking hub that batches them on a background goroutine, and the
// sink interface used to fan them out to Prometheus, the status table, logs
// or an in-memory snapshot.
package progress
