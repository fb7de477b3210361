package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/resource-existence/internal/progress"
)

// SnapshotSink keeps the latest value of every key in memory for readers
// such as the ops API.
type SnapshotSink struct {
	mu      sync.RWMutex
	values  map[string]int64
	updated time.Time
}

// NewSnapshotSink returns an empty SnapshotSink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{values: make(map[string]int64)}
}

// Consume merges the batch into the snapshot.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.values[evt.Key] = evt.Value
		if evt.TS.After(s.updated) {
			s.updated = evt.TS
		}
	}
	return nil
}

// Snapshot returns a copy of the current values and the newest event time.
func (s *SnapshotSink) Snapshot() (map[string]int64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, s.updated
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
