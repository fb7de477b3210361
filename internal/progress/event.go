package progress

import (
	"errors"
	"time"
)

// Event is a single progress observation: key now has value.
type Event struct {
	// Key is the dotted progress key, e.g. "existence.document.index".
	Key string
	// Value is the observed value. Timestamps are unix milliseconds.
	Value int64
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Key == "" {
		return errors.New("key is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// Latest collapses a batch to the last value observed per key.
func Latest(batch []Event) map[string]int64 {
	out := make(map[string]int64, len(batch))
	for _, evt := range batch {
		out[evt.Key] = evt.Value
	}
	return out
}
