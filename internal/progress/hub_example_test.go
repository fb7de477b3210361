package progress

import (
	"context"
	"fmt"
	"time"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Report demonstrates reporting a value and flushing via Close.
func ExampleHub_Report() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:    4,
		FlushInterval: time.Minute,
	}, sink)

	hub.Report("existence.document.index", 1)
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink. Repeated values for one key are
// coalesced, so the sink only sees the latest.
func ExampleSink() {
	var highest int64
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Key == "existence.document.index" && evt.Value > highest {
				highest = evt.Value
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:    4,
		FlushInterval: time.Minute,
	}, capture)

	for i := int64(1); i <= 3; i++ {
		hub.Emit(Event{Key: "existence.document.index", Value: i, TS: time.Unix(0, 0)})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("highest index: %d\n", highest)
	// Output:
	// highest index: 3
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
