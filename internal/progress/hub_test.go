package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TestHubCoalescesByKey keeps only the latest value per key, in first-seen order.
func TestHubCoalescesByKey(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, FlushInterval: time.Minute}, sink)

	ts := time.Now()
	hub.Emit(Event{Key: "existence.document.index", Value: 1, TS: ts})
	hub.Emit(Event{Key: "existence.document.id", Value: 10, TS: ts})
	hub.Emit(Event{Key: "existence.document.index", Value: 2, TS: ts})
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	require.Equal(t, "existence.document.index", batches[0][0].Key)
	require.Equal(t, int64(2), batches[0][0].Value)
	require.Equal(t, "existence.document.id", batches[0][1].Key)
}

// TestHubFlushesOnInterval hands values to sinks without waiting for Close.
func TestHubFlushesOnInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, FlushInterval: 10 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent("existence.document.index"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWhenFull drops instead of blocking the caller.
func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events:  make(chan Event),
		logger:  zap.NewNop(),
		dropLog: rate.Sometimes{Interval: time.Hour},
	}
	start := time.Now()
	hub.Emit(sampleEvent("existence.document.index"))
	hub.Emit(sampleEvent("existence.document.index"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	// The first drop is logged and resets the counter; the second is held.
	require.Equal(t, int64(1), hub.Dropped())
}

// TestHubFlushOnClose ensures Close drains queued events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, FlushInterval: time.Minute}, sink)
	hub.Emit(sampleEvent("existence.document.index"))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(key string) Event {
	return Event{Key: key, Value: 1, TS: time.Now()}
}

// TestHubReport stamps values and forwards them in emission order.
func TestHubReport(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, FlushInterval: time.Minute}, sink)
	hub.Report("existence.start", 1700000000000)
	hub.Report("existence.document.amount", 3)
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, map[string]int64{
		"existence.start":           1700000000000,
		"existence.document.amount": 3,
	}, Latest(batches[0]))
	require.False(t, batches[0][0].TS.IsZero())
}

// TestHubReportSystemStats emits every stat under the given prefix.
func TestHubReportSystemStats(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 32, FlushInterval: time.Minute}, sink)
	hub.ReportSystemStats("existence.system.")
	require.NoError(t, hub.Close(context.Background()))

	latest := Latest(sink.Batches()[0])
	require.Len(t, latest, len(SystemStats("x.")))
	require.Contains(t, latest, "existence.system.memory.alloc")
	require.Positive(t, latest["existence.system.goroutines"])
}

// TestHubDiscardsInvalidEvents drops events without a key or timestamp.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, FlushInterval: time.Minute}, sink)
	hub.Emit(Event{Key: "", TS: time.Now()})
	hub.Emit(Event{Key: "existence.end"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubEmitAfterCloseIsIgnored guards against sends on a closed hub.
func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))
	hub.Report("existence.end", 1)
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Report("existence.start", 1)
	hub.ReportSystemStats("existence.system.")
	require.NoError(t, hub.Close(context.Background()))
}
