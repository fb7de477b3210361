package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering for the Hub. Zero values pick the defaults.
type Config struct {
	// BufferSize is the capacity of the intake channel.
	BufferSize int
	// FlushInterval is how often coalesced values are handed to the sinks.
	FlushInterval time.Duration
	Logger        *zap.Logger
}

const (
	defaultBufferSize    = 1024
	defaultFlushInterval = 500 * time.Millisecond
	sinkTimeout          = 10 * time.Second
	dropLogInterval      = 5 * time.Second
)

// Hub coalesces progress values by key and fans them out to sinks on a fixed
// interval. Only the latest value per key survives between flushes. Emit and
// Report never block the caller.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	logger *zap.Logger
	now    func() time.Time

	dropped atomic.Int64
	dropLog rate.Sometimes
	closed  atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	closeCtx context.Context
}

// NewHub starts the flush loop for sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		dropLog: rate.Sometimes{Interval: dropLogInterval},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit queues evt. A full buffer drops it and logs a throttled warning.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress events dropped", zap.Int64("dropped", h.dropped.Swap(0)))
		})
	}
}

// Report emits key=value stamped with the current time.
func (h *Hub) Report(key string, value int64) {
	if h == nil {
		return
	}
	h.Emit(Event{Key: key, Value: value, TS: h.now()})
}

// ReportSystemStats emits a SystemStats sample under prefix.
func (h *Hub) ReportSystemStats(prefix string) {
	if h == nil {
		return
	}
	ts := h.now()
	for key, value := range SystemStats(prefix) {
		h.Emit(Event{Key: key, Value: value, TS: ts})
	}
}

// Dropped reports events discarded since the last drop warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close flushes whatever is queued, closes the sinks and waits for the loop
// to exit or ctx to expire. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.cfg.FlushInterval)
	defer ticker.Stop()

	var pending pendingSet
	for {
		select {
		case evt := <-h.events:
			pending.put(evt)
		case <-ticker.C:
			h.flush(pending.take())
		case <-h.stopCh:
			for drained := false; !drained; {
				select {
				case evt := <-h.events:
					pending.put(evt)
				default:
					drained = true
				}
			}
			h.flush(pending.take())
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(h.closeCtx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

// pendingSet keeps the latest event per key in first-seen key order.
type pendingSet struct {
	order []string
	byKey map[string]Event
}

func (p *pendingSet) put(evt Event) {
	if p.byKey == nil {
		p.byKey = make(map[string]Event)
	}
	if _, ok := p.byKey[evt.Key]; !ok {
		p.order = append(p.order, evt.Key)
	}
	p.byKey[evt.Key] = evt
}

func (p *pendingSet) take() []Event {
	if len(p.order) == 0 {
		return nil
	}
	out := make([]Event, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.byKey[key])
	}
	p.order = nil
	p.byKey = nil
	return out
}
