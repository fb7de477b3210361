package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Reporter publishes progress values; Hub satisfies it so the sweeper stays
// agnostic about how values are buffered or persisted.
type Reporter interface {
	Report(key string, value int64)
	ReportSystemStats(prefix string)
}
