package existence

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/resource-existence/internal/catalog"
	"github.com/JakeFAU/resource-existence/internal/fetcher"
)

// RecordStore enumerates resources and applies per-resource status updates.
// Each write is an independent, atomic field update keyed by id.
type RecordStore interface {
	ListEntryIDs(ctx context.Context) ([]catalog.ResourceID, error)
	SetStatus(ctx context.Context, id catalog.ResourceID, status catalog.ExistenceStatus) error
	ClearStatus(ctx context.Context, id catalog.ResourceID) error
	SetDownloads(ctx context.Context, id catalog.ResourceID, downloads int64) error
}

// Fetcher retrieves resource pages. Network-level failures are returned as
// *fetcher.Error so the sweeper can tell timeouts apart from other failures.
type Fetcher interface {
	Get(ctx context.Context, url string) (fetcher.Response, error)
	DisposeSession(ctx context.Context) error
}

// PageParser turns a resource page into a Resource, starting from seed.
type PageParser interface {
	Parse(doc *goquery.Document, seed catalog.ListedResource) (*catalog.Resource, error)
}

// ProgressReporter is a best-effort telemetry sink. Implementations must not
// block and must never fail the caller.
type ProgressReporter interface {
	Report(key string, value int64)
	ReportSystemStats(prefix string)
}

// Checkpointer remembers how many positions of an interrupted sweep were
// already processed.
type Checkpointer interface {
	Save(ctx context.Context, position int) error
	Clear(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopProgress struct{}

func (nopProgress) Report(string, int64)     {}
func (nopProgress) ReportSystemStats(string) {}

type nopCheckpoint struct{}

func (nopCheckpoint) Save(context.Context, int) error { return nil }
func (nopCheckpoint) Clear(context.Context) error     { return nil }
