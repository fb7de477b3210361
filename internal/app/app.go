// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/api"
	"github.com/JakeFAU/resource-existence/internal/catalog"
	"github.com/JakeFAU/resource-existence/internal/checkpoint"
	"github.com/JakeFAU/resource-existence/internal/config"
	"github.com/JakeFAU/resource-existence/internal/existence"
	"github.com/JakeFAU/resource-existence/internal/fetcher"
	collyfetcher "github.com/JakeFAU/resource-existence/internal/fetcher/colly"
	"github.com/JakeFAU/resource-existence/internal/fetcher/headless"
	"github.com/JakeFAU/resource-existence/internal/hash/sha256"
	"github.com/JakeFAU/resource-existence/internal/parser"
	"github.com/JakeFAU/resource-existence/internal/policy/ratelimit"
	"github.com/JakeFAU/resource-existence/internal/progress"
	"github.com/JakeFAU/resource-existence/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/resource-existence/internal/publisher/pubsub"
	"github.com/JakeFAU/resource-existence/internal/report"
	"github.com/JakeFAU/resource-existence/internal/storage"
	gcsstore "github.com/JakeFAU/resource-existence/internal/storage/gcs"
	"github.com/JakeFAU/resource-existence/internal/storage/local"
	"github.com/JakeFAU/resource-existence/internal/storage/postgres"
)

const closeTimeout = 10 * time.Second

// ResourceStore is the catalog table the sweep reads and updates.
type ResourceStore interface {
	existence.RecordStore
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// StatusStore persists and serves progress keys.
type StatusStore interface {
	sinks.StatusWriter
	api.StatusReader
}

// Session is the fetch session; cookie-aware sessions expose Cookies.
type Session interface {
	fetcher.Session
	Cookies() []*http.Cookie
	Close() error
}

// Checkpoint stores the resume position.
type Checkpoint interface {
	existence.Checkpointer
	Load(ctx context.Context) (int, error)
}

// Deps are the externally built services App assembles around.
type Deps struct {
	Store      ResourceStore
	Status     StatusStore
	Session    Session
	Checkpoint Checkpoint
	Archiver   *report.Archiver
	// Closers run in order on Close, after cookies are saved and the hub drained.
	Closers []func(context.Context) error
}

// App holds the shared, long-lived services of one CLI invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      ResourceStore
	status     StatusStore
	session    Session
	bounded    *fetcher.Bounded
	checkpoint Checkpoint
	archiver   *report.Archiver
	hub        *progress.Hub
	snapshot   *sinks.SnapshotSink
	sweeper    *existence.Sweeper
	closers    []func(context.Context) error
}

// New connects every configured backend and assembles the App. Anything
// already opened is released if a later step fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")
	var closers []func(context.Context) error
	fail := func(err error) (*App, error) {
		runClosers(context.Background(), closers, logger)
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:            cfg.DB.DSN,
		MaxConns:       cfg.DB.MaxConns,
		ConnectTimeout: cfg.DBConnectTimeout(),
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	store, err := postgres.NewResourceStore(pool, cfg.DB.Table)
	if err != nil {
		return fail(err)
	}
	status, err := postgres.NewStatusStore(pool, cfg.DB.StatusTable)
	if err != nil {
		return fail(err)
	}

	session, err := newSession(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func(context.Context) error { return session.Close() })

	var cp Checkpoint = checkpoint.Noop{}
	if cfg.Redis.Addr != "" {
		rc := checkpoint.NewRedis(cfg.Redis.Addr, cfg.Redis.KeyPrefix, checkpoint.DefaultTTL)
		closers = append(closers, func(context.Context) error { return rc.Close() })
		cp = rc
	}

	archiver, archiveClosers, err := newArchiver(ctx, cfg, logger)
	closers = append(closers, archiveClosers...)
	if err != nil {
		return fail(err)
	}

	return Assemble(cfg, logger, Deps{
		Store:      store,
		Status:     status,
		Session:    session,
		Checkpoint: cp,
		Archiver:   archiver,
		Closers:    closers,
	})
}

// Assemble wires the sweeper, progress hub and sinks around deps.
func Assemble(cfg config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Store == nil || deps.Session == nil {
		return nil, errors.New("store and session are required")
	}
	if deps.Checkpoint == nil {
		deps.Checkpoint = checkpoint.Noop{}
	}

	snapshot := sinks.NewSnapshotSink()
	hubSinks := []progress.Sink{snapshot, sinks.NewLogSink(logger.Named("progress"))}
	if deps.Status != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(deps.Status, logger))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:    cfg.Progress.BufferSize,
		FlushInterval: cfg.ProgressFlushInterval(),
		Logger:        logger,
	}, hubSinks...)

	bounded := fetcher.NewBounded(deps.Session, cfg.Fetch.SessionMaxRequests)
	bounded.OnDispose(func() {
		logger.Debug("fetch session disposed")
	})

	sweeper, err := existence.New(existence.Config{
		BaseURL:        cfg.Sweep.BaseURL,
		RecycleEvery:   cfg.Sweep.RecycleEvery,
		SoftBlockCodes: cfg.Sweep.SoftBlockCodes,
	}, deps.Store, bounded, parser.NewResourcePageParser(), hub, deps.Checkpoint, nil, logger)
	if err != nil {
		_ = hub.Close(context.Background())
		return nil, fmt.Errorf("build sweeper: %w", err)
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      deps.Store,
		status:     deps.Status,
		session:    deps.Session,
		bounded:    bounded,
		checkpoint: deps.Checkpoint,
		archiver:   deps.Archiver,
		hub:        hub,
		snapshot:   snapshot,
		sweeper:    sweeper,
		closers:    deps.Closers,
	}, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Sweeper returns the configured sweeper.
func (a *App) Sweeper() *existence.Sweeper {
	return a.sweeper
}

// Server builds the ops HTTP server backed by this App's services.
func (a *App) Server() *api.Server {
	checks := map[string]api.ReadyCheck{
		"postgres": a.store.Ping,
	}
	if p, ok := a.checkpoint.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = p.Ping
	}
	var status api.StatusReader
	if a.status != nil {
		status = a.status
	}
	return api.NewServer(a.snapshot, status, checks, a.logger)
}

// Preflight verifies the store answers and the site is reachable before a
// sweep starts.
func (a *App) Preflight(ctx context.Context) error {
	start := time.Now()
	logger := a.logger.Named("preflight")

	if err := a.store.Ping(ctx); err != nil {
		logger.Error("store unreachable", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return fmt.Errorf("preflight store: %w", err)
	}
	count, err := a.store.Count(ctx)
	if err != nil {
		logger.Error("store count failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return fmt.Errorf("preflight count: %w", err)
	}
	logger.Info("store ready", zap.Int64("resources", count))

	resp, err := a.bounded.Get(ctx, a.cfg.Sweep.BaseURL)
	if err != nil {
		logger.Error("site unreachable",
			zap.String("url", a.cfg.Sweep.BaseURL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return fmt.Errorf("preflight fetch: %w", err)
	}
	logger.Info("site reachable",
		zap.String("url", a.cfg.Sweep.BaseURL),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// ResolveOffset returns the offset a sweep should start from. With resume
// set, a stored checkpoint wins over offset.
func (a *App) ResolveOffset(ctx context.Context, offset int, resume bool) (int, error) {
	if !resume {
		return offset, nil
	}
	pos, err := a.checkpoint.Load(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		a.logger.Info("no checkpoint stored, starting at offset", zap.Int("offset", offset))
		return offset, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	a.logger.Info("resuming sweep from checkpoint", zap.Int("offset", pos))
	return pos, nil
}

// Sweep runs a full sweep and archives its report. Report failures are
// logged and do not fail the sweep.
func (a *App) Sweep(ctx context.Context, offset int, resume bool) (existence.Summary, error) {
	start, err := a.ResolveOffset(ctx, offset, resume)
	if err != nil {
		return existence.Summary{}, err
	}
	summary, err := a.sweeper.Run(ctx, start)
	if err != nil {
		return summary, err
	}
	if a.archiver != nil {
		if _, archiveErr := a.archiver.Archive(ctx, summary); archiveErr != nil {
			a.logger.Error("archive report failed", zap.String("run_id", summary.RunID), zap.Error(archiveErr))
		}
	}
	return summary, nil
}

// Check evaluates a single resource without persisting anything.
func (a *App) Check(ctx context.Context, id catalog.ResourceID) existence.Result {
	return a.sweeper.Check(ctx, id)
}

// StatusReport is the persisted state of the latest sweep.
type StatusReport struct {
	Values map[string]int64
	// Checkpoint is the stored resume position, or -1 when none is stored.
	Checkpoint int
}

// Status loads the persisted progress keys and the resume checkpoint.
func (a *App) Status(ctx context.Context) (StatusReport, error) {
	rep := StatusReport{Values: map[string]int64{}, Checkpoint: -1}
	if a.status != nil {
		values, err := a.status.All(ctx, existence.DefaultProgressPrefix)
		if err != nil {
			return rep, fmt.Errorf("load status: %w", err)
		}
		rep.Values = values
	}
	pos, err := a.checkpoint.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
	case err != nil:
		return rep, fmt.Errorf("load checkpoint: %w", err)
	default:
		rep.Checkpoint = pos
	}
	return rep, nil
}

// Close saves session cookies, drains the progress hub and releases every
// backend. It is safe to call once.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	var errs []error
	if path := a.cfg.Fetch.CookieFile; path != "" {
		if err := fetcher.SaveCookies(path, a.session.Cookies()); err != nil {
			errs = append(errs, fmt.Errorf("save cookies: %w", err))
		}
	}
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close progress hub: %w", err))
	}
	if err := runClosers(ctx, a.closers, a.logger); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func runClosers(ctx context.Context, closers []func(context.Context) error, logger *zap.Logger) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newSession(cfg config.Config, logger *zap.Logger) (Session, error) {
	var cookies []*http.Cookie
	if cfg.Fetch.CookieFile != "" {
		loaded, err := fetcher.LoadCookies(cfg.Fetch.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
		cookies = loaded
		logger.Info("loaded session cookies", zap.Int("count", len(cookies)))
	}
	pacer := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Fetch.RequestsPerSecond,
		Burst: cfg.Fetch.Burst,
	})

	switch cfg.Fetch.Mode {
	case config.FetchModeHeadless:
		logger.Info("using headless fetch session")
		f, err := headless.NewChromedp(headless.Config{
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.HeadlessNavTimeout(),
			CookieURL:         cfg.Sweep.BaseURL,
			Cookies:           cookies,
		}, pacer, logger)
		if err != nil {
			return nil, fmt.Errorf("build headless fetcher: %w", err)
		}
		return f, nil
	case config.FetchModeHTTP, "":
		logger.Info("using http fetch session")
		f, err := collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
			CookieURL: cfg.Sweep.BaseURL,
			Cookies:   cookies,
		}, pacer, logger)
		if err != nil {
			return nil, fmt.Errorf("build http fetcher: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetch mode: %s", cfg.Fetch.Mode)
	}
}

func newArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*report.Archiver, []func(context.Context) error, error) {
	var closers []func(context.Context) error
	var blobs storage.BlobStore
	switch cfg.Report.Sink {
	case config.ReportSinkLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Report.LocalDir})
		if err != nil {
			return nil, closers, fmt.Errorf("init local report store: %w", err)
		}
		logger.Info("archiving reports locally", zap.String("dir", cfg.Report.LocalDir))
		blobs = store
	case config.ReportSinkGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, closers, fmt.Errorf("create gcs client: %w", err)
		}
		closers = append(closers, func(context.Context) error { return client.Close() })
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Report.GCSBucket})
		if err != nil {
			return nil, closers, fmt.Errorf("init gcs report store: %w", err)
		}
		logger.Info("archiving reports to gcs", zap.String("bucket", cfg.Report.GCSBucket))
		blobs = store
	default:
		if cfg.Report.PubSubTopic == "" {
			return nil, closers, nil
		}
		blobs = storage.Noop{}
	}

	var publisher report.Publisher
	if cfg.Report.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.Report.PubSubProject)
		if err != nil {
			return nil, closers, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpub.New(client.Topic(cfg.Report.PubSubTopic))
		closers = append(closers, func(context.Context) error {
			pub.Close()
			return client.Close()
		})
		logger.Info("publishing report notifications", zap.String("topic", cfg.Report.PubSubTopic))
		publisher = pub
	}

	archiver, err := report.New(report.Config{Prefix: cfg.Report.Prefix}, blobs, publisher, sha256.New(), logger)
	if err != nil {
		return nil, closers, err
	}
	return archiver, closers, nil
}
