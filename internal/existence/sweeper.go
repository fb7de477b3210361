package existence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/catalog"
	"github.com/JakeFAU/resource-existence/internal/fetcher"
	"github.com/JakeFAU/resource-existence/internal/metrics"
)

// Progress keys published during a sweep, relative to Config.ProgressPrefix.
const (
	KeyStart       = "start"
	KeyEnd         = "end"
	KeyInterrupted = "interrupted"
	KeyAmount      = "document.amount"
	KeyIndex       = "document.index"
	KeyDocumentID  = "document.id"
	KeySuspects    = "document.suspects"
	KeySystemStats = "system."
)

// Defaults applied by New when the corresponding Config field is unset.
const (
	DefaultRecycleEvery   = 10
	DefaultProgressPrefix = "existence."
)

// Config controls a sweep.
type Config struct {
	// BaseURL is the site root; resource pages live at BaseURL + "resources/" + id.
	BaseURL string
	// RecycleEvery is the number of positions between session disposals.
	RecycleEvery int
	// SoftBlockCodes are HTTP statuses that skip a resource without a verdict.
	SoftBlockCodes []int
	// ProgressPrefix namespaces every progress key.
	ProgressPrefix string
}

// Result is the verdict for a single resource.
type Result struct {
	ID         catalog.ResourceID
	URL        string
	Outcome    Outcome
	StatusCode int
	Downloads  int64
	Duration   time.Duration
	Err        error
}

// Transition returns the status change implied by the result.
func (r Result) Transition() Transition {
	return Classify(r.Outcome)
}

// Sweeper runs existence sweeps over every known resource.
type Sweeper struct {
	cfg        Config
	store      RecordStore
	fetcher    Fetcher
	parser     PageParser
	progress   ProgressReporter
	checkpoint Checkpointer
	clock      Clock
	logger     *zap.Logger
	softBlock  map[int]struct{}
}

// New constructs a Sweeper. Progress, checkpoint and clock may be nil.
func New(
	cfg Config,
	store RecordStore,
	fetch Fetcher,
	parser PageParser,
	progress ProgressReporter,
	checkpoint Checkpointer,
	clock Clock,
	logger *zap.Logger,
) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if fetch == nil {
		return nil, errors.New("fetcher is required")
	}
	if parser == nil {
		return nil, errors.New("page parser is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.RecycleEvery <= 0 {
		cfg.RecycleEvery = DefaultRecycleEvery
	}
	if cfg.ProgressPrefix == "" {
		cfg.ProgressPrefix = DefaultProgressPrefix
	}
	if progress == nil {
		progress = nopProgress{}
	}
	if checkpoint == nil {
		checkpoint = nopCheckpoint{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	softBlock := make(map[int]struct{}, len(cfg.SoftBlockCodes))
	for _, code := range cfg.SoftBlockCodes {
		softBlock[code] = struct{}{}
	}
	metrics.Init()
	return &Sweeper{
		cfg:        cfg,
		store:      store,
		fetcher:    fetch,
		parser:     parser,
		progress:   progress,
		checkpoint: checkpoint,
		clock:      clock,
		logger:     logger.Named("sweeper"),
		softBlock:  softBlock,
	}, nil
}

// ResourceURL returns the page URL checked for id.
func (s *Sweeper) ResourceURL(id catalog.ResourceID) string {
	return s.cfg.BaseURL + "resources/" + strconv.FormatInt(int64(id), 10)
}

// Run performs one sweep, skipping the first offset entries of the
// deduplicated enumeration. It only returns an error when the enumeration
// fails or ctx is canceled; per-entry failures are classified and recorded.
func (s *Sweeper) Run(ctx context.Context, offset int) (Summary, error) {
	if offset < 0 {
		offset = 0
	}
	summary := newSummary(uuid.NewString(), s.clock.Now(), offset)
	logger := s.logger.With(zap.String("run_id", summary.RunID))

	ids, err := s.store.ListEntryIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("enumerate resources: %w", err)
	}
	ids = dedupe(ids)
	summary.Total = len(ids)

	s.report(KeyStart, summary.StartedAt.UnixMilli())
	s.report(KeyEnd, 0)
	s.report(KeyInterrupted, 0)
	s.report(KeyAmount, int64(len(ids)))
	s.report(KeySuspects, 0)
	metrics.SetSuspects(0)
	logger.Info("existence sweep started",
		zap.Int("total", summary.Total),
		zap.Int("offset", offset),
	)

	for i, id := range ids {
		position := i + 1
		if i < offset {
			summary.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.interrupt(summary, position, logger), fmt.Errorf("sweep interrupted at position %d: %w", position, err)
		}

		s.report(KeyIndex, int64(position))
		s.report(KeyDocumentID, int64(id))

		res := s.Check(ctx, id)
		if res.Err != nil && ctx.Err() != nil {
			// The failure came from our own cancellation, not from the remote site.
			return s.interrupt(summary, position, logger), fmt.Errorf("sweep interrupted at position %d: %w", position, ctx.Err())
		}
		s.apply(ctx, res, &summary, logger)
		s.report(KeySuspects, int64(summary.Suspects))

		if err := s.checkpoint.Save(ctx, position); err != nil {
			logger.Warn("checkpoint save failed", zap.Int("position", position), zap.Error(err))
		}
		if position%s.cfg.RecycleEvery == 0 {
			s.recycle(ctx, &summary, logger)
		}
	}

	if err := s.checkpoint.Clear(ctx); err != nil {
		logger.Warn("checkpoint clear failed", zap.Error(err))
	}
	return s.finish(summary, logger), nil
}

// Check fetches and evaluates one resource without persisting anything.
func (s *Sweeper) Check(ctx context.Context, id catalog.ResourceID) (res Result) {
	url := s.ResourceURL(id)
	res = Result{ID: id, URL: url}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ObserveCheck(res.Outcome.String(), res.Duration)
	}()

	resp, err := s.fetcher.Get(ctx, url)
	if err != nil {
		res.Err = err
		if fetcher.IsTimeout(err) {
			res.Outcome = OutcomeTimeout
		} else {
			res.Outcome = OutcomeFailed
		}
		return res
	}
	res.StatusCode = resp.StatusCode
	if _, blocked := s.softBlock[resp.StatusCode]; blocked {
		res.Outcome = OutcomeSoftBlocked
		return res
	}

	record, err := s.parse(resp.Body, id)
	if err != nil {
		res.Err = err
	}
	if !IsComplete(record) {
		res.Outcome = OutcomeIncomplete
		return res
	}
	res.Outcome = OutcomeComplete
	res.Downloads = record.Downloads
	return res
}

func (s *Sweeper) parse(body []byte, id catalog.ResourceID) (*catalog.Resource, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}
	record, err := s.parser.Parse(doc, catalog.NewSeed(id))
	if err != nil {
		return nil, fmt.Errorf("parse resource page: %w", err)
	}
	return record, nil
}

func (s *Sweeper) apply(ctx context.Context, res Result, summary *Summary, logger *zap.Logger) {
	tr := res.Transition()
	fields := []zap.Field{
		zap.Int64("id", int64(res.ID)),
		zap.String("outcome", res.Outcome.String()),
		zap.Int("status_code", res.StatusCode),
		zap.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}

	switch tr.Action {
	case ActionNone:
		summary.SoftBlocked++
		logger.Debug("resource soft blocked", fields...)
		return
	case ActionClear:
		summary.Processed++
		summary.Complete++
		if err := s.store.ClearStatus(ctx, res.ID); err != nil {
			summary.WriteErrors++
			metrics.ObserveStoreError("clear_status")
			logger.Error("clear status failed", append(fields, zap.NamedError("store_error", err))...)
		}
		if res.Downloads > 0 {
			if err := s.store.SetDownloads(ctx, res.ID, res.Downloads); err != nil {
				summary.WriteErrors++
				metrics.ObserveStoreError("set_downloads")
				logger.Error("set downloads failed", append(fields, zap.NamedError("store_error", err))...)
			}
		}
		logger.Debug("resource exists", fields...)
	case ActionSet:
		summary.Processed++
		summary.addSuspect(res.ID, tr.Status)
		metrics.SetSuspects(summary.Suspects)
		if err := s.store.SetStatus(ctx, res.ID, tr.Status); err != nil {
			summary.WriteErrors++
			metrics.ObserveStoreError("set_status")
			logger.Error("set status failed", append(fields, zap.NamedError("store_error", err))...)
		}
		logger.Info("resource probably deleted", append(fields, zap.Stringer("status", tr.Status))...)
	}
}

func (s *Sweeper) recycle(ctx context.Context, summary *Summary, logger *zap.Logger) {
	summary.Recycles++
	metrics.ObserveSessionRecycle()
	if err := s.fetcher.DisposeSession(ctx); err != nil {
		logger.Warn("dispose session failed", zap.Error(err))
	}
	s.progress.ReportSystemStats(s.cfg.ProgressPrefix + KeySystemStats)
}

func (s *Sweeper) finish(summary Summary, logger *zap.Logger) Summary {
	summary.FinishedAt = s.clock.Now()
	s.report(KeyEnd, summary.FinishedAt.UnixMilli())
	s.report(KeySuspects, int64(summary.Suspects))
	s.logSummary(summary, logger)
	return summary
}

// interrupt closes out a canceled sweep. The end key stays zero so a pending
// checkpoint is never shown as a finished run.
func (s *Sweeper) interrupt(summary Summary, position int, logger *zap.Logger) Summary {
	summary.FinishedAt = s.clock.Now()
	summary.InterruptedAt = position
	s.report(KeyInterrupted, int64(position))
	s.report(KeySuspects, int64(summary.Suspects))
	s.logSummary(summary, logger.With(zap.Int("interrupted_at", position)))
	return summary
}

func (s *Sweeper) logSummary(summary Summary, logger *zap.Logger) {
	logger.Info(summary.Message(),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("soft_blocked", summary.SoftBlocked),
		zap.Int("write_errors", summary.WriteErrors),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
}

func (s *Sweeper) report(key string, value int64) {
	s.progress.Report(s.cfg.ProgressPrefix+key, value)
}

func dedupe(ids []catalog.ResourceID) []catalog.ResourceID {
	seen := make(map[catalog.ResourceID]struct{}, len(ids))
	out := make([]catalog.ResourceID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
