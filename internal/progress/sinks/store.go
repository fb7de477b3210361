package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/progress"
)

// StatusWriter persists key/value progress.
type StatusWriter interface {
	Put(ctx context.Context, values map[string]int64) error
}

// StoreSink persists the latest value per key of each batch, so a batch of
// index updates costs a single write.
type StoreSink struct {
	repo   StatusWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo StatusWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes the collapsed batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.repo == nil || len(batch) == 0 {
		return nil
	}
	latest := progress.Latest(batch)
	if err := s.repo.Put(ctx, latest); err != nil {
		return fmt.Errorf("persist %d progress keys: %w", len(latest), err)
	}
	s.logger.Debug("progress persisted", zap.Int("keys", len(latest)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
