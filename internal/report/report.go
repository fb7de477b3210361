// Package report archives finished sweep summaries and announces them.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/existence"
)

// EventSweepFinished is the event name attached to published notifications.
const EventSweepFinished = "existence.sweep.finished"

const contentType = "application/json"

// BlobStore saves report bodies.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces an archived report.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// Hasher digests the report body.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config controls where reports are written.
type Config struct {
	Prefix string
}

// Report is the archived form of a sweep summary.
type Report struct {
	existence.Summary
	Message         string  `json:"message"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Notification is the compact message published after archiving.
type Notification struct {
	RunID    string `json:"run_id"`
	URI      string `json:"uri"`
	Digest   string `json:"digest"`
	Total    int    `json:"total"`
	Suspects int    `json:"suspects"`
	Message  string `json:"message"`
}

// Archiver writes reports to a blob store and publishes notifications.
type Archiver struct {
	cfg       Config
	blobs     BlobStore
	publisher Publisher
	hasher    Hasher
	logger    *zap.Logger
}

// New constructs an Archiver. The publisher and hasher may be nil.
func New(cfg Config, blobs BlobStore, publisher Publisher, hasher Hasher, logger *zap.Logger) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("report blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		cfg:       cfg,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		logger:    logger.Named("report"),
	}, nil
}

// Build converts a summary into its archived form.
func Build(summary existence.Summary) Report {
	r := Report{Summary: summary, Message: summary.Message()}
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		r.DurationSeconds = summary.FinishedAt.Sub(summary.StartedAt).Seconds()
	}
	return r
}

// ObjectPath returns the blob path for a run: <prefix>/runs/<date>/<run id>.json.
func (a *Archiver) ObjectPath(summary existence.Summary) string {
	date := summary.StartedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}
	name := fmt.Sprintf("runs/%s/%s.json", date.UTC().Format("2006-01-02"), summary.RunID)
	prefix := strings.Trim(a.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Archive writes the report and, when a publisher is configured, announces it.
func (a *Archiver) Archive(ctx context.Context, summary existence.Summary) (Notification, error) {
	if summary.RunID == "" {
		return Notification{}, fmt.Errorf("summary has no run id")
	}
	body, err := json.MarshalIndent(Build(summary), "", "  ")
	if err != nil {
		return Notification{}, fmt.Errorf("marshal report: %w", err)
	}

	objectPath := a.ObjectPath(summary)
	uri, err := a.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		return Notification{}, fmt.Errorf("store report %s: %w", objectPath, err)
	}

	note := Notification{
		RunID:    summary.RunID,
		URI:      uri,
		Total:    summary.Total,
		Suspects: summary.Suspects,
		Message:  summary.Message(),
	}
	if a.hasher != nil {
		digest, err := a.hasher.Hash(body)
		if err != nil {
			return note, fmt.Errorf("hash report: %w", err)
		}
		note.Digest = digest
	}
	a.logger.Info("report archived",
		zap.String("run_id", note.RunID),
		zap.String("uri", uri),
		zap.Int("suspects", note.Suspects),
	)

	if a.publisher == nil {
		return note, nil
	}
	msgID, err := a.publisher.Publish(ctx, EventSweepFinished, note)
	if err != nil {
		return note, fmt.Errorf("publish report notification: %w", err)
	}
	a.logger.Debug("report notification published", zap.String("message_id", msgID))
	return note, nil
}
