package api

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultStatusPrefix = "existence."
	progressTimeout     = 3 * time.Second
)

var validPrefix = regexp.MustCompile(`^[a-zA-Z0-9_.]*$`)

// StatusReader loads persisted progress keys.
type StatusReader interface {
	All(ctx context.Context, prefix string) (map[string]int64, error)
}

// ProgressHandler exposes the persisted progress keys of the latest sweep.
type ProgressHandler struct {
	repo    StatusReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo StatusReader, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// Status handles GET /v1/sweep/status?prefix=. It returns {"prefix": ...,
// "values": {...}} on success, 400 for an invalid prefix, 503 when no
// repository is configured, or 500 if the repository call fails.
func (h *ProgressHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "status repository unavailable")
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	if prefix == "" {
		prefix = defaultStatusPrefix
	}
	if !validPrefix.MatchString(prefix) {
		writeError(w, http.StatusBadRequest, "invalid prefix")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	values, err := h.repo.All(ctx, prefix)
	if err != nil {
		h.logger.Error("load status failed", zap.String("prefix", prefix), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	if values == nil {
		values = map[string]int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prefix": prefix,
		"values": values,
	})
}
