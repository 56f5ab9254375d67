// Package handler exposes the analyzer over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/events"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/history"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/logger"
)

// maxRequestBody bounds analyze request bodies.
const maxRequestBody = 1 << 20

// StatsSource reports aggregated analysis statistics.
type StatsSource interface {
	Stats() events.Stats
}

// SnapshotLister returns persisted stats snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]events.Snapshot, error)
}

type Handler struct {
	analyzer  *analyzer.Analyzer
	history   history.Store
	stats     StatsSource
	snapshots SnapshotLister
	logger    *slog.Logger
}

// New builds a Handler. stats may be nil when event aggregation is off.
func New(a *analyzer.Analyzer, store history.Store, stats StatsSource) *Handler {
	return &Handler{
		analyzer: a,
		history:  store,
		stats:    stats,
		logger:   slog.Default().With("component", "analyzer-handler"),
	}
}

// WithSnapshots enables the stats snapshot history endpoint.
func (h *Handler) WithSnapshots(s SnapshotLister) *Handler {
	h.snapshots = s
	return h
}

// AnalyzeRequest carries the query either as text or as a JSON tree.
type AnalyzeRequest struct {
	Platform string          `json:"platform"`
	Query    string          `json:"query,omitempty"`
	Tree     json.RawMessage `json:"tree,omitempty"`
}

func (req AnalyzeRequest) root() (*query.Node, error) {
	switch {
	case len(req.Tree) > 0 && req.Query != "":
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "set either query or tree, not both")
	case len(req.Tree) > 0:
		return query.DecodeJSON(req.Tree)
	case req.Query != "":
		return query.Parse(req.Query)
	default:
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query or tree is required")
	}
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req AnalyzeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Platform == "" {
		h.writeError(w, http.StatusBadRequest, "platform is required")
		return
	}
	root, err := req.root()
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}

	res, err := h.analyzer.Analyze(ctx, root, req.Platform)
	if err != nil {
		log.Warn("analysis failed", "platform", req.Platform, "error", err)
		h.writeAppError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	opts := history.ListOptions{Platform: r.URL.Query().Get("platform")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	list, err := h.history.List(r.Context(), opts)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"analyses": list, "count": len(list)})
}

func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Platforms(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"platforms": h.analyzer.Registry().Platforms()})
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	y, err := strconv.Atoi(r.URL.Query().Get("yield"))
	if err != nil || y < 0 {
		h.writeError(w, http.StatusBadRequest, "yield must be a non-negative integer")
		return
	}
	th := h.analyzer.Thresholds()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"yield":      y,
		"range":      th.Classify(y),
		"thresholds": th,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) StatsSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	limit := 24
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	list, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": list, "count": len(list)})
}

// CacheInvalidate drops cached platform results, optionally for one
// platform given by the platform query parameter.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	n, err := h.analyzer.Registry().Invalidate(r.Context(), platform)
	if err != nil {
		h.logger.Error("cache invalidation failed", "platform", platform, "error", err)
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err onto a status code. Messages of internal errors are
// not echoed to the client.
func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	switch status {
	case http.StatusGatewayTimeout:
		msg = "analysis timed out"
	case http.StatusInternalServerError:
		msg = "internal error"
		logger.FromContext(ctx).Error("request failed", "error", err)
	}
	h.writeError(w, status, msg)
}
