// Package api exposes a single database handle over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dbhandle/internal/handle"
	"dbhandle/internal/middleware"
)

// maxBodyBytes caps statement request bodies.
const maxBodyBytes = 1 << 20

// Executor is the subset of *handle.Handle served over HTTP.
type Executor interface {
	FetchOne(ctx context.Context, query string, args ...any) (handle.Row, error)
	FetchAll(ctx context.Context, query string, args ...any) ([]handle.Row, error)
	Commit(ctx context.Context, query string, args ...any) (handle.ExecResult, error)
	Ping(ctx context.Context) error
}

// StatementRequest is the body accepted by every /v1 endpoint.
type StatementRequest struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

// Handler serves statement requests against one shared Executor.
type Handler struct {
	exec    Executor
	logger  *slog.Logger
	started time.Time
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(exec Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{exec: exec, logger: logger, started: time.Now()}
}

// FetchOne handles POST /v1/fetch-one.
func (h *Handler) FetchOne(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	row, err := h.exec.FetchOne(r.Context(), req.SQL, req.Args...)
	if err != nil {
		h.writeError(w, r, "fetch_one", err)
		return
	}
	h.logger.Info("fetch_one completed", "request_id", middleware.RequestIDFromContext(r.Context()), "found", row != nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"row":        row,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}

// FetchAll handles POST /v1/fetch-all.
func (h *Handler) FetchAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	rows, err := h.exec.FetchAll(r.Context(), req.SQL, req.Args...)
	if err != nil {
		h.writeError(w, r, "fetch_all", err)
		return
	}
	h.logger.Info("fetch_all completed", "request_id", middleware.RequestIDFromContext(r.Context()), "row_count", len(rows))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":       rows,
		"row_count":  len(rows),
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}

// Commit handles POST /v1/commit.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.exec.Commit(r.Context(), req.SQL, req.Args...)
	if err != nil {
		h.writeError(w, r, "commit", err)
		return
	}
	h.logger.Info("commit completed", "request_id", middleware.RequestIDFromContext(r.Context()), "rows_affected", res.RowsAffected)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         res.Status,
		"rows_affected":  res.RowsAffected,
		"last_insert_id": res.LastInsertID,
		"request_id":     middleware.RequestIDFromContext(r.Context()),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := h.exec.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (StatementRequest, bool) {
	var req StatementRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err == nil && len(body) > maxBodyBytes {
		err = fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if err == nil {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		err = dec.Decode(&req)
	}
	if err == nil {
		req.Args, err = normalizeArgs(req.Args)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":      "invalid request body: " + err.Error(),
			"code":       "PARSE_ERROR",
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		return req, false
	}
	return req, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := middleware.RequestIDFromContext(r.Context())
	status, code := httpStatusFromError(err)
	h.logger.Warn("statement failed", "request_id", requestID, "op", op, "error", err)
	writeJSON(w, status, map[string]interface{}{
		"error":      handle.Status(err),
		"code":       code,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
