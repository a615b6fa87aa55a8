package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"empresa-service/internal/metrics"
)

// SessionInspector lists live wizard sessions for staff tooling
type SessionInspector interface {
	GetAllSessionKeys(ctx context.Context) ([]string, error)
	GetStateTTL(ctx context.Context, sessionKey string) (time.Duration, error)
	GetLastHeartbeat(ctx context.Context, sessionKey string) (*time.Time, error)
}

// MetricsHandler exposes the wizard metrics store to staff tooling
type MetricsHandler struct {
	store    *metrics.Store
	sessions SessionInspector
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(store *metrics.Store, sessions SessionInspector) *MetricsHandler {
	return &MetricsHandler{store: store, sessions: sessions}
}

// Snapshot returns the full metrics view
// GET /internal/wizard/metrics
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// Reset zeroes the metrics store
// POST /internal/wizard/metrics/reset
func (h *MetricsHandler) Reset(c *gin.Context) {
	h.store.Reset()
	SuccessResponse(c, http.StatusOK, "Metrics store reset", nil)
}

// Sessions lists live wizard sessions with their remaining TTL and last
// heartbeat, straight from Redis
// GET /internal/wizard/sessions
func (h *MetricsHandler) Sessions(c *gin.Context) {
	ctx := c.Request.Context()

	keys, err := h.sessions.GetAllSessionKeys(ctx)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list wizard sessions", err)
		return
	}

	sessions := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		entry := gin.H{"session_key": key}
		if ttl, err := h.sessions.GetStateTTL(ctx, key); err == nil {
			entry["ttl_seconds"] = int64(ttl.Seconds())
		}
		if hb, err := h.sessions.GetLastHeartbeat(ctx, key); err == nil && hb != nil {
			entry["last_heartbeat"] = hb.UTC().Format(time.RFC3339)
		}
		sessions = append(sessions, entry)
	}

	SuccessResponse(c, http.StatusOK, "Live wizard sessions", gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
