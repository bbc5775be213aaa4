package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lumenlabs/stellarb/internal/cache"
)

// CacheStats is the view of cache counters the status handler exposes.
type CacheStats interface {
	Stats() map[cache.Region]cache.RegionStats
}

// SubscriberCounter reports the current WebSocket subscriber count.
type SubscriberCounter interface {
	SubscriberCount() int
}

// StatusHandler serves operational counters: cache hit rates and subscriber
// totals.
type StatusHandler struct {
	stats     CacheStats
	hub       SubscriberCounter
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. hub may be nil when the
// broadcaster is disabled.
func NewStatusHandler(stats CacheStats, hub SubscriberCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		stats:     stats,
		hub:       hub,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// Status responds with cache counters, subscriber count, and uptime.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	subscribers := 0
	if h.hub != nil {
		subscribers = h.hub.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cache":          h.stats.Stats(),
		"subscribers":    subscribers,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
