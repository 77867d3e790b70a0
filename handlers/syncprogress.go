package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/lorekeep/lorekeep/internal/syncprogress"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/metrics"
	"github.com/lorekeep/lorekeep/pkg/middleware"
)

const keepAliveInterval = 30 * time.Second

// ArchiveLookup fetches an archived snapshot for a sync the tracker no
// longer holds in memory.
type ArchiveLookup func(ctx context.Context, syncID string) (*syncprogress.Progress, error)

// SyncProgressHandler serves the sync progress endpoints under
// /api/sync-progress.
type SyncProgressHandler struct {
	tracker *syncprogress.Tracker
	archive ArchiveLookup
}

// NewSyncProgressHandler wires the tracker and an optional archive lookup.
// Pass nil for archive to serve in-memory syncs only.
func NewSyncProgressHandler(t *syncprogress.Tracker, archive ArchiveLookup) *SyncProgressHandler {
	return &SyncProgressHandler{tracker: t, archive: archive}
}

// Register mounts the routes. The stream endpoint authenticates via the
// ?token= query parameter because EventSource consumers cannot set headers;
// everything else takes the regular bearer middleware.
func (h *SyncProgressHandler) Register(r *gin.Engine, auth, queryAuth gin.HandlerFunc) {
	grp := r.Group("/api/sync-progress")
	grp.GET("/:syncId/stream", queryAuth, h.Stream)
	grp.GET("/:syncId", auth, h.Get)
	grp.POST("/:syncId/notify", auth, h.Notify)
	grp.POST("/start", auth, h.Start)
}

// Stream is the SSE endpoint. It acknowledges the connection, replays the
// current snapshot, forwards tracker events, sends keep-alive comments every
// 30 seconds, and closes after a terminal event.
func (h *SyncProgressHandler) Stream(c *gin.Context) {
	syncID := c.Param("syncId")

	ch, unsubscribe := h.tracker.Subscribe(syncID)
	defer unsubscribe()

	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// liveness acknowledgement before any snapshot
	sse.Encode(c.Writer, sse.Event{Event: "connected", Data: gin.H{"sync_id": syncID}})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			sse.Encode(c.Writer, sse.Event{Event: ev.Type, Data: ev.Progress})
			c.Writer.Flush()
			if ev.Type == syncprogress.EventComplete || ev.Type == syncprogress.EventError {
				logger.Debugf("sync %s finished, closing stream", syncID)
				return
			}
		case <-keepAlive.C:
			c.Writer.WriteString(": keep-alive\n\n")
			c.Writer.Flush()
		}
	}
}

// Get returns the current snapshot for a sync. Falls back to the archive
// for finished syncs that have already been cleaned out of the tracker.
func (h *SyncProgressHandler) Get(c *gin.Context) {
	syncID := c.Param("syncId")
	p := h.tracker.GetProgress(syncID)
	if p == nil && h.archive != nil {
		archived, err := h.archive(c.Request.Context(), syncID)
		if err != nil {
			logger.Warnf("archive lookup for sync %s failed: %v", syncID, err)
		}
		p = archived
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Sync not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "progress": p})
}

// Notify registers the caller for a completion email. Fires immediately when
// the sync already finished.
func (h *SyncProgressHandler) Notify(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	syncID := c.Param("syncId")
	if h.tracker.GetProgress(syncID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Sync not found"})
		return
	}
	h.tracker.RequestNotification(syncID, claims.Email)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type startSyncRequest struct {
	ConnectorType string `json:"connector_type" binding:"required"`
}

// Start begins tracking a new sync for the caller's tenant and returns its
// id. Connector workers drive the tracker from there.
func (h *SyncProgressHandler) Start(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req startSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "connector_type is required"})
		return
	}
	syncID := h.tracker.StartSync(claims.TenantID, claims.UserID, req.ConnectorType)
	c.JSON(http.StatusCreated, gin.H{"success": true, "sync_id": syncID})
}
