// Package handlers exposes the admin HTTP surface.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/database"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
	"hotel-rate-monitor/internal/provider"
	"hotel-rate-monitor/internal/ratelimit"
	"hotel-rate-monitor/internal/reconcile"
	"hotel-rate-monitor/internal/rooms"
	"hotel-rate-monitor/internal/scanner"
	"hotel-rate-monitor/internal/snapshot"
)

// SessionReader reads sweep and merge records
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*models.ScanSession, error)
	ListSessions(ctx context.Context, limit int) ([]models.ScanSession, error)
	ListMerges(ctx context.Context, ownerID string, limit int) ([]models.MergeLog, error)
}

// SnapshotReader reads captured prices
type SnapshotReader interface {
	History(ctx context.Context, propertyID string, limit int) ([]models.PriceSnapshot, error)
	Latest(ctx context.Context, propertyID string) (*models.PriceSnapshot, error)
	Changes(ctx context.Context, propertyID string, limit int) ([]models.PriceChange, error)
}

// PriceSelector picks a room price from a snapshot
type PriceSelector interface {
	Select(ctx context.Context, snap *models.PriceSnapshot, requested string) (rooms.Selection, error)
}

// Sweeper starts background sweeps. StartSweep fails with
// scanner.ErrSweepInProgress while another sweep runs.
type Sweeper interface {
	StartSweep(ctx context.Context, scope scanner.Scope, done func(*models.ScanSession, error)) error
	Running() bool
}

// Reconciler merges duplicate properties
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (*reconcile.MergeReport, error)
	Plan(ctx context.Context, ownerID string) (*reconcile.MergeReport, error)
}

// AdminDeps are the services behind the admin endpoints
type AdminDeps struct {
	Sessions   SessionReader
	Snapshots  SnapshotReader
	Selector   PriceSelector
	Sweeper    Sweeper
	Reconciler Reconciler
	Limiter    *ratelimit.WindowLimiter
	Breaker    *provider.CircuitBreaker
	Permits    *ratelimit.Permits
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	deps    AdminDeps
	baseCtx context.Context
	log     *logrus.Entry
}

// NewAdminHandler creates a new admin handler. Background sweeps started over
// HTTP are canceled when baseCtx is.
func NewAdminHandler(baseCtx context.Context, deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		deps:    deps,
		baseCtx: baseCtx,
		log:     logging.Component("admin"),
	}
}

// RegisterRoutes mounts the admin endpoints on r
func (h *AdminHandler) RegisterRoutes(r gin.IRouter) {
	admin := r.Group("/api/admin")
	admin.POST("/sweeps", h.TriggerSweep)
	admin.GET("/sweeps", h.ListSweeps)
	admin.GET("/sweeps/:id", h.GetSweep)
	admin.POST("/reconcile", h.RunReconcile)
	admin.GET("/merges", h.GetMergeLogs)
	admin.GET("/properties/:id/history", h.GetPropertyHistory)
	admin.GET("/properties/:id/changes", h.GetPropertyChanges)
	admin.GET("/properties/:id/price", h.GetRoomPrice)
	admin.GET("/ratelimit/stats", h.GetRateLimitStats)
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// TriggerSweep starts a sweep in the background
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	var req struct {
		OwnerID string `json:"owner_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.log.WithField("owner_id", req.OwnerID).Info("Manual sweep trigger requested")

	err := h.deps.Sweeper.StartSweep(h.baseCtx, scanner.Scope{OwnerID: req.OwnerID}, func(session *models.ScanSession, err error) {
		if err != nil {
			h.log.WithError(err).Error("Manual sweep failed")
			return
		}
		h.log.WithField("session_id", session.ID).Infof("Manual sweep finished: %s", session.Status)
	})
	if errors.Is(err, scanner.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Sweep started",
		"status":  "running",
	})
}

// ListSweeps returns recent sessions without outcomes
func (h *AdminHandler) ListSweeps(c *gin.Context) {
	sessions, err := h.deps.Sessions.ListSessions(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
		"running":  h.deps.Sweeper.Running(),
	})
}

// GetSweep returns one session with its per-property outcomes
func (h *AdminHandler) GetSweep(c *gin.Context) {
	session, err := h.deps.Sessions.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// RunReconcile merges duplicate properties, or plans the merge when dry_run is set
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	var req struct {
		OwnerID string `json:"owner_id"`
		DryRun  bool   `json:"dry_run"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.log.WithFields(logrus.Fields{"owner_id": req.OwnerID, "dry_run": req.DryRun}).Info("Running reconcile")

	run := h.deps.Reconciler.Reconcile
	if req.DryRun {
		run = h.deps.Reconciler.Plan
	}
	report, err := run(c.Request.Context(), req.OwnerID)
	if err != nil {
		h.log.WithError(err).Error("Reconcile failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetMergeLogs returns recent merge audit entries
func (h *AdminHandler) GetMergeLogs(c *gin.Context) {
	logs, err := h.deps.Sessions.ListMerges(c.Request.Context(), c.Query("owner_id"), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetPropertyHistory returns snapshot history for a property
func (h *AdminHandler) GetPropertyHistory(c *gin.Context) {
	propertyID := c.Param("id")
	snapshots, err := h.deps.Snapshots.History(c.Request.Context(), propertyID, queryLimit(c, 30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"snapshots":   snapshots,
		"count":       len(snapshots),
	})
}

// GetPropertyChanges returns recorded price movements for a property
func (h *AdminHandler) GetPropertyChanges(c *gin.Context) {
	propertyID := c.Param("id")
	changes, err := h.deps.Snapshots.Changes(c.Request.Context(), propertyID, queryLimit(c, 30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"changes":     changes,
		"count":       len(changes),
	})
}

// GetRoomPrice answers "what does category X cost" from the latest snapshot
func (h *AdminHandler) GetRoomPrice(c *gin.Context) {
	propertyID := c.Param("id")
	category := c.Query("category")

	snap, err := h.deps.Snapshots.Latest(c.Request.Context(), propertyID)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for property"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sel, err := h.deps.Selector.Select(c.Request.Context(), snap, category)
	if errors.Is(err, rooms.ErrNoMatch) {
		c.JSON(http.StatusOK, gin.H{
			"property_id": propertyID,
			"category":    category,
			"captured_at": snap.CapturedAt,
			"status":      "unknown",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": propertyID,
		"category":    category,
		"captured_at": snap.CapturedAt,
		"status":      "ok",
		"selection":   sel,
	})
}

// GetRateLimitStats returns provider budget, breaker and concurrency state
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	stats := gin.H{
		"rate_limit":      h.deps.Limiter.Stats(),
		"circuit_breaker": h.deps.Breaker.GetStatus(),
	}
	if p := h.deps.Permits; p != nil {
		stats["permits"] = gin.H{
			"size":      p.Size(),
			"in_flight": p.InFlight(),
			"peak":      p.Peak(),
		}
	}
	c.JSON(http.StatusOK, stats)
}
