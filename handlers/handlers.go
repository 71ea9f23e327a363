// Package handlers exposes the HTTP surface: workflow triggers, status
// queries, cancellation, and read endpoints for detections and the
// leaderboard.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/middleware"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
	"github.com/aksrustagi/PULL-backend-sub010/workflow"
)

// Handler handles HTTP requests.
type Handler struct {
	cfg       *config.Config
	store     storage.DataStore
	registry  *workflow.Registry
	copyTrade *workflow.CopyTradeWorkflow
	fraud     *workflow.FraudWorkflow
	fanout    *workflow.FanoutWorkflow
	stats     *workflow.StatsWorkflow
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, store storage.DataStore, registry *workflow.Registry, copyTrade *workflow.CopyTradeWorkflow, fraud *workflow.FraudWorkflow, fanout *workflow.FanoutWorkflow, stats *workflow.StatsWorkflow) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		copyTrade: copyTrade,
		fraud:     fraud,
		fanout:    fanout,
		stats:     stats,
	}
}

// Register wires all routes onto the router.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api", middleware.BasicAuth(), middleware.ValidateQueryParams())
	{
		api.GET("/users/:id", h.GetUser)

		api.POST("/copy-trades/propagate", h.PropagateCopyTrade)
		api.GET("/copy-trades/:orderId", h.GetCopyTradeOutcomes)

		api.POST("/fraud/scan", h.StartFraudScan)
		api.GET("/fraud/detections", h.GetFraudDetections)

		api.POST("/activities", h.FanOutActivity)
		api.POST("/activities/leaderboard-rank", h.AnnounceLeaderboardRank)

		api.POST("/stats/recompute", h.RecomputeStats)
		api.GET("/leaderboard", h.GetLeaderboard)

		api.GET("/workflows", h.ListWorkflows)
		api.GET("/workflows/:runId", middleware.ValidateRunID(), h.GetWorkflowStatus)
		api.POST("/workflows/:runId/cancel", middleware.ValidateRunID(), h.CancelWorkflow)
	}
	r.GET("/ws/workflows/:runId", h.StreamWorkflowStatus)
	r.GET("/health", h.Health)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetUser returns one account profile.
func (h *Handler) GetUser(c *gin.Context) {
	id := c.Param("id")
	if !middleware.IsValidIdentifier(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// PropagateCopyTrade starts a propagation run for one leader trade.
func (h *Handler) PropagateCopyTrade(c *gin.Context) {
	var trade models.LeaderTrade
	if err := c.ShouldBindJSON(&trade); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid leader trade payload"})
		return
	}
	if trade.TraderID == "" || trade.OriginalOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trader_id and original_order_id required"})
		return
	}

	runID := "copy-" + trade.OriginalOrderID
	go func() {
		_, _ = h.copyTrade.Propagate(context.Background(), runID, trade)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetCopyTradeOutcomes returns the per-copier records for one leader order.
func (h *Handler) GetCopyTradeOutcomes(c *gin.Context) {
	orderID := c.Param("orderId")
	records, err := h.store.ListCopyTradeRecords(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load copy trade records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"original_order_id": orderID,
		"records":           records,
		"count":             len(records),
	})
}

// StartFraudScan starts a surveillance scan, population-wide or targeted.
func (h *Handler) StartFraudScan(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	_ = c.ShouldBindJSON(&req)

	runID := "fraud-" + uuid.New().String()
	go func() {
		_, _ = h.fraud.Scan(context.Background(), runID, req.UserID)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetFraudDetections lists recorded findings for a user.
func (h *Handler) GetFraudDetections(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	detections, err := h.store.ListFraudDetections(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detections": detections,
		"count":      len(detections),
	})
}

// FanOutActivity starts a fan-out run for one social activity.
func (h *Handler) FanOutActivity(c *gin.Context) {
	var activity models.SocialActivity
	if err := c.ShouldBindJSON(&activity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activity payload"})
		return
	}
	if activity.ActorID == "" || activity.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id and type required"})
		return
	}

	runID := "fanout-" + uuid.New().String()
	go func() {
		_, _ = h.fanout.FanOut(context.Background(), runID, activity)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// AnnounceLeaderboardRank fans out a rank change. Suppressed movements still
// start a run that persists the activity without distributing it.
func (h *Handler) AnnounceLeaderboardRank(c *gin.Context) {
	var req struct {
		UserID       string `json:"user_id"`
		Rank         int    `json:"rank"`
		PreviousRank int    `json:"previous_rank"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, rank, previous_rank required"})
		return
	}

	suppressed := workflow.SuppressRankFanout(req.Rank, req.PreviousRank, h.cfg.Fanout.RankCutoff, h.cfg.Fanout.RankMinDelta)

	runID := "fanout-" + uuid.New().String()
	go func() {
		_, _ = h.fanout.AnnounceLeaderboardRank(context.Background(), runID, req.UserID, req.Rank, req.PreviousRank)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "suppressed": suppressed})
}

// RecomputeStats starts a stats refresh, population-wide or targeted.
func (h *Handler) RecomputeStats(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	_ = c.ShouldBindJSON(&req)

	runID := "stats-" + uuid.New().String()
	go func() {
		_, _ = h.stats.Recompute(context.Background(), runID, req.UserID)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetLeaderboard returns the current ranked traders.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.store.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"leaderboard": entries,
		"count":       len(entries),
	})
}

// ListWorkflows lists the in-flight run IDs.
func (h *Handler) ListWorkflows(c *gin.Context) {
	runs := h.registry.ActiveRuns()
	c.JSON(http.StatusOK, gin.H{"active_runs": runs, "count": len(runs)})
}

// GetWorkflowStatus returns the live (or last persisted) snapshot for a run.
func (h *Handler) GetWorkflowStatus(c *gin.Context) {
	runID := c.Param("runId")
	data, err := h.registry.Status(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workflow status"})
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// CancelWorkflow delivers a cancellation signal. Only copy-trade runs act on
// it; the scheduled workflows always run to completion.
func (h *Handler) CancelWorkflow(c *gin.Context) {
	runID := c.Param("runId")
	if !h.registry.Cancel(runID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not active"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "cancelling": true})
}
