package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/orchestrator"
	"github.com/irisorch/iris/internal/sessionstore"
)

// Handler holds the orchestrator handle shared by every route.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewHandler constructs a Handler over the given Orchestrator.
func NewHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *Handler {
	return &Handler{orch: orch, logger: log.WithFields(zap.String("component", "api"))}
}

// Tell handles POST /teams/:fromTeam/:toTeam/tell.
func (h *Handler) Tell(c *gin.Context) {
	var req TellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	opts := orchestrator.DefaultTellOptions()
	if req.Timeout != nil {
		opts.Timeout = *req.Timeout
	}
	if req.WaitForResponse != nil {
		opts.WaitForResponse = *req.WaitForResponse
	}
	if req.ClearCache != nil {
		opts.ClearCache = *req.ClearCache
	}

	result, err := h.orch.Tell(c.Request.Context(), c.Param("fromTeam"), c.Param("toTeam"), req.Message, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, TellResponse{
		Async:  result.Async,
		TaskID: result.TaskID,
		Busy:   result.Busy,
		Text:   result.Text,
	})
}

// Wake handles POST /teams/wake.
func (h *Handler) Wake(c *gin.Context) {
	var req WakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.orch.Wake(c.Request.Context(), req.Teams); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"woke": req.Teams})
}

// Sleep handles POST /teams/:fromTeam/sleep (the wildcard carries the team
// name being put to sleep, not a caller identity).
func (h *Handler) Sleep(c *gin.Context) {
	var req SleepRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.orch.Sleep(c.Param("fromTeam"), req.Force, req.ClearCache)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SleepResponse{AlreadyAsleep: result.AlreadyAsleep, LostMessages: result.LostMessages})
}

// Reboot handles POST /teams/:fromTeam/:toTeam/reboot.
func (h *Handler) Reboot(c *gin.Context) {
	session, err := h.orch.Reboot(c.Request.Context(), c.Param("fromTeam"), c.Param("toTeam"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, RebootResponse{SessionID: session.SessionID, MessageCount: session.MessageCount})
}

// Compact handles POST /teams/:fromTeam/:toTeam/compact.
func (h *Handler) Compact(c *gin.Context) {
	var req CompactRequest
	_ = c.ShouldBindJSON(&req)

	timeout := defaultCompactTimeout
	if req.TimeoutMs > 0 {
		timeout = msToDuration(req.TimeoutMs)
	}

	if err := h.orch.Compact(c.Request.Context(), c.Param("fromTeam"), c.Param("toTeam"), timeout, req.Retries); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compacted": true})
}

// Cancel handles POST /teams/:fromTeam/:toTeam/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	found, err := h.orch.Cancel(c.Param("fromTeam"), c.Param("toTeam"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, CancelResponse{Found: found})
}

// Teams handles GET /teams.
func (h *Handler) Teams(c *gin.Context) {
	statuses := h.orch.Teams()
	out := make([]TeamResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, TeamResponse{Name: s.Name, Description: s.Description, Color: s.Color, Awake: s.Awake})
	}
	c.JSON(http.StatusOK, gin.H{"teams": out})
}

// Sessions handles GET /sessions.
func (h *Handler) Sessions(c *gin.Context) {
	filters := sessionstore.Filters{
		FromTeam: c.Query("fromTeam"),
		ToTeam:   c.Query("toTeam"),
		Status:   sessionstore.Status(c.Query("status")),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filters.Limit = n
		}
	}

	sessions, err := h.orch.SessionStore().List(filters)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			SessionID:    s.SessionID,
			FromTeam:     s.FromTeam,
			ToTeam:       s.ToTeam,
			Status:       string(s.Status),
			CreatedAt:    s.CreatedAt,
			LastUsedAt:   s.LastUsedAt,
			MessageCount: s.MessageCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "total": len(out)})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	report, err := h.orch.Report()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		PoolSize:         report.PoolSize,
		QueueDepth:       report.QueueDepth,
		TotalSessions:    report.TotalSessions,
		ActiveSessions:   report.ActiveSessions,
		ArchivedSessions: report.ArchivedSessions,
		TotalMessages:    report.TotalMessages,
	})
}
