package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/orchestrator"
)

const defaultCompactTimeout = 30 * time.Second

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// SetupRoutes mounts the orchestrator's HTTP surface under the given
// router group, mirroring the teacher's route-group-per-resource layout.
func SetupRoutes(router *gin.RouterGroup, orch *orchestrator.Orchestrator, log *logger.Logger) {
	h := NewHandler(orch, log)
	sh := NewStreamHandler(orch, log)

	router.POST("/teams/wake", h.Wake)
	router.GET("/teams", h.Teams)
	// Shares the ":fromTeam" wildcard name with the pair group below so gin's
	// router tree doesn't see two different parameter names at the same
	// position (it would otherwise panic at startup); the parameter holds
	// the team name being put to sleep.
	router.POST("/teams/:fromTeam/sleep", h.Sleep)

	pair := router.Group("/teams/:fromTeam/:toTeam")
	{
		pair.POST("/tell", h.Tell)
		pair.POST("/reboot", h.Reboot)
		pair.POST("/compact", h.Compact)
		pair.POST("/cancel", h.Cancel)
		pair.GET("/stream", sh.Stream)
	}

	router.GET("/sessions", h.Sessions)
	router.GET("/health", h.Health)
}
