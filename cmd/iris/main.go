// Command iris runs the multi-agent orchestrator: it loads the team
// configuration, opens the session store, and serves the HTTP surface that
// mediates tell/wake/sleep/reboot/compact/cancel requests against the
// agent subprocesses it manages.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/api"
	"github.com/irisorch/iris/internal/cache"
	"github.com/irisorch/iris/internal/config"
	"github.com/irisorch/iris/internal/eventbus"
	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/orchestrator"
	"github.com/irisorch/iris/internal/pool"
	"github.com/irisorch/iris/internal/sessionmgr"
	"github.com/irisorch/iris/internal/sessionstore"
	"github.com/irisorch/iris/internal/tracing"
)

const asyncQueueSoftLimit = 256

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting iris orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sessionstore.Open(filepath.Join(config.Home(), "session-manager.db"))
	if err != nil {
		log.Fatal("failed to open session store", zap.Error(err))
	}
	defer store.Close()

	events := eventbus.Connect(os.Getenv("IRIS_NATS_URL"), log)
	defer events.Close()

	sessions := sessionmgr.New(store, cfg.Teams, events, log)
	defer sessions.Close()

	if err := sessions.Initialize(ctx); err != nil {
		log.Fatal("failed to initialize sessions for configured teams", zap.Error(err))
	}

	cacheMgr := cache.NewManager()
	defer cacheMgr.DestroyAll()

	procPool := pool.New(cfg.Teams, cfg.Settings.MaxProcesses, cacheMgr, events, log)
	procPool.StartHealthCheck(time.Duration(cfg.Settings.HealthCheckInterval) * time.Millisecond)
	defer procPool.TerminateAll()

	orch := orchestrator.New(cfg.Teams, sessions, procPool, cacheMgr, events, asyncQueueSoftLimit, log)
	defer orch.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.OtelTracing("iris-http"))
	router.Use(api.RequestLogger(log))
	router.Use(api.Recovery(log))
	router.Use(api.CORS())
	router.Use(api.RateLimit(50))

	v1 := router.Group("/api/v1")
	v1.Use(api.ErrorHandler(log))
	api.SetupRoutes(v1, orch, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := cfg.Settings.HTTPPort
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down iris orchestrator")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error during http server shutdown", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("error flushing trace exporter", zap.Error(err))
	}
}
