package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"agriagent/apps/backend/internal/config"
	"agriagent/apps/backend/internal/db"
	"agriagent/apps/backend/internal/providers"
	"agriagent/apps/backend/internal/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()

	var runLog server.RunLogger
	var pool *pgxpool.Pool
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		var err error
		pool, err = db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connect failed: %v", err)
		}
		defer pool.Close()

		if err := server.EnsureRunLogSchema(ctx, pool); err != nil {
			log.Fatalf("run log schema setup failed: %v", err)
		}
		if err := server.ValidateRuntimeSchema(ctx, pool); err != nil {
			log.Fatalf("database schema mismatch: %v", err)
		}
		runLog = server.NewRunLogStore(pool)
	} else {
		log.Printf("DATABASE_URL not set; chat run log disabled")
	}

	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		rdb, err = db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			// Lookups still work uncached.
			log.Printf("redis unavailable; lookup cache disabled: %v", err)
		} else {
			defer rdb.Close()
		}
	}

	app := server.New(cfg, runLog)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("agriagent api listening on http://localhost:%s", cfg.AppPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	pipeline, err := providers.BuildPipeline(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("chat pipeline setup failed: %v", err)
	}
	app.SetPipeline(pipeline)
	log.Printf("chat pipeline ready mock_models=%t lookup_cache=%t run_log=%t", cfg.UseMockModels, rdb != nil, runLog != nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	app.WaitRunLogs()
}
