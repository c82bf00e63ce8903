// Package main is the entry point for the tablequery API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablequery/internal/domain/auth"
	v1 "tablequery/internal/infrastructure/http/v1"
	"tablequery/internal/infrastructure/storage/postgres"
	"tablequery/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
		LogArgs:     getEnv("LOG_SQL_ARGS", "false") == "true",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer stop()
	log.Info("starting tablequery server")

	// --- Schema metadata ---
	registry, watcher, err := setupMetadata(ctx, log,
		mustEnv("SCHEMA_PATH"),
		getEnv("SCHEMA_WATCH", "true") == "true",
	)
	if err != nil {
		log.Fatalw("failed to load schema", "error", err)
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 25); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = getEnvDuration("QUERY_TIMEOUT", txOpts.StatementTimeout)
	repo := postgres.NewTableRepo(postgres.NewTxManager(pool, txOpts))

	// --- Router ---
	location, err := time.LoadLocation(getEnv("SEARCH_TIMEZONE", "Local"))
	if err != nil {
		log.Fatalw("invalid SEARCH_TIMEZONE", "error", err)
	}

	routerCfg := v1.RouterConfig{
		Registry: registry,
		Repo:     repo,
		DB:       repo,
		Logger:   log,
		Location: location,
	}

	// Bearer auth is optional
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		routerCfg.JWTValidator = auth.NewJWTService(auth.DefaultJWTConfig(secret))
		log.Info("bearer authentication enabled")
	} else {
		log.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: txOpts.StatementTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pool.LogStats(ctx)
			}
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stop()

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
