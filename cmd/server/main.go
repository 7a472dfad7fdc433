package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/maisondore/newsletter/internal/api"
	"github.com/maisondore/newsletter/internal/backup"
	"github.com/maisondore/newsletter/internal/cache"
	"github.com/maisondore/newsletter/internal/config"
	"github.com/maisondore/newsletter/internal/mailer"
	"github.com/maisondore/newsletter/internal/pkg/logger"
	"github.com/maisondore/newsletter/internal/reconcile"
	"github.com/maisondore/newsletter/internal/repository/postgres"
	"github.com/maisondore/newsletter/internal/service/subscription"
	"github.com/maisondore/newsletter/internal/token"
	"github.com/maisondore/newsletter/internal/unsubscribe"
)

// checkPortAvailable verifies the target port is not already in use, so a
// stale process does not silently shadow this one.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	ln.Close()
	return nil
}

func openPostgres(cfg config.DatabaseConfig) *sql.DB {
	if cfg.URL == "" {
		logger.Warn("main: no database configured, running on file and memory backends only")
		return nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		logger.Error("main: invalid database URL", "error", err)
		return nil
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// Keep the handle: the store may come back, and every adapter
		// already degrades on per-call failure.
		logger.Warn("main: database unreachable at startup", "error", err)
	}
	return db
}

func openRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("main: redis unreachable, falling back to in-process cache", "error", err)
		client.Close()
		return nil
	}
	return client
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("main: failed to load config", "error", err)
		os.Exit(1)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		logger.Error("main: pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := openPostgres(cfg.Database)
	redisClient := openRedis(cfg.Redis)

	storeTimeout := cfg.Newsletter.StoreTimeout()

	// Backup chain: postgres first, then the append-only file, then memory.
	backends := []backup.Backend{}
	if db != nil {
		backends = append(backends, postgres.NewBackupRepo(db))
	}
	if cfg.Newsletter.BackupFilePath != "" {
		fb, err := backup.NewFileBackend(cfg.Newsletter.BackupFilePath)
		if err != nil {
			logger.Warn("main: file backup backend unavailable", "path", cfg.Newsletter.BackupFilePath, "error", err)
		} else {
			backends = append(backends, fb)
		}
	}
	backends = append(backends, backup.NewMemoryBackend())
	backupLog := backup.NewLog(storeTimeout, backends...)

	var tokenRepo token.Repository
	var primary *postgres.SubscriberRepo
	var unsubRepo unsubscribe.Repository
	if db != nil {
		tokenRepo = postgres.NewTokenRepo(db)
		primary = postgres.NewSubscriberRepo(db)
		unsubRepo = postgres.NewUnsubscribeRepo(db)
	}

	tokens := token.NewService(tokenRepo, cfg.Newsletter.TokenTTL())
	tokens.StartSweeper(ctx, cfg.Newsletter.SweepInterval())

	registry := unsubscribe.NewRegistry(unsubRepo, storeTimeout)
	registry.StartSync(ctx, cfg.Newsletter.SyncInterval())

	var readCache cache.Cache
	if redisClient != nil {
		readCache = cache.NewRedisCache(redisClient)
	} else {
		readCache = cache.NewMemoryCache()
	}

	var sender mailer.Sender
	if cfg.SES.AccessKey != "" {
		s, err := mailer.NewSESSender(ctx, cfg.SES, cfg.Newsletter.BrandName)
		if err != nil {
			logger.Error("main: SES init failed, confirmation emails disabled", "error", err)
		} else {
			sender = s
		}
	} else {
		logger.Warn("main: no SES credentials, confirmation emails disabled")
	}

	var primaryStore subscription.PrimaryStore
	var primarySource reconcile.PrimarySource
	if primary != nil {
		primaryStore = primary
		primarySource = primary
	}

	svc := subscription.NewService(primaryStore, backupLog, tokens, registry,
		readCache, sender, cfg.Newsletter.ConfirmBaseURL)
	agg := reconcile.NewAggregator(primarySource, backupLog, registry,
		readCache, cfg.Newsletter.CacheTTL(), storeTimeout)

	health := api.NewHealthChecker(db, redisClient, tokens, registry)
	handlers := api.NewHandlers(svc, agg, health, cfg.Server.Production(), cfg.Newsletter.RequestTimeout())
	server := api.NewServer(handlers)

	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("main: newsletter server listening", "addr", addr,
			"environment", cfg.Server.Environment)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("main: shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("main: server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: shutdown error", "error", err)
	}
	cancel()

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("main: stopped")
}
