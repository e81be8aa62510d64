// Command server runs the Mermaid Studio HTTP API.
//
// main only assembles infrastructure: it reads the config, opens the
// database and picks a backend for each optional piece (Redis or in-memory
// collaboration state, local disk or MinIO files, Kafka or log-only share
// notifications, Docker rendering or none). Everything else is wired in
// internal/server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roaa-mamdouh/mermaid-studio/internal/auth"
	"github.com/roaa-mamdouh/mermaid-studio/internal/collab"
	"github.com/roaa-mamdouh/mermaid-studio/internal/config"
	"github.com/roaa-mamdouh/mermaid-studio/internal/notify"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render"
	"github.com/roaa-mamdouh/mermaid-studio/internal/render/docker"
	sqliteRepo "github.com/roaa-mamdouh/mermaid-studio/internal/repository/sqlite"
	"github.com/roaa-mamdouh/mermaid-studio/internal/server"
	"github.com/roaa-mamdouh/mermaid-studio/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := cfg.LogLevel() // validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// === Database ===
	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// === Collaboration state ===
	var store collab.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		store = collab.NewRedisStore(rdb)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, collaboration calls will fail until it is back",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		logger.Info("collaboration state in redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		store = collab.NewMemoryStore()
		logger.Info("collaboration state in memory")
	}

	// === File storage ===
	var files storage.FileStore
	switch cfg.Storage.Driver {
	case config.StorageMinIO:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		files, err = storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
		}, logger)
		cancel()
	default:
		files, err = storage.NewLocal(cfg.Storage.FilesDir)
	}
	if err != nil {
		return fmt.Errorf("opening file storage: %w", err)
	}

	// === Share notifications ===
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.ShareTopic, logger)
		defer kafka.Close()
		notifier = kafka
		logger.Info("share notifications on kafka", slog.String("topic", cfg.Kafka.ShareTopic))
	}

	// === Renderer ===
	// Optional: without it svg, png and pdf exports return the code for
	// client-side rendering.
	var renderer render.Renderer
	if cfg.Renderer.Enabled {
		rcfg := docker.DefaultConfig()
		if cfg.Renderer.Image != "" {
			rcfg.Image = cfg.Renderer.Image
		}
		r, err := docker.New(rcfg, logger)
		if err != nil {
			logger.Warn("docker renderer unavailable, exports fall back to client-side rendering",
				slog.String("error", err.Error()),
			)
		} else {
			defer r.Close()
			renderer = r
		}
	}

	// === Auth ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	}

	srv, err := server.New(cfg, server.Deps{
		DB:       db,
		Collab:   store,
		Files:    files,
		Notifier: notifier,
		Tokens:   tokens,
		Renderer: renderer,
		GitHub:   github,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT or SIGTERM.
	return srv.Start()
}
