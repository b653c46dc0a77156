package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vjranagit/timeseries/internal/config"
	"github.com/vjranagit/timeseries/internal/logging"
	"github.com/vjranagit/timeseries/pkg/api"
	"github.com/vjranagit/timeseries/pkg/storage"
)

const (
	version = "0.1.0"

	retentionInterval = time.Hour
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tsserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"storage_path", cfg.Storage.Path,
		"in_memory", cfg.Storage.InMemory,
		"retention_days", cfg.Storage.RetentionDays,
		"compression", cfg.Storage.Compression,
		"compression_level", cfg.Storage.CompressionLevel,
		"cache_capacity", cfg.Cache.Capacity)

	storageCfg := cfg.ToStorageConfig(logger)
	store, err := storage.NewStorage(storageCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	cached := storage.NewCachedStorage(store, cfg.Cache.Capacity, cfg.Cache.TTL)
	defer cached.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg.Server.ListenAddr, cfg.Server.Timeout, cached, logger)

	go enforceRetention(ctx, storageCfg, server, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.Load(path)
}

// enforceRetention trims expired points on every tick until ctx is done
func enforceRetention(ctx context.Context, cfg *storage.Config, server *api.Server, logger *logging.Logger) {
	if _, ok := cfg.RetentionCutoff(time.Now()); !ok {
		return
	}

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		cutoff, _ := cfg.RetentionCutoff(time.Now())
		if _, err := server.ApplyRetention(ctx, cutoff); err != nil && ctx.Err() == nil {
			logger.Error("retention failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
