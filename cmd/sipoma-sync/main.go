package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sipoma-sync/internal/config"
	"sipoma-sync/internal/consumer"
	"sipoma-sync/internal/editor"
	"sipoma-sync/internal/logger"
	"sipoma-sync/internal/service"
	"sipoma-sync/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting sipoma-sync service")

	var kv store.KV
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("Redis unavailable, falling back to in-process cache", zap.Error(err))
			kv = store.NewMemoryKV()
		} else {
			kv = store.NewRedisKV(redisClient)
			defer redisClient.Close()
		}
	} else {
		kv = store.NewMemoryKV()
	}

	client := store.NewClient(store.ClientConfig{
		BaseURL:    cfg.Store.BaseURL,
		Token:      cfg.Store.Token,
		Timeout:    time.Duration(cfg.Store.TimeoutSeconds) * time.Second,
		RetryCount: cfg.Store.RetryCount,
		RetryWait:  time.Duration(cfg.Store.RetryWaitMS) * time.Millisecond,
	}, kv, log)
	defer client.Close()

	opts := service.Options{
		AggregateDebounce: time.Duration(cfg.Sync.AggregateDebounceMS) * time.Millisecond,
		RefreshDebounce:   time.Duration(cfg.Sync.RefreshDebounceMS) * time.Millisecond,
		CacheTTL:          time.Duration(cfg.Sync.CacheTTLSeconds) * time.Second,
		Editor: editor.Config{
			RetryCount: cfg.Sync.EditRetryCount,
			RetryWait:  time.Duration(cfg.Sync.EditRetryWaitMS) * time.Millisecond,
			BatchSize:  cfg.Sync.BulkBatchSize,
			BatchDelay: time.Duration(cfg.Sync.BulkBatchDelayMS) * time.Millisecond,
		},
	}
	sessions := service.NewSessionManager(client, kv, opts, log)
	defer sessions.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep today's sessions warm for the configured plant units so
	// aggregates stay fresh while operators edit.
	today := time.Now().Format("2006-01-02")
	for _, unit := range cfg.Sync.PlantUnits {
		if _, err := sessions.Get(ctx, today, unit); err != nil {
			log.Error("Failed to open session",
				zap.String("date", today),
				zap.String("plant_unit", unit),
				zap.Error(err),
			)
		}
	}

	changes := consumer.NewChangeConsumer(client, sessions, log)
	if err := changes.Start(ctx); err != nil {
		log.Fatal("Failed to start change consumer", zap.Error(err))
	}
	defer changes.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	cancel()

	log.Info("Service stopped")
}
