package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the hourly-sync service configuration, loaded from the
// environment with sensible defaults.
type Config struct {
	Store struct {
		// BaseURL of the hosted record-storage service.
		BaseURL string
		Token   string
		// TimeoutSeconds bounds every store request (default 30).
		TimeoutSeconds int
		// RetryCount / RetryWaitMS are the transport-level retry policy.
		RetryCount  int
		RetryWaitMS int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		// Enabled turns the KV cache layer on; without it the engine
		// runs with an in-process cache only.
		Enabled bool
	}

	Sync struct {
		// PlantUnits are the units whose sessions the service keeps
		// warm, comma separated in PLANT_UNITS.
		PlantUnits []string
		// AggregateDebounceMS is the batch-persist window (default 2000).
		AggregateDebounceMS int
		// RefreshDebounceMS spaces out change-notification refreshes.
		RefreshDebounceMS int
		// CacheTTLSeconds bounds the KV aggregate cache.
		CacheTTLSeconds int
		// Edit retry policy (per cell, after transport retries).
		EditRetryCount  int
		EditRetryWaitMS int
		// Bulk operation throttling.
		BulkBatchSize    int
		BulkBatchDelayMS int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Store.BaseURL = getEnv("STORE_BASE_URL", "http://localhost:8090")
	cfg.Store.Token = getEnv("STORE_TOKEN", "")
	cfg.Store.TimeoutSeconds = getEnvInt("STORE_TIMEOUT_SECONDS", 30)
	cfg.Store.RetryCount = getEnvInt("STORE_RETRY_COUNT", 2)
	cfg.Store.RetryWaitMS = getEnvInt("STORE_RETRY_WAIT_MS", 500)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"

	if units := getEnv("PLANT_UNITS", ""); units != "" {
		for _, u := range strings.Split(units, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Sync.PlantUnits = append(cfg.Sync.PlantUnits, u)
			}
		}
	}
	cfg.Sync.AggregateDebounceMS = getEnvInt("AGGREGATE_DEBOUNCE_MS", 2000)
	cfg.Sync.RefreshDebounceMS = getEnvInt("REFRESH_DEBOUNCE_MS", 1000)
	cfg.Sync.CacheTTLSeconds = getEnvInt("CACHE_TTL_SECONDS", 60)
	cfg.Sync.EditRetryCount = getEnvInt("EDIT_RETRY_COUNT", 2)
	cfg.Sync.EditRetryWaitMS = getEnvInt("EDIT_RETRY_WAIT_MS", 500)
	cfg.Sync.BulkBatchSize = getEnvInt("BULK_BATCH_SIZE", 8)
	cfg.Sync.BulkBatchDelayMS = getEnvInt("BULK_BATCH_DELAY_MS", 200)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
