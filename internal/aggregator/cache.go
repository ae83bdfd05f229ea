package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// CacheManager keeps the freshest derived aggregates in the KV so
// reporting readers do not have to wait for the debounced store
// persist. Entries are caches: always reproducible from the hourly
// source of truth.
type CacheManager struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCacheManager(kv store.KV, ttl time.Duration, logger *zap.Logger) *CacheManager {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CacheManager{kv: kv, ttl: ttl, logger: logger}
}

func aggregateKey(unit, date string) string {
	return fmt.Sprintf("sipoma:aggregates:%s:%s", unit, date)
}

// UpdateAggregates writes the full aggregate set for a (date, unit).
func (c *CacheManager) UpdateAggregates(ctx context.Context, date, unit string, aggregates map[string]map[domain.ShiftWindow]domain.ShiftAggregate) error {
	data, err := json.Marshal(aggregates)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregates: %w", err)
	}
	if err := c.kv.Set(ctx, aggregateKey(unit, date), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set aggregate cache: %w", err)
	}
	c.logger.Debug("Updated aggregate cache",
		zap.String("date", date),
		zap.String("plant_unit", unit),
		zap.Int("parameter_count", len(aggregates)),
	)
	return nil
}

// GetAggregates reads the cached aggregate set, store.ErrMiss when
// absent or expired.
func (c *CacheManager) GetAggregates(ctx context.Context, date, unit string) (map[string]map[domain.ShiftWindow]domain.ShiftAggregate, error) {
	raw, err := c.kv.Get(ctx, aggregateKey(unit, date))
	if err != nil {
		return nil, err
	}
	var out map[string]map[domain.ShiftWindow]domain.ShiftAggregate
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached aggregates: %w", err)
	}
	return out, nil
}

// Invalidate drops the cached aggregates for a (date, unit), used when
// an external change notification arrives for that key.
func (c *CacheManager) Invalidate(ctx context.Context, date, unit string) {
	if err := c.kv.Del(ctx, aggregateKey(unit, date)); err != nil {
		c.logger.Debug("Failed to invalidate aggregate cache",
			zap.String("date", date),
			zap.String("plant_unit", unit),
			zap.Error(err),
		)
	}
}
