package consumer

import (
	"context"
	"time"

	"sipoma-sync/internal/service"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// queryInvalidator is implemented by store clients that keep a
// client-side query cache (the HTTP client does; the memory store does
// not need to).
type queryInvalidator interface {
	Invalidate(ctx context.Context, collection string)
}

// ChangeConsumer wires the store's change feed to the open sessions:
// an external edit invalidates the client-side caches for its key and
// schedules a debounced refresh on the matching session. Last write
// wins; there is no merge and no user-facing conflict dialog.
type ChangeConsumer struct {
	records  store.RecordStore
	sessions *service.SessionManager
	logger   *zap.Logger

	unsubscribes []func()
}

func NewChangeConsumer(records store.RecordStore, sessions *service.SessionManager, logger *zap.Logger) *ChangeConsumer {
	return &ChangeConsumer{
		records:  records,
		sessions: sessions,
		logger:   logger,
	}
}

// watchedCollections are the collections whose external changes can
// stale an open session.
var watchedCollections = []string{
	store.CollectionHourly,
	store.CollectionMaterialUsage,
	store.CollectionSilo,
}

// Start subscribes to the change feed. Delivery is at-least-once;
// handling is idempotent because a refresh is only scheduled, never
// forced, and duplicate schedules coalesce in the session's debouncer.
func (c *ChangeConsumer) Start(ctx context.Context) error {
	for _, collection := range watchedCollections {
		unsub, err := c.records.Subscribe(ctx, collection, c.handle)
		if err != nil {
			c.Stop()
			return err
		}
		c.unsubscribes = append(c.unsubscribes, unsub)
	}
	c.logger.Info("Change consumer started",
		zap.Strings("collections", watchedCollections),
	)
	return nil
}

func (c *ChangeConsumer) handle(event store.ChangeEvent) {
	if inv, ok := c.records.(queryInvalidator); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		inv.Invalidate(ctx, event.Collection)
		cancel()
	}

	if event.Date == "" || event.PlantUnit == "" {
		return
	}
	session := c.sessions.Lookup(event.Date, event.PlantUnit)
	if session == nil {
		return
	}

	c.logger.Debug("External change scheduled a refresh",
		zap.String("collection", event.Collection),
		zap.String("action", string(event.Action)),
		zap.String("date", event.Date),
		zap.String("plant_unit", event.PlantUnit),
	)
	session.ScheduleRefresh()
}

// Stop unsubscribes from the change feed.
func (c *ChangeConsumer) Stop() {
	for _, unsub := range c.unsubscribes {
		unsub()
	}
	c.unsubscribes = nil
}
