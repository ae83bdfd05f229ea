package editor

import (
	"context"
	"fmt"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/grid"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// CommitSiloEdit persists one silo stock field for a shift. Silo-style
// entries share the pipeline's retry policy but are guarded separately,
// keyed by silo+shift+field. An empty value nulls the field and still
// stamps the editor.
func (p *Pipeline) CommitSiloEdit(ctx context.Context, siloID string, shift domain.ShiftWindow, field, raw, editorName string) error {
	switch field {
	case domain.SiloFieldEmptySpace, domain.SiloFieldDeadStock:
	default:
		return fmt.Errorf("unsupported silo field %q", field)
	}

	var value any
	if raw != "" {
		v, err := grid.ParseNumeric(raw)
		if err != nil {
			return fmt.Errorf("silo %s %s: %w", siloID, field, err)
		}
		value = v
	}

	key := siloGuardKey(siloID, shift, field)
	if !p.guards.acquire(key) {
		return fmt.Errorf("silo %s %s/%s: %w", siloID, shift, field, ErrCommitInFlight)
	}
	defer p.guards.release(key)

	err := p.withRetries(ctx, func() error {
		rows, err := p.records.Query(ctx, store.CollectionSilo, store.Filter{
			"silo_id":    siloID,
			"date":       p.grid.Date(),
			"plant_unit": p.grid.Unit(),
		}, "")
		if err != nil {
			return err
		}

		fieldName := store.SiloField(shift, field)
		patch := store.Record{
			fieldName:           value,
			fieldName + "_user": editorName,
		}

		if len(rows) > 0 {
			_, err := p.records.Update(ctx, store.CollectionSilo, rows[0].ID(), patch)
			return err
		}

		fields := store.Record{
			"silo_id":    siloID,
			"date":       p.grid.Date(),
			"plant_unit": p.grid.Unit(),
		}
		for k, v := range patch {
			fields[k] = v
		}
		_, err = p.records.Create(ctx, store.CollectionSilo, fields)
		return err
	})
	if err != nil {
		p.logger.Warn("Silo commit failed",
			zap.String("silo_id", siloID),
			zap.String("shift", string(shift)),
			zap.String("field", field),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}
