package editor

import (
	"context"
	"fmt"
	"time"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// ImportDay commits a full day of hourly values for one parameter
// through the batch path: small fixed-size batches with a short
// inter-batch delay so the store's rate limits are respected, every
// cell committed with SkipTrigger so the whole import causes one
// version bump, not 24. Hours absent from values are left untouched.
func (p *Pipeline) ImportDay(ctx context.Context, parameterID string, values map[int]string, editorName string) error {
	if _, ok := p.defs[parameterID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, parameterID)
	}

	hours := make([]int, 0, len(values))
	for h := 1; h <= domain.HoursPerDay; h++ {
		if _, ok := values[h]; ok {
			hours = append(hours, h)
		}
	}

	successCount := 0
	errorCount := 0
	for i, h := range hours {
		if i > 0 && i%p.cfg.BatchSize == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.BatchDelay):
			}
		}
		if err := p.CommitEdit(ctx, parameterID, h, values[h], editorName, CommitOptions{SkipTrigger: true}); err != nil {
			p.logger.Error("Failed to import hour",
				zap.String("parameter_id", parameterID),
				zap.Int("hour", h),
				zap.Error(err),
			)
			errorCount++
			continue
		}
		successCount++
	}

	p.logger.Info("Completed day import",
		zap.String("parameter_id", parameterID),
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
	)

	if errorCount > 0 {
		return fmt.Errorf("%w: %d of %d hours failed", ErrPersistFailed, errorCount, len(hours))
	}
	return nil
}

// ClearWindow nulls every hour of one shift window for the given
// parameters, batched like ImportDay. A row whose remaining hours are
// empty across all three shifts is removed outright; otherwise only the
// window's fields are nulled, each clear stamping the editor.
func (p *Pipeline) ClearWindow(ctx context.Context, parameterIDs []string, window domain.ShiftWindow, editorName string) error {
	errorCount := 0
	for i, parameterID := range parameterIDs {
		if i > 0 && i%p.cfg.BatchSize == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.BatchDelay):
			}
		}
		if err := p.clearWindowForParameter(ctx, parameterID, window, editorName); err != nil {
			p.logger.Error("Failed to clear shift window",
				zap.String("parameter_id", parameterID),
				zap.String("shift", string(window)),
				zap.Error(err),
			)
			errorCount++
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("%w: %d of %d parameters failed", ErrPersistFailed, errorCount, len(parameterIDs))
	}
	return nil
}

func (p *Pipeline) clearWindowForParameter(ctx context.Context, parameterID string, window domain.ShiftWindow, editorName string) error {
	return p.withRetries(ctx, func() error {
		rows, err := p.records.Query(ctx, store.CollectionHourly, store.Filter{
			"parameter_id": parameterID,
			"date":         p.grid.Date(),
		}, "")
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			// Nothing persisted; clear the local grid row only.
			p.clearGridWindow(parameterID, window, editorName)
			return nil
		}

		rec, err := store.RecordToHourly(rows[0])
		if err != nil {
			return err
		}
		for _, h := range window.Hours() {
			rec.SetHour(h, nil, editorName)
		}

		// Eligible for removal only when no hour slot in any shift
		// still holds data.
		if rec.Empty() {
			if err := p.records.Delete(ctx, store.CollectionHourly, rows[0].ID()); err != nil {
				return err
			}
			p.grid.Remove(parameterID)
			return nil
		}

		patch := store.Record{}
		for _, h := range window.Hours() {
			patch[store.HourField(h)] = nil
			patch[store.HourUserField(h)] = editorName
		}
		if _, err := p.records.Update(ctx, store.CollectionHourly, rows[0].ID(), patch); err != nil {
			return err
		}
		p.clearGridWindow(parameterID, window, editorName)
		return nil
	})
}

func (p *Pipeline) clearGridWindow(parameterID string, window domain.ShiftWindow, editorName string) {
	rec := p.grid.Record(parameterID)
	if rec == nil {
		return
	}
	for _, h := range window.Hours() {
		p.grid.ApplyLocalEdit(parameterID, h, nil, editorName)
	}
	if updated := p.grid.Record(parameterID); updated != nil && updated.Empty() {
		p.grid.Remove(parameterID)
	}
}

// ClearDay clears all four windows for the given parameters, removing
// the emptied rows.
func (p *Pipeline) ClearDay(ctx context.Context, parameterIDs []string, editorName string) error {
	for _, w := range domain.AllShiftWindows {
		if err := p.ClearWindow(ctx, parameterIDs, w, editorName); err != nil {
			return err
		}
	}
	return nil
}
