package aggregator

import (
	"context"
	"fmt"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// CapacityDeriver computes the per (date, unit) production capacity:
// wet tonnage from material usage, average moisture from the paired
// H2O / setpoint-feeder readings, and dry tonnage from both. Results
// are upserted, with writes suppressed below the materiality threshold.
type CapacityDeriver struct {
	records store.RecordStore
	logger  *zap.Logger
}

func NewCapacityDeriver(records store.RecordStore, logger *zap.Logger) *CapacityDeriver {
	return &CapacityDeriver{records: records, logger: logger}
}

// Moisture computes the day's average moisture percent from the grid
// snapshot. For each hour, every pair with both readings present
// contributes setpoint * h2o / 100; contributions add across materials.
// An hour enters the average when at least one pair is complete; pairs
// missing for that hour are excluded, not treated as zero.
func Moisture(snapshot map[string]*domain.HourlyRecord, pairs []domain.MoisturePair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	sum := 0.0
	hoursCounted := 0
	for h := 1; h <= domain.HoursPerDay; h++ {
		hourSum := 0.0
		complete := 0
		for _, pair := range pairs {
			h2o := numericCell(snapshot[pair.H2OID], h)
			sp := numericCell(snapshot[pair.SetpointID], h)
			if h2o == nil || sp == nil {
				continue
			}
			hourSum += *sp * *h2o / 100
			complete++
		}
		if complete > 0 {
			sum += hourSum
			hoursCounted++
		}
	}
	if hoursCounted == 0 {
		return 0
	}
	return sum / float64(hoursCounted)
}

func numericCell(rec *domain.HourlyRecord, hour int) *float64 {
	if rec == nil {
		return nil
	}
	cell := rec.Hour(hour)
	if cell == nil || !cell.Numeric {
		return nil
	}
	v := cell.Num
	return &v
}

// Dry applies the capacity formula: dry = wet - moisture * wet / 100.
func Dry(wet, moisture float64) float64 {
	return wet - moisture*wet/100
}

// Recalculate derives and conditionally persists the capacity record
// for (date, unit). The category tag is inferred from whichever source
// first supplies one (material usage rows, then parameter settings);
// when none can be inferred the write is silently skipped rather than
// persisting an incomplete record.
func (d *CapacityDeriver) Recalculate(ctx context.Context, date, unit string, defs []*domain.ParameterDefinition, snapshot map[string]*domain.HourlyRecord) error {
	usageRows, err := d.records.Query(ctx, store.CollectionMaterialUsage, store.Filter{
		"date":       date,
		"plant_unit": unit,
	}, "")
	if err != nil {
		return fmt.Errorf("load material usage: %w", err)
	}

	wet := 0.0
	category := ""
	for _, row := range usageRows {
		usage, err := store.RecordToMaterialUsage(row)
		if err != nil {
			d.logger.Debug("Skipping malformed material usage row",
				zap.String("record_id", row.ID()),
				zap.Error(err),
			)
			continue
		}
		wet += usage.TotalProduction
		if category == "" {
			category = row.String("category")
		}
	}

	if category == "" {
		for _, def := range defs {
			if def.Category != "" {
				category = def.Category
				break
			}
		}
	}
	if category == "" {
		// Deliberate silent-skip policy: without a category the record
		// would be incomplete, so nothing is written.
		d.logger.Debug("No category inferred, skipping capacity write",
			zap.String("date", date),
			zap.String("plant_unit", unit),
		)
		return nil
	}

	moisture := Moisture(snapshot, domain.BuildMoisturePairs(defs))
	next := &domain.ProductionCapacityRecord{
		Date:      date,
		PlantUnit: unit,
		Category:  category,
		Wet:       wet,
		Moisture:  moisture,
		Dry:       Dry(wet, moisture),
	}

	existingRows, err := d.records.Query(ctx, store.CollectionCapacity, store.Filter{
		"date":       date,
		"plant_unit": unit,
	}, "")
	if err != nil {
		return fmt.Errorf("load capacity record: %w", err)
	}

	if len(existingRows) == 0 {
		if _, err := d.records.Create(ctx, store.CollectionCapacity, store.CapacityToFields(next)); err != nil {
			return fmt.Errorf("create capacity record: %w", err)
		}
		d.logger.Info("Created capacity record",
			zap.String("date", date),
			zap.String("plant_unit", unit),
			zap.Float64("wet", next.Wet),
			zap.Float64("dry", next.Dry),
			zap.Float64("moisture", next.Moisture),
		)
		return nil
	}

	existing, err := store.RecordToCapacity(existingRows[0])
	if err != nil {
		return fmt.Errorf("normalize capacity record: %w", err)
	}
	if !existing.MateriallyDiffers(next) {
		// Below the materiality threshold: suppress the write so
		// repeated recompute triggers do not amplify into writes.
		return nil
	}
	if _, err := d.records.Update(ctx, store.CollectionCapacity, existing.ID, store.CapacityToFields(next)); err != nil {
		return fmt.Errorf("update capacity record: %w", err)
	}
	d.logger.Info("Updated capacity record",
		zap.String("date", date),
		zap.String("plant_unit", unit),
		zap.Float64("wet", next.Wet),
		zap.Float64("dry", next.Dry),
		zap.Float64("moisture", next.Moisture),
	)
	return nil
}
