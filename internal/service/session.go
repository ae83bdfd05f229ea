package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sipoma-sync/internal/aggregator"
	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/editor"
	"sipoma-sync/internal/grid"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// Options tunes a session's debounce and batching behavior.
type Options struct {
	// AggregateDebounce is the window over which aggregate persists for
	// all parameters coalesce into one batch write (reference: 2s).
	AggregateDebounce time.Duration
	// RefreshDebounce spaces out reloads scheduled by bursts of
	// external change notifications.
	RefreshDebounce time.Duration
	// CacheTTL bounds the KV aggregate cache entries.
	CacheTTL time.Duration
	// OpTimeout bounds background persists triggered by commits.
	OpTimeout time.Duration
	Editor    editor.Config
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.AggregateDebounce <= 0 {
		out.AggregateDebounce = 2 * time.Second
	}
	if out.RefreshDebounce <= 0 {
		out.RefreshDebounce = time.Second
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Minute
	}
	if out.OpTimeout <= 0 {
		out.OpTimeout = 30 * time.Second
	}
	return out
}

// Session is the explicit per (date, plant unit) editing context: it
// owns the day grid, the edit pipeline with its guard set, the version
// counter and the debouncers, so concurrent sessions for different
// dates or units never share state.
type Session struct {
	date string
	unit string
	opts Options

	records store.RecordStore
	kv      store.KV
	logger  *zap.Logger

	grid     *grid.DayGrid
	pipeline *editor.Pipeline
	defs     map[string]*domain.ParameterDefinition
	defList  []*domain.ParameterDefinition

	versions *RefreshController
	capacity *aggregator.CapacityDeriver
	cache    *aggregator.CacheManager

	aggDebounce     *Debouncer
	refreshDebounce *Debouncer

	// lastApplied is the highest version this session has reloaded for;
	// the CAS on it prevents duplicate reloads when the counter is
	// observed more than once before a fetch completes.
	lastApplied atomic.Int64

	stopWatch func()
	done      chan struct{}
}

// NewSession loads the parameter definitions and the day's grid, then
// starts the refresh watcher. kv may be nil to run without the
// aggregate cache.
func NewSession(ctx context.Context, records store.RecordStore, kv store.KV, date, unit string, opts Options, logger *zap.Logger) (*Session, error) {
	s := &Session{
		date:     date,
		unit:     unit,
		opts:     opts.withDefaults(),
		records:  records,
		kv:       kv,
		logger:   logger,
		grid:     grid.NewDayGrid(date, unit),
		versions: NewRefreshController(),
		capacity: aggregator.NewCapacityDeriver(records, logger),
		done:     make(chan struct{}),
	}
	if kv != nil {
		s.cache = aggregator.NewCacheManager(kv, s.opts.CacheTTL, logger)
	}

	if err := s.loadDefinitions(ctx); err != nil {
		return nil, err
	}
	s.pipeline = editor.NewPipeline(records, s.grid, s.defs, s.opts.Editor, logger, s.onCommitted)

	if err := s.reload(ctx); err != nil {
		return nil, err
	}

	s.aggDebounce = NewDebouncer(s.opts.AggregateDebounce, s.persistAggregatesNow)
	s.refreshDebounce = NewDebouncer(s.opts.RefreshDebounce, func() { s.versions.Bump() })

	ch, cancel := s.versions.Watch()
	s.stopWatch = cancel
	go s.watchLoop(ch)

	return s, nil
}

func (s *Session) Date() string { return s.date }
func (s *Session) Unit() string { return s.unit }

// loadDefinitions pulls the reference parameters for this unit; global
// parameters (no unit tag) apply everywhere.
func (s *Session) loadDefinitions(ctx context.Context) error {
	rows, err := s.records.Query(ctx, store.CollectionParameters, nil, "name")
	if err != nil {
		return fmt.Errorf("load parameter settings: %w", err)
	}
	s.defs = make(map[string]*domain.ParameterDefinition, len(rows))
	s.defList = s.defList[:0]
	for _, row := range rows {
		def, err := store.RecordToParameter(row)
		if err != nil {
			s.logger.Debug("Skipping malformed parameter row",
				zap.String("record_id", row.ID()),
				zap.Error(err),
			)
			continue
		}
		if def.PlantUnit != "" && def.PlantUnit != s.unit {
			continue
		}
		s.defs[def.ID] = def
		s.defList = append(s.defList, def)
	}
	return nil
}

// Definitions returns the parameters visible to this session.
func (s *Session) Definitions() []*domain.ParameterDefinition {
	out := make([]*domain.ParameterDefinition, len(s.defList))
	copy(out, s.defList)
	return out
}

// GetDayGrid returns a snapshot of the working grid. Optimistic edits
// are visible immediately, independent of network state.
func (s *Session) GetDayGrid() map[string]*domain.HourlyRecord {
	return s.grid.Snapshot()
}

// ApplyLocalEdit applies the optimistic half of an edit: synchronous,
// in-memory only.
func (s *Session) ApplyLocalEdit(parameterID string, hour int, raw, editorName string) {
	s.pipeline.ApplyLocalEdit(parameterID, hour, raw, editorName)
}

// CommitEdit persists one cell, see editor.Pipeline.CommitEdit.
func (s *Session) CommitEdit(ctx context.Context, parameterID string, hour int, raw, editorName string) error {
	return s.pipeline.CommitEdit(ctx, parameterID, hour, raw, editorName, editor.CommitOptions{})
}

// CommitSiloEdit persists one silo stock field.
func (s *Session) CommitSiloEdit(ctx context.Context, siloID string, shift domain.ShiftWindow, field, raw, editorName string) error {
	return s.pipeline.CommitSiloEdit(ctx, siloID, shift, field, raw, editorName)
}

// ImportDay runs the batched import path for one parameter: cells are
// committed with skip-trigger and the version counter bumps exactly
// once at the end.
func (s *Session) ImportDay(ctx context.Context, parameterID string, values map[int]string, editorName string) error {
	err := s.pipeline.ImportDay(ctx, parameterID, values, editorName)
	s.versions.Bump()
	return err
}

// ClearDay bulk-clears whole rows for the given parameters.
func (s *Session) ClearDay(ctx context.Context, parameterIDs []string, editorName string) error {
	err := s.pipeline.ClearDay(ctx, parameterIDs, editorName)
	s.versions.Bump()
	return err
}

// ClearWindow bulk-clears one shift window for the given parameters.
func (s *Session) ClearWindow(ctx context.Context, parameterIDs []string, window domain.ShiftWindow, editorName string) error {
	err := s.pipeline.ClearWindow(ctx, parameterIDs, window, editorName)
	s.versions.Bump()
	return err
}

// onCommitted runs after every successful non-skipped commit: bump the
// version counter, and kick the capacity recompute when the parameter
// feeds the moisture formula.
func (s *Session) onCommitted(def *domain.ParameterDefinition) {
	s.versions.Bump()
	if domain.IsMoistureRelevant(def.Name) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
			defer cancel()
			if err := s.RecalculateCapacity(ctx); err != nil {
				s.logger.Warn("Capacity recompute after commit failed",
					zap.String("parameter_id", def.ID),
					zap.Error(err),
				)
			}
		}()
	}
}

// ShiftAggregates recomputes the per-shift aggregates from the current
// grid. Pure derivation; persisting is separate and debounced.
func (s *Session) ShiftAggregates() map[string]map[domain.ShiftWindow]domain.ShiftAggregate {
	return aggregator.ComputeAll(s.grid.Snapshot())
}

// DailyAggregates recomputes the cross-shift aggregates over all 24
// hours.
func (s *Session) DailyAggregates() map[string]domain.ShiftAggregate {
	snapshot := s.grid.Snapshot()
	out := make(map[string]domain.ShiftAggregate, len(snapshot))
	for id, rec := range snapshot {
		out[id] = aggregator.ComputeDaily(rec)
	}
	return out
}

// MaterialUsage derives the per-shift material usage totals from the
// counter-feeder parameters.
func (s *Session) MaterialUsage() []*domain.MaterialUsageTotal {
	return aggregator.BuildMaterialUsage(s.date, s.unit, s.grid.Snapshot(), s.defs)
}

// PersistAggregates schedules the debounced batch persist of all
// parameters' aggregates (and material usage) together.
func (s *Session) PersistAggregates() {
	s.aggDebounce.Trigger()
}

// RecalculateCapacity derives and conditionally persists the production
// capacity record for this session's date and unit.
func (s *Session) RecalculateCapacity(ctx context.Context) error {
	return s.capacity.Recalculate(ctx, s.date, s.unit, s.defList, s.grid.Snapshot())
}

// RequestRefresh is the manual refresh trigger.
func (s *Session) RequestRefresh() {
	s.versions.Bump()
}

// ScheduleRefresh is called for external change notifications: the
// reload is debounced rather than forced, so notification bursts do not
// become refresh storms.
func (s *Session) ScheduleRefresh() {
	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
		s.cache.Invalidate(ctx, s.date, s.unit)
		cancel()
	}
	s.refreshDebounce.Trigger()
}

// Version exposes the refresh counter for UI observers.
func (s *Session) Version() int64 { return s.versions.Version() }

// LastRefresh exposes the wall clock of the last completed reload.
func (s *Session) LastRefresh() time.Time { return s.versions.LastRefresh() }

// Watch exposes version-bump notifications; callers re-fetch via
// GetDayGrid after a reload.
func (s *Session) Watch() (<-chan int64, func()) { return s.versions.Watch() }

// watchLoop reloads the grid whenever the version counter moves past
// the last reloaded version.
func (s *Session) watchLoop(ch <-chan int64) {
	for {
		select {
		case <-s.done:
			return
		case <-ch:
			for {
				current := s.versions.Version()
				seen := s.lastApplied.Load()
				if current <= seen {
					break
				}
				if !s.lastApplied.CompareAndSwap(seen, current) {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
				if err := s.reload(ctx); err != nil {
					s.logger.Warn("Grid reload failed, keeping current state",
						zap.String("date", s.date),
						zap.String("plant_unit", s.unit),
						zap.Error(err),
					)
				}
				cancel()
			}
		}
	}
}

// reload fetches the full day's grid from the store and replaces the
// in-memory state.
func (s *Session) reload(ctx context.Context) error {
	rows, err := s.records.Query(ctx, store.CollectionHourly, store.Filter{
		"date":       s.date,
		"plant_unit": s.unit,
	}, "")
	if err != nil {
		return fmt.Errorf("load day grid: %w", err)
	}
	records := make([]*domain.HourlyRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := store.RecordToHourly(row)
		if err != nil {
			s.logger.Debug("Skipping malformed hourly row",
				zap.String("record_id", row.ID()),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	s.grid.Load(records)
	s.versions.MarkRefreshed()
	return nil
}

// persistAggregatesNow is the debounced batch persist body: upsert the
// aggregate and material usage rows for the whole day in one pass, and
// refresh the KV cache.
func (s *Session) persistAggregatesNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	defer cancel()

	snapshot := s.grid.Snapshot()
	aggregates := aggregator.ComputeAll(snapshot)

	existing, err := s.records.Query(ctx, store.CollectionShiftAggregate, store.Filter{
		"date":       s.date,
		"plant_unit": s.unit,
	}, "")
	if err != nil {
		s.logger.Warn("Aggregate persist skipped, query failed", zap.Error(err))
		return
	}
	byKey := make(map[string]store.Record, len(existing))
	for _, row := range existing {
		byKey[row.String("parameter_id")+"|"+row.String("shift")] = row
	}

	errorCount := 0
	for paramID, perShift := range aggregates {
		for w, agg := range perShift {
			fields := store.AggregateToFields(agg)
			if row, ok := byKey[paramID+"|"+string(w)]; ok {
				_, err = s.records.Update(ctx, store.CollectionShiftAggregate, row.ID(), fields)
			} else {
				_, err = s.records.Create(ctx, store.CollectionShiftAggregate, fields)
			}
			if err != nil {
				errorCount++
			}
		}
	}

	if err := s.persistMaterialUsage(ctx, snapshot); err != nil {
		s.logger.Warn("Material usage persist failed", zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.UpdateAggregates(ctx, s.date, s.unit, aggregates); err != nil {
			s.logger.Debug("Aggregate cache update failed", zap.Error(err))
		}
	}

	if errorCount > 0 {
		s.logger.Warn("Aggregate persist completed with errors",
			zap.Int("error_count", errorCount),
		)
		return
	}
	s.logger.Debug("Persisted aggregates",
		zap.String("date", s.date),
		zap.String("plant_unit", s.unit),
		zap.Int("parameter_count", len(aggregates)),
	)
}

func (s *Session) persistMaterialUsage(ctx context.Context, snapshot map[string]*domain.HourlyRecord) error {
	totals := aggregator.BuildMaterialUsage(s.date, s.unit, snapshot, s.defs)

	existing, err := s.records.Query(ctx, store.CollectionMaterialUsage, store.Filter{
		"date":       s.date,
		"plant_unit": s.unit,
	}, "")
	if err != nil {
		return err
	}
	byShift := make(map[string]store.Record, len(existing))
	for _, row := range existing {
		byShift[row.String("shift")] = row
	}

	for _, usage := range totals {
		fields := store.MaterialUsageToFields(usage)
		if row, ok := byShift[string(usage.Shift)]; ok {
			if _, err := s.records.Update(ctx, store.CollectionMaterialUsage, row.ID(), fields); err != nil {
				return err
			}
			continue
		}
		if _, err := s.records.Create(ctx, store.CollectionMaterialUsage, fields); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the session's background work. Pending debounced runs
// are cancelled; in-flight commits finish on their own.
func (s *Session) Close() {
	s.aggDebounce.Stop()
	s.refreshDebounce.Stop()
	s.stopWatch()
	close(s.done)
}
