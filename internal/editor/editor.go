package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/grid"
	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

var (
	// ErrUnknownParameter is returned for a commit against a parameter
	// id with no definition.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrCommitInFlight is returned when a second commit for the same
	// cell starts while one is still persisting.
	ErrCommitInFlight = errors.New("commit already in flight for this cell")
	// ErrPersistFailed wraps a terminal persistence failure. The
	// optimistic in-memory value is kept; losing a live shift's
	// keystroke costs more than temporary inconsistency.
	ErrPersistFailed = errors.New("persist failed")
)

// CommitOptions tunes one commit.
type CommitOptions struct {
	// SkipTrigger suppresses the post-commit version bump and capacity
	// recompute. Bulk/batch import paths set it so one import of N
	// cells causes exactly one reload, not N.
	SkipTrigger bool
}

// CommittedFunc is invoked after each successful, non-skipped commit.
type CommittedFunc func(def *domain.ParameterDefinition)

// Config carries the pipeline's retry and batching policy.
type Config struct {
	// RetryCount is how many times a failed persist is retried with a
	// fixed backoff before surfacing.
	RetryCount int
	RetryWait  time.Duration
	// BatchSize / BatchDelay throttle bulk operations so they do not
	// overwhelm the store's rate limits.
	BatchSize  int
	BatchDelay time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RetryCount <= 0 {
		out.RetryCount = 2
	}
	if out.RetryWait <= 0 {
		out.RetryWait = 500 * time.Millisecond
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 8
	}
	if out.BatchDelay <= 0 {
		out.BatchDelay = 200 * time.Millisecond
	}
	return out
}

// Pipeline applies cell edits optimistically to the day grid and
// persists them asynchronously to the record store, one guarded commit
// per cell.
type Pipeline struct {
	records store.RecordStore
	grid    *grid.DayGrid
	defs    map[string]*domain.ParameterDefinition
	cfg     Config
	logger  *zap.Logger

	guards      *guardSet
	onCommitted CommittedFunc
}

func NewPipeline(records store.RecordStore, g *grid.DayGrid, defs map[string]*domain.ParameterDefinition, cfg Config, logger *zap.Logger, onCommitted CommittedFunc) *Pipeline {
	return &Pipeline{
		records:     records,
		grid:        g,
		defs:        defs,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		guards:      newGuardSet(),
		onCommitted: onCommitted,
	}
}

// ApplyLocalEdit is the synchronous optimistic half: it mutates the
// grid and nothing else. Input that fails numeric validation is still
// reflected locally for text parameters; numeric parameters keep their
// previous value on a parse failure (the commit would reject it).
func (p *Pipeline) ApplyLocalEdit(parameterID string, hour int, raw, editorName string) {
	def, ok := p.defs[parameterID]
	if !ok {
		return
	}
	cell, err := grid.NormalizeInput(def, p.grid.Unit(), raw)
	if err != nil {
		return
	}
	p.grid.ApplyLocalEdit(parameterID, hour, cell, editorName)
}

// CommitEdit is the asynchronous counterpart, invoked on focus-loss
// rather than per keystroke. It validates locally, applies the
// optimistic mutation, and persists the single touched hour with
// retries. On terminal failure the optimistic value stays in the grid
// and a typed error is returned for user-visible messaging.
func (p *Pipeline) CommitEdit(ctx context.Context, parameterID string, hour int, raw, editorName string, opts CommitOptions) error {
	def, ok := p.defs[parameterID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, parameterID)
	}

	// Validation failures never reach the network.
	cell, err := grid.NormalizeInput(def, p.unitFor(def), raw)
	if err != nil {
		return err
	}

	key := cellGuardKey(parameterID, hour)
	if !p.guards.acquire(key) {
		return fmt.Errorf("%s hour %d: %w", parameterID, hour, ErrCommitInFlight)
	}
	defer p.guards.release(key)

	p.grid.ApplyLocalEdit(parameterID, hour, cell, editorName)

	if err := p.persistCell(ctx, def, hour, cell, editorName); err != nil {
		p.logger.Warn("Cell commit failed, keeping optimistic value",
			zap.String("parameter_id", parameterID),
			zap.Int("hour", hour),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	if !opts.SkipTrigger && p.onCommitted != nil {
		p.onCommitted(def)
	}
	return nil
}

// unitFor resolves the plant unit: the grid's selected unit, falling
// back to the parameter's own unit tag when none is selected.
func (p *Pipeline) unitFor(def *domain.ParameterDefinition) string {
	if u := p.grid.Unit(); u != "" {
		return u
	}
	return def.PlantUnit
}

// persistCell updates the touched hour of the existing row, or creates
// the row on first edit of that parameter/day.
func (p *Pipeline) persistCell(ctx context.Context, def *domain.ParameterDefinition, hour int, cell *domain.CellValue, editorName string) error {
	return p.withRetries(ctx, func() error {
		rows, err := p.records.Query(ctx, store.CollectionHourly, store.Filter{
			"parameter_id": def.ID,
			"date":         p.grid.Date(),
		}, "")
		if err != nil {
			return err
		}

		if len(rows) > 0 {
			id := rows[0].ID()
			if _, err := p.records.Update(ctx, store.CollectionHourly, id, store.HourPatch(hour, cell, editorName)); err != nil {
				return err
			}
			p.grid.SetRecordID(def.ID, id)
			return nil
		}

		rec := p.grid.Record(def.ID)
		if rec == nil {
			rec = &domain.HourlyRecord{ParameterID: def.ID, Date: p.grid.Date()}
			rec.SetHour(hour, cell, editorName)
		}
		rec.PlantUnit = p.unitFor(def)
		created, err := p.records.Create(ctx, store.CollectionHourly, store.HourlyToFields(rec))
		if err != nil {
			return err
		}
		p.grid.SetRecordID(def.ID, created.ID())
		return nil
	})
}

// withRetries runs op, retrying with a fixed backoff.
func (p *Pipeline) withRetries(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.RetryWait):
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

func cellGuardKey(parameterID string, hour int) string {
	return parameterID + ":h" + strconv.Itoa(hour)
}

func siloGuardKey(siloID string, shift domain.ShiftWindow, field string) string {
	return "silo:" + siloID + ":" + string(shift) + ":" + field
}
