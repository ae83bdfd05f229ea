package grid

import (
	"sync"

	"sipoma-sync/internal/domain"
)

// DayGrid is the in-memory working grid for one (date, plant unit):
// 24 hours by N parameters, each cell holding a value and an attributed
// editor. The grid exclusively owns its HourlyRecord instances during
// an editing session; the record store stays the durable owner.
type DayGrid struct {
	date string
	unit string

	mu      sync.RWMutex
	records map[string]*domain.HourlyRecord // keyed by parameter id
}

func NewDayGrid(date, unit string) *DayGrid {
	return &DayGrid{
		date:    date,
		unit:    unit,
		records: make(map[string]*domain.HourlyRecord),
	}
}

func (g *DayGrid) Date() string { return g.date }
func (g *DayGrid) Unit() string { return g.unit }

// Load replaces the grid contents with records fetched from the store.
func (g *DayGrid) Load(records []*domain.HourlyRecord) {
	fresh := make(map[string]*domain.HourlyRecord, len(records))
	for _, rec := range records {
		fresh[rec.ParameterID] = rec.Clone()
	}
	g.mu.Lock()
	g.records = fresh
	g.mu.Unlock()
}

// ApplyLocalEdit mutates the grid synchronously: the optimistic half of
// the two-phase edit. No I/O happens here. The row is created on first
// edit to any hour of that parameter/day.
func (g *DayGrid) ApplyLocalEdit(parameterID string, hour int, value *domain.CellValue, editor string) {
	if hour < 1 || hour > domain.HoursPerDay {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[parameterID]
	if !ok {
		rec = &domain.HourlyRecord{
			ParameterID: parameterID,
			Date:        g.date,
			PlantUnit:   g.unit,
		}
		g.records[parameterID] = rec
	}
	rec.SetHour(hour, value, editor)
}

// Record returns a copy of one parameter's row, nil when absent.
func (g *DayGrid) Record(parameterID string) *domain.HourlyRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if rec, ok := g.records[parameterID]; ok {
		return rec.Clone()
	}
	return nil
}

// Cell returns the value and editor of one cell.
func (g *DayGrid) Cell(parameterID string, hour int) (*domain.CellValue, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[parameterID]
	if !ok {
		return nil, ""
	}
	cell := rec.Hour(hour)
	if cell != nil {
		c := *cell
		return &c, rec.Editor(hour)
	}
	return nil, rec.Editor(hour)
}

// Snapshot returns a deep copy of the whole grid, safe for the
// aggregator to read while commits are in flight.
func (g *DayGrid) Snapshot() map[string]*domain.HourlyRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*domain.HourlyRecord, len(g.records))
	for id, rec := range g.records {
		out[id] = rec.Clone()
	}
	return out
}

// SetRecordID stamps the store-assigned id after a create commit, so
// later commits for the row update instead of re-creating.
func (g *DayGrid) SetRecordID(parameterID, recordID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[parameterID]; ok && rec.ID == "" {
		rec.ID = recordID
	}
}

// Remove drops a parameter's row from the grid (bulk clear).
func (g *DayGrid) Remove(parameterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, parameterID)
}

// ParameterIDs lists the parameters that currently have a row.
func (g *DayGrid) ParameterIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.records))
	for id := range g.records {
		ids = append(ids, id)
	}
	return ids
}
