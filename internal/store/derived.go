package store

import (
	"fmt"

	"sipoma-sync/internal/domain"
)

// Adapters for the derived collections (aggregates, material usage,
// production capacity). These rows are caches of recomputable data, so
// the adapters are lossy-tolerant on read: a malformed row is skipped
// upstream rather than failing a whole query.

// AggregateToFields flattens a shift aggregate for persistence, keyed
// by (date, parameter id, plant unit, shift) for reporting reuse.
func AggregateToFields(a domain.ShiftAggregate) Record {
	return Record{
		"parameter_id": a.ParameterID,
		"date":         a.Date,
		"plant_unit":   a.PlantUnit,
		"shift":        string(a.Window),
		"total":        a.Total,
		"average":      a.Average,
		"min":          a.Min,
		"max":          a.Max,
		"counter":      a.Counter,
		"count":        a.Count,
	}
}

// MaterialUsageToFields flattens a per-shift material usage row.
func MaterialUsageToFields(m *domain.MaterialUsageTotal) Record {
	fields := Record{
		"date":             m.Date,
		"plant_unit":       m.PlantUnit,
		"shift":            string(m.Shift),
		"total_production": m.TotalProduction,
	}
	for _, c := range domain.MaterialComponents {
		fields[string(c)] = m.Components[c]
	}
	return fields
}

// RecordToMaterialUsage normalizes a material usage row.
func RecordToMaterialUsage(r Record) (*domain.MaterialUsageTotal, error) {
	m := &domain.MaterialUsageTotal{
		Date:       r.String("date"),
		PlantUnit:  r.String("plant_unit"),
		Shift:      domain.ShiftWindow(r.String("shift")),
		Components: make(map[domain.MaterialComponent]float64),
	}
	if m.Date == "" {
		return nil, fmt.Errorf("material usage record %q has no date", r.ID())
	}
	for _, c := range domain.MaterialComponents {
		if v, ok := toFloat(r[string(c)]); ok {
			m.Components[c] = v
		}
	}
	if v, ok := toFloat(r["total_production"]); ok {
		m.TotalProduction = v
	} else {
		m.RecomputeTotal()
	}
	return m, nil
}

// CapacityToFields flattens a production capacity record.
func CapacityToFields(p *domain.ProductionCapacityRecord) Record {
	return Record{
		"date":       p.Date,
		"plant_unit": p.PlantUnit,
		"category":   p.Category,
		"wet":        p.Wet,
		"dry":        p.Dry,
		"moisture":   p.Moisture,
	}
}

// RecordToCapacity normalizes a production capacity row.
func RecordToCapacity(r Record) (*domain.ProductionCapacityRecord, error) {
	p := &domain.ProductionCapacityRecord{
		ID:        r.ID(),
		Date:      r.String("date"),
		PlantUnit: r.String("plant_unit"),
		Category:  r.String("category"),
	}
	if p.Date == "" {
		return nil, fmt.Errorf("capacity record %q has no date", r.ID())
	}
	if v, ok := toFloat(r["wet"]); ok {
		p.Wet = v
	}
	if v, ok := toFloat(r["dry"]); ok {
		p.Dry = v
	}
	if v, ok := toFloat(r["moisture"]); ok {
		p.Moisture = v
	}
	return p, nil
}
