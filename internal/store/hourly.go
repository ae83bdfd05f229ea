package store

import (
	"fmt"
	"strconv"

	"sipoma-sync/internal/domain"
)

// This file is the single normalizing adapter between the store's loose
// record shapes and the flat HourlyRecord the engine works with. Stored
// rows carry hour slots either as flat hourN / hourN_user fields or as
// nested {value, user} objects; both are accepted on read, and the flat
// shape is always written back.

// HourField returns the flat field name for a 1-based hour slot.
func HourField(hour int) string {
	return fmt.Sprintf("hour%d", hour)
}

// HourUserField returns the attribution field name for a 1-based hour.
func HourUserField(hour int) string {
	return fmt.Sprintf("hour%d_user", hour)
}

// SiloField returns the flat field name for a silo shift field, e.g.
// "shift1_empty_space".
func SiloField(shift domain.ShiftWindow, field string) string {
	return fmt.Sprintf("%s_%s", shift, field)
}

// RecordToHourly normalizes a stored row into the flat HourlyRecord.
func RecordToHourly(r Record) (*domain.HourlyRecord, error) {
	rec := &domain.HourlyRecord{
		ID:          r.ID(),
		ParameterID: r.String("parameter_id"),
		Date:        r.String("date"),
		PlantUnit:   r.String("plant_unit"),
	}
	if rec.ParameterID == "" {
		return nil, fmt.Errorf("hourly record %q has no parameter_id", rec.ID)
	}

	for h := 1; h <= domain.HoursPerDay; h++ {
		raw, ok := r[HourField(h)]
		if !ok || raw == nil {
			continue
		}

		// Nested {value, user} shape.
		if nested, isMap := raw.(map[string]any); isMap {
			if user, isStr := nested["user"].(string); isStr && user != "" {
				u := user
				rec.Editors[h-1] = &u
			}
			raw = nested["value"]
			if raw == nil {
				continue
			}
		}

		cell, err := cellFromRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("hour%d of record %q: %w", h, rec.ID, err)
		}
		rec.Hours[h-1] = cell
	}

	// Flat attribution fields win over nested ones when both exist.
	for h := 1; h <= domain.HoursPerDay; h++ {
		if user := r.String(HourUserField(h)); user != "" {
			u := user
			rec.Editors[h-1] = &u
		}
	}

	return rec, nil
}

// cellFromRaw converts a stored slot value into a CellValue.
func cellFromRaw(raw any) (*domain.CellValue, error) {
	switch v := raw.(type) {
	case float64:
		return domain.NumberCell(v), nil
	case float32:
		return domain.NumberCell(float64(v)), nil
	case int:
		return domain.NumberCell(float64(v)), nil
	case int64:
		return domain.NumberCell(float64(v)), nil
	case string:
		if v == "" {
			return nil, nil
		}
		// Stores round-trip numbers as strings; keep them numeric.
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return domain.NumberCell(n), nil
		}
		return domain.TextCell(v), nil
	default:
		return nil, fmt.Errorf("unsupported slot value %T", raw)
	}
}

// HourlyToFields flattens a record into store fields for a create.
func HourlyToFields(rec *domain.HourlyRecord) Record {
	fields := Record{
		"parameter_id": rec.ParameterID,
		"date":         rec.Date,
		"plant_unit":   rec.PlantUnit,
	}
	for h := 1; h <= domain.HoursPerDay; h++ {
		if cell := rec.Hours[h-1]; cell != nil {
			fields[HourField(h)] = cell.Raw()
		}
		if e := rec.Editors[h-1]; e != nil {
			fields[HourUserField(h)] = *e
		}
	}
	return fields
}

// HourPatch builds the partial update touching only one hour slot. A
// nil cell nulls the value field but still stamps the attribution: a
// clear is itself an attributable action.
func HourPatch(hour int, cell *domain.CellValue, editor string) Record {
	return Record{
		HourField(hour):     cell.Raw(),
		HourUserField(hour): editor,
	}
}

// RecordToParameter normalizes a parameter_settings row.
func RecordToParameter(r Record) (*domain.ParameterDefinition, error) {
	def := &domain.ParameterDefinition{
		ID:        r.ID(),
		Name:      r.String("name"),
		Unit:      r.String("unit"),
		Category:  r.String("category"),
		PlantUnit: r.String("plant_unit"),
		DataKind:  domain.DataKind(r.String("data_kind")),
	}
	if def.ID == "" || def.Name == "" {
		return nil, fmt.Errorf("parameter record missing id or name")
	}
	if def.DataKind == "" {
		def.DataKind = domain.KindNumeric
	}
	if v, ok := toFloat(r["min_value"]); ok {
		def.Min = &v
	}
	if v, ok := toFloat(r["max_value"]); ok {
		def.Max = &v
	}
	if m, ok := r["min_by_unit"].(map[string]any); ok {
		def.MinByUnit = toFloatMap(m)
	}
	if m, ok := r["max_by_unit"].(map[string]any); ok {
		def.MaxByUnit = toFloatMap(m)
	}
	return def, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloatMap(m map[string]any) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if v, ok := toFloat(raw); ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
