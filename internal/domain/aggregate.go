package domain

// ShiftAggregate is the derived per (parameter, window) summary. It is
// always reproducible from the hourly source of truth; persisted copies
// are caches, never authoritative.
type ShiftAggregate struct {
	ParameterID string      `json:"parameter_id"`
	Date        string      `json:"date"`
	PlantUnit   string      `json:"plant_unit"`
	Window      ShiftWindow `json:"shift"`
	Total       float64     `json:"total"`
	Average     float64     `json:"average"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	// Counter is the last present value minus the first present value
	// within the window. Counter parameters are never summed.
	Counter float64 `json:"counter"`
	// Count is how many hours in the window held a numeric value.
	Count int `json:"count"`
}

// MaterialUsageTotal is the per (date, unit, shift) material breakdown.
// TotalProduction always equals the sum of the seven components; it is
// recomputed, never independently edited.
type MaterialUsageTotal struct {
	Date            string                        `json:"date"`
	PlantUnit       string                        `json:"plant_unit"`
	Shift           ShiftWindow                   `json:"shift"`
	Components      map[MaterialComponent]float64 `json:"components"`
	TotalProduction float64                       `json:"total_production"`
}

// RecomputeTotal refreshes TotalProduction from the components.
func (m *MaterialUsageTotal) RecomputeTotal() {
	total := 0.0
	for _, c := range MaterialComponents {
		total += m.Components[c]
	}
	m.TotalProduction = total
}

// ProductionCapacityRecord is the per (date, unit) derived capacity
// figure. Upserted, never duplicated per day/unit.
type ProductionCapacityRecord struct {
	ID        string  `json:"id,omitempty"`
	Date      string  `json:"date"`
	PlantUnit string  `json:"plant_unit"`
	Category  string  `json:"category"`
	Wet       float64 `json:"wet"`
	Dry       float64 `json:"dry"`
	Moisture  float64 `json:"moisture"`
}

// CapacityWriteThreshold is the materiality threshold: a recomputed
// capacity record is only re-persisted when wet, dry or moisture moved
// by more than this, so floating-point noise does not amplify writes.
const CapacityWriteThreshold = 0.01

// MateriallyDiffers reports whether the stored record differs from the
// new values by more than the threshold on any field.
func (p *ProductionCapacityRecord) MateriallyDiffers(o *ProductionCapacityRecord) bool {
	return abs(p.Wet-o.Wet) > CapacityWriteThreshold ||
		abs(p.Dry-o.Dry) > CapacityWriteThreshold ||
		abs(p.Moisture-o.Moisture) > CapacityWriteThreshold
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SiloDailyRecord holds the per-shift silo stock figures entered from
// the silo grid. Fields follow the same attribution rules as hourly
// cells: guard key is silo+shift+field.
type SiloDailyRecord struct {
	ID        string
	Date      string
	PlantUnit string
	SiloID    string
	// Shifts maps shift window -> field name -> value.
	Shifts map[ShiftWindow]map[string]float64
}

// Silo field names accepted by the silo edit path.
const (
	SiloFieldEmptySpace = "empty_space"
	SiloFieldDeadStock  = "dead_stock"
)
