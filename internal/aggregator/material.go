package aggregator

import (
	"sipoma-sync/internal/domain"
)

// BuildMaterialUsage derives the per-shift material usage totals for a
// (date, unit) from the counter-feeder parameters in a grid snapshot.
// Counter-feeder readings are cumulative meter standings, so each
// component is the window's counter delta, never a sum.
func BuildMaterialUsage(date, unit string, snapshot map[string]*domain.HourlyRecord, defs map[string]*domain.ParameterDefinition) []*domain.MaterialUsageTotal {
	totals := make([]*domain.MaterialUsageTotal, 0, len(domain.AllShiftWindows))

	for _, w := range domain.AllShiftWindows {
		usage := &domain.MaterialUsageTotal{
			Date:       date,
			PlantUnit:  unit,
			Shift:      w,
			Components: make(map[domain.MaterialComponent]float64),
		}
		for paramID, rec := range snapshot {
			def, ok := defs[paramID]
			if !ok {
				continue
			}
			component, ok := domain.MaterialFor(def.Name)
			if !ok {
				continue
			}
			agg := ComputeWindow(rec, w)
			usage.Components[component] += agg.Counter
		}
		usage.RecomputeTotal()
		totals = append(totals, usage)
	}
	return totals
}
