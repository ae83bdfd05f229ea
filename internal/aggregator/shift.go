package aggregator

import (
	"sipoma-sync/internal/domain"
)

// DailyWindow labels the cross-shift aggregate spanning all 24 hours.
const DailyWindow domain.ShiftWindow = "daily"

// The shift aggregator is a pure function of the current hourly record
// set: no I/O, deterministic, safe to recompute on every grid change.
// Persisting its output is a separate, explicitly invoked operation.

// computeHours folds the numeric cells of the given 1-based hours into
// one aggregate. Text cells and absent cells are skipped; absence means
// "not yet entered", never zero.
func computeHours(rec *domain.HourlyRecord, hours []int, window domain.ShiftWindow) domain.ShiftAggregate {
	agg := domain.ShiftAggregate{
		ParameterID: rec.ParameterID,
		Date:        rec.Date,
		PlantUnit:   rec.PlantUnit,
		Window:      window,
	}

	var first, last float64
	seen := false
	for _, h := range hours {
		cell := rec.Hour(h)
		if cell == nil || !cell.Numeric {
			continue
		}
		v := cell.Num
		agg.Total += v
		agg.Count++
		if !seen {
			first, last = v, v
			agg.Min, agg.Max = v, v
			seen = true
		} else {
			last = v
			if v < agg.Min {
				agg.Min = v
			}
			if v > agg.Max {
				agg.Max = v
			}
		}
	}

	if agg.Count > 0 {
		agg.Average = agg.Total / float64(agg.Count)
	}
	// Counter is last present minus first present; a single value is a
	// delta with itself, so anything under two values yields 0.
	agg.Counter = last - first
	return agg
}

// ComputeWindow aggregates one parameter row over one shift window.
func ComputeWindow(rec *domain.HourlyRecord, w domain.ShiftWindow) domain.ShiftAggregate {
	return computeHours(rec, w.Hours(), w)
}

// ComputeDaily aggregates one parameter row across all 24 hours,
// without shift partitioning.
func ComputeDaily(rec *domain.HourlyRecord) domain.ShiftAggregate {
	hours := make([]int, domain.HoursPerDay)
	for i := range hours {
		hours[i] = i + 1
	}
	return computeHours(rec, hours, DailyWindow)
}

// ComputeAll derives every (parameter, shift window) aggregate from a
// grid snapshot.
func ComputeAll(snapshot map[string]*domain.HourlyRecord) map[string]map[domain.ShiftWindow]domain.ShiftAggregate {
	out := make(map[string]map[domain.ShiftWindow]domain.ShiftAggregate, len(snapshot))
	for paramID, rec := range snapshot {
		perShift := make(map[domain.ShiftWindow]domain.ShiftAggregate, len(domain.AllShiftWindows))
		for _, w := range domain.AllShiftWindows {
			perShift[w] = ComputeWindow(rec, w)
		}
		out[paramID] = perShift
	}
	return out
}
