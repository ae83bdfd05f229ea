package aggregator_test

import (
	"testing"

	agg "sipoma-sync/internal/aggregator"
	"sipoma-sync/internal/domain"

	"github.com/stretchr/testify/require"
)

func record(values map[int]float64) *domain.HourlyRecord {
	rec := &domain.HourlyRecord{ParameterID: "p1", Date: "2024-05-01", PlantUnit: "unit-1"}
	for h, v := range values {
		rec.SetHour(h, domain.NumberCell(v), "tester")
	}
	return rec
}

func TestComputeWindow_TotalAverageMinMax(t *testing.T) {
	// Shift 1 covers hours 8-15.
	rec := record(map[int]float64{8: 10, 9: 20, 12: 30})

	out := agg.ComputeWindow(rec, domain.Shift1)
	require.Equal(t, 60.0, out.Total)
	require.Equal(t, 3, out.Count)
	require.Equal(t, out.Total/float64(out.Count), out.Average)
	require.Equal(t, 10.0, out.Min)
	require.Equal(t, 30.0, out.Max)
}

func TestComputeWindow_EmptyWindowAveragesZero(t *testing.T) {
	rec := record(map[int]float64{8: 10}) // nothing in shift 2

	out := agg.ComputeWindow(rec, domain.Shift2)
	require.Equal(t, 0, out.Count)
	require.Equal(t, 0.0, out.Total)
	require.Equal(t, 0.0, out.Average)
	require.Equal(t, 0.0, out.Counter)
}

func TestComputeWindow_CounterUsesFirstAndLastPresent(t *testing.T) {
	// Hours 1-5 shaped [null, 10, null, 15, null]: the counter is the
	// delta between the first and last present values, not positional
	// endpoints.
	rec := record(map[int]float64{2: 10, 4: 15})

	out := agg.ComputeWindow(rec, domain.Shift3Cont)
	require.Equal(t, 5.0, out.Counter)
}

func TestComputeWindow_SingleValueCounterIsZero(t *testing.T) {
	rec := record(map[int]float64{9: 42})
	out := agg.ComputeWindow(rec, domain.Shift1)
	require.Equal(t, 0.0, out.Counter)
}

func TestComputeWindow_SkipsTextCells(t *testing.T) {
	rec := record(map[int]float64{8: 10})
	rec.SetHour(9, domain.TextCell("standby"), "tester")

	out := agg.ComputeWindow(rec, domain.Shift1)
	require.Equal(t, 1, out.Count)
	require.Equal(t, 10.0, out.Total)
}

func TestComputeDaily_SpansAllHours(t *testing.T) {
	rec := record(map[int]float64{1: 5, 12: 10, 24: 15})

	out := agg.ComputeDaily(rec)
	require.Equal(t, 30.0, out.Total)
	require.Equal(t, 3, out.Count)
	require.Equal(t, 10.0, out.Average)
	require.Equal(t, 5.0, out.Min)
	require.Equal(t, 15.0, out.Max)
	require.Equal(t, 10.0, out.Counter) // 15 - 5
}

func TestComputeAll_IsIdempotent(t *testing.T) {
	snapshot := map[string]*domain.HourlyRecord{
		"p1": record(map[int]float64{3: 1, 8: 2, 16: 3, 23: 4}),
		"p2": record(map[int]float64{10: 100, 11: 50}),
	}

	first := agg.ComputeAll(snapshot)
	second := agg.ComputeAll(snapshot)
	require.Equal(t, first, second)

	// Every window of every parameter holds the average invariant.
	for _, perShift := range first {
		for _, out := range perShift {
			if out.Count > 0 {
				require.Equal(t, out.Total/float64(out.Count), out.Average)
			} else {
				require.Equal(t, 0.0, out.Average)
			}
		}
	}
}

func TestShiftWindows_PartitionIsFixed(t *testing.T) {
	// The hour->shift mapping is a core invariant: every hour belongs
	// to exactly one window.
	seen := make(map[int]domain.ShiftWindow)
	for _, w := range domain.AllShiftWindows {
		for _, h := range w.Hours() {
			_, dup := seen[h]
			require.False(t, dup, "hour %d in two windows", h)
			seen[h] = w
		}
	}
	require.Len(t, seen, domain.HoursPerDay)
	require.Equal(t, domain.Shift3Cont, seen[1])
	require.Equal(t, domain.Shift3Cont, seen[7])
	require.Equal(t, domain.Shift1, seen[8])
	require.Equal(t, domain.Shift1, seen[15])
	require.Equal(t, domain.Shift2, seen[16])
	require.Equal(t, domain.Shift2, seen[22])
	require.Equal(t, domain.Shift3, seen[23])
	require.Equal(t, domain.Shift3, seen[24])
}
