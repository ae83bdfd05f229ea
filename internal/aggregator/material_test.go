package aggregator_test

import (
	"testing"

	agg "sipoma-sync/internal/aggregator"
	"sipoma-sync/internal/domain"

	"github.com/stretchr/testify/require"
)

func counterDef(id, name string) *domain.ParameterDefinition {
	return &domain.ParameterDefinition{
		ID:       id,
		Name:     name,
		DataKind: domain.KindNumeric,
	}
}

func TestBuildMaterialUsage_ComponentDeltasAndTotal(t *testing.T) {
	defs := map[string]*domain.ParameterDefinition{
		"p-clinker": counterDef("p-clinker", "Counter Feeder Clinker"),
		"p-gypsum":  counterDef("p-gypsum", "Counter Feeder Gypsum"),
		"p-temp":    counterDef("p-temp", "Mill Outlet Temperature"),
	}
	snapshot := map[string]*domain.HourlyRecord{
		// Shift 1 (hours 8-15): meter standings, delta 150.
		"p-clinker": record(map[int]float64{8: 1000, 12: 1080, 15: 1150}),
		// Delta 20.
		"p-gypsum": record(map[int]float64{9: 200, 14: 220}),
		// Not a counter feeder, must not leak into the usage rows.
		"p-temp": record(map[int]float64{8: 95, 9: 96}),
	}

	totals := agg.BuildMaterialUsage("2024-05-01", "unit-1", snapshot, defs)
	require.Len(t, totals, len(domain.AllShiftWindows))

	byShift := make(map[domain.ShiftWindow]*domain.MaterialUsageTotal)
	for _, u := range totals {
		byShift[u.Shift] = u
	}

	shift1 := byShift[domain.Shift1]
	require.NotNil(t, shift1)
	require.Equal(t, 150.0, shift1.Components[domain.MaterialClinker])
	require.Equal(t, 20.0, shift1.Components[domain.MaterialGypsum])
	require.Equal(t, 170.0, shift1.TotalProduction)

	// Windows without readings stay at zero.
	shift2 := byShift[domain.Shift2]
	require.NotNil(t, shift2)
	require.Equal(t, 0.0, shift2.TotalProduction)
}

func TestBuildMaterialUsage_FineTrassDoesNotMatchTrass(t *testing.T) {
	defs := map[string]*domain.ParameterDefinition{
		"p-fine": counterDef("p-fine", "Counter Feeder Fine Trass"),
	}
	snapshot := map[string]*domain.HourlyRecord{
		"p-fine": record(map[int]float64{8: 10, 15: 40}),
	}

	totals := agg.BuildMaterialUsage("2024-05-01", "unit-1", snapshot, defs)
	byShift := make(map[domain.ShiftWindow]*domain.MaterialUsageTotal)
	for _, u := range totals {
		byShift[u.Shift] = u
	}
	shift1 := byShift[domain.Shift1]
	require.Equal(t, 30.0, shift1.Components[domain.MaterialFineTrass])
	require.Equal(t, 0.0, shift1.Components[domain.MaterialTrass])
}

func TestMaterialFor_Keywords(t *testing.T) {
	cases := []struct {
		name      string
		component domain.MaterialComponent
		ok        bool
	}{
		{"Counter Feeder Clinker", domain.MaterialClinker, true},
		{"Counter Feeder Fly Ash", domain.MaterialFlyAsh, true},
		{"Counter Feeder CKD", domain.MaterialCKD, true},
		{"Counter Feeder Limestone Mill 2", domain.MaterialLimestone, true},
		// Not counter feeders, or no known material keyword.
		{"Feeder Clinker", "", false},
		{"Counter Feeder Sand", "", false},
		{"Clinker Silo Level", "", false},
	}
	for _, tc := range cases {
		component, ok := domain.MaterialFor(tc.name)
		require.Equal(t, tc.ok, ok, tc.name)
		require.Equal(t, tc.component, component, tc.name)
	}
}
