package store_test

import (
	"testing"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/store"

	"github.com/stretchr/testify/require"
)

func TestRecordToHourly_FlatShape(t *testing.T) {
	rec, err := store.RecordToHourly(store.Record{
		"id":           "r1",
		"parameter_id": "p1",
		"date":         "2024-05-01",
		"plant_unit":   "unit-1",
		"hour3":        95.5,
		"hour3_user":   "alice",
		"hour7":        "standby",
	})
	require.NoError(t, err)
	require.Equal(t, "r1", rec.ID)
	require.Equal(t, "p1", rec.ParameterID)

	cell := rec.Hour(3)
	require.NotNil(t, cell)
	require.True(t, cell.Numeric)
	require.Equal(t, 95.5, cell.Num)
	require.Equal(t, "alice", rec.Editor(3))

	text := rec.Hour(7)
	require.NotNil(t, text)
	require.False(t, text.Numeric)
	require.Equal(t, "standby", text.Text)

	require.Nil(t, rec.Hour(1))
	require.Equal(t, "", rec.Editor(1))
}

func TestRecordToHourly_NestedShape(t *testing.T) {
	rec, err := store.RecordToHourly(store.Record{
		"parameter_id": "p1",
		"hour5": map[string]any{
			"value": 12.0,
			"user":  "bob",
		},
		"hour6": map[string]any{
			"value": nil,
			"user":  "carol",
		},
	})
	require.NoError(t, err)

	cell := rec.Hour(5)
	require.NotNil(t, cell)
	require.Equal(t, 12.0, cell.Num)
	require.Equal(t, "bob", rec.Editor(5))

	// A nested null value is an absent cell, but the attribution stays.
	require.Nil(t, rec.Hour(6))
	require.Equal(t, "carol", rec.Editor(6))
}

func TestRecordToHourly_NumericStringsStayNumeric(t *testing.T) {
	rec, err := store.RecordToHourly(store.Record{
		"parameter_id": "p1",
		"hour1":        "42.5",
	})
	require.NoError(t, err)
	cell := rec.Hour(1)
	require.NotNil(t, cell)
	require.True(t, cell.Numeric)
	require.Equal(t, 42.5, cell.Num)
}

func TestRecordToHourly_MissingParameterID(t *testing.T) {
	_, err := store.RecordToHourly(store.Record{"id": "r1", "hour1": 1.0})
	require.Error(t, err)
}

func TestHourlyToFields_WritesFlatShape(t *testing.T) {
	rec := &domain.HourlyRecord{ParameterID: "p1", Date: "2024-05-01", PlantUnit: "unit-1"}
	rec.SetHour(9, domain.NumberCell(95.5), "alice")
	rec.SetHour(10, domain.TextCell("off"), "bob")

	fields := store.HourlyToFields(rec)
	require.Equal(t, "p1", fields["parameter_id"])
	require.Equal(t, 95.5, fields["hour9"])
	require.Equal(t, "alice", fields["hour9_user"])
	require.Equal(t, "off", fields["hour10"])
	_, ok := fields["hour1"]
	require.False(t, ok)
}

func TestHourPatch_ClearStampsEditor(t *testing.T) {
	patch := store.HourPatch(4, nil, "alice")
	require.Nil(t, patch[store.HourField(4)])
	require.Equal(t, "alice", patch[store.HourUserField(4)])
	require.Len(t, patch, 2)
}

func TestRecordToParameter(t *testing.T) {
	def, err := store.RecordToParameter(store.Record{
		"id":        "p1",
		"name":      "Mill Outlet Temperature",
		"unit":      "°C",
		"category":  "OPC",
		"data_kind": "numeric",
		"min_value": 0.0,
		"max_value": 500.0,
		"max_by_unit": map[string]any{
			"unit-2": 450.0,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "p1", def.ID)
	require.Equal(t, domain.KindNumeric, def.DataKind)
	require.Equal(t, 0.0, *def.Min)
	require.Equal(t, 500.0, *def.Max)

	_, max := def.BoundsFor("unit-2")
	require.Equal(t, 450.0, *max)
	_, max = def.BoundsFor("unit-1")
	require.Equal(t, 500.0, *max)
}

func TestRecordToParameter_DefaultsToNumeric(t *testing.T) {
	def, err := store.RecordToParameter(store.Record{"id": "p1", "name": "X"})
	require.NoError(t, err)
	require.Equal(t, domain.KindNumeric, def.DataKind)

	_, err = store.RecordToParameter(store.Record{"id": "p1"})
	require.Error(t, err)
}

func TestSiloField(t *testing.T) {
	require.Equal(t, "shift1_empty_space", store.SiloField(domain.Shift1, domain.SiloFieldEmptySpace))
	require.Equal(t, "shift3_cont_dead_stock", store.SiloField(domain.Shift3Cont, domain.SiloFieldDeadStock))
}
