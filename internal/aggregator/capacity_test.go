package aggregator_test

import (
	"context"
	"sync/atomic"
	"testing"

	agg "sipoma-sync/internal/aggregator"
	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingStore wraps a RecordStore and counts the mutating calls, so
// tests can assert on write suppression.
type countingStore struct {
	store.RecordStore
	creates atomic.Int64
	updates atomic.Int64
}

func (c *countingStore) Create(ctx context.Context, collection string, fields store.Record) (store.Record, error) {
	c.creates.Add(1)
	return c.RecordStore.Create(ctx, collection, fields)
}

func (c *countingStore) Update(ctx context.Context, collection, id string, fields store.Record) (store.Record, error) {
	c.updates.Add(1)
	return c.RecordStore.Update(ctx, collection, id, fields)
}

func TestDry(t *testing.T) {
	require.Equal(t, 975.0, agg.Dry(1000, 2.5))
	require.Equal(t, 1000.0, agg.Dry(1000, 0))
	require.Equal(t, 0.0, agg.Dry(0, 5))
}

func moisturePairFixture() ([]domain.MoisturePair, []*domain.ParameterDefinition) {
	defs := []*domain.ParameterDefinition{
		{ID: "h2o-gypsum", Name: "H2O Gypsum", DataKind: domain.KindNumeric},
		{ID: "sp-gypsum", Name: "Setpoint Feeder Gypsum", DataKind: domain.KindNumeric},
		{ID: "h2o-trass", Name: "H2O Trass", DataKind: domain.KindNumeric},
		{ID: "sp-trass", Name: "Setpoint Feeder Trass", DataKind: domain.KindNumeric},
	}
	return domain.BuildMoisturePairs(defs), defs
}

func TestMoisture_AveragesOverHoursWithCompletePairs(t *testing.T) {
	pairs, _ := moisturePairFixture()
	require.Len(t, pairs, 2)

	snapshot := map[string]*domain.HourlyRecord{
		// Hour 1: both gypsum readings present -> 40 * 5 / 100 = 2.
		// Hour 2: H2O present, setpoint missing -> hour excluded.
		"h2o-gypsum": record(map[int]float64{1: 5, 2: 5}),
		"sp-gypsum":  record(map[int]float64{1: 40}),
		// Hour 1: trass pair complete too -> 20 * 10 / 100 = 2,
		// contributions add across materials.
		"h2o-trass": record(map[int]float64{1: 10}),
		"sp-trass":  record(map[int]float64{1: 20}),
	}

	// One counted hour with contribution 2 + 2.
	require.Equal(t, 4.0, agg.Moisture(snapshot, pairs))
}

func TestMoisture_NoCompletePairsIsZero(t *testing.T) {
	pairs, _ := moisturePairFixture()
	snapshot := map[string]*domain.HourlyRecord{
		"h2o-gypsum": record(map[int]float64{1: 5}),
		"sp-trass":   record(map[int]float64{2: 20}),
	}
	require.Equal(t, 0.0, agg.Moisture(snapshot, pairs))
	require.Equal(t, 0.0, agg.Moisture(snapshot, nil))
}

func newCountingStore() *countingStore {
	return &countingStore{RecordStore: store.NewMemoryStore()}
}

// seedUsage inserts a material usage row without counting the write.
func seedUsage(t *testing.T, cs *countingStore, shift domain.ShiftWindow, production float64, category string) store.Record {
	t.Helper()
	fields := store.Record{
		"date":             "2024-05-01",
		"plant_unit":       "unit-1",
		"shift":            string(shift),
		"total_production": production,
	}
	if category != "" {
		fields["category"] = category
	}
	rec, err := cs.RecordStore.Create(context.Background(), store.CollectionMaterialUsage, fields)
	require.NoError(t, err)
	return rec
}

func TestRecalculate_CreatesRecord(t *testing.T) {
	cs := newCountingStore()
	seedUsage(t, cs, domain.Shift1, 600, "OPC")
	seedUsage(t, cs, domain.Shift2, 400, "")

	d := agg.NewCapacityDeriver(cs, zap.NewNop())
	err := d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil)
	require.NoError(t, err)

	rows, err := cs.Query(context.Background(), store.CollectionCapacity, store.Filter{
		"date":       "2024-05-01",
		"plant_unit": "unit-1",
	}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, err := store.RecordToCapacity(rows[0])
	require.NoError(t, err)
	require.Equal(t, "OPC", got.Category)
	require.Equal(t, 1000.0, got.Wet)
	require.Equal(t, 0.0, got.Moisture)
	require.Equal(t, 1000.0, got.Dry)
}

func TestRecalculate_SuppressesImmaterialUpdate(t *testing.T) {
	cs := newCountingStore()
	seedUsage(t, cs, domain.Shift1, 1000, "OPC")

	d := agg.NewCapacityDeriver(cs, zap.NewNop())
	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil))

	createsAfterFirst := cs.creates.Load()
	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil))

	// Unchanged inputs: the second run must not write at all.
	require.Equal(t, createsAfterFirst, cs.creates.Load())
	require.Equal(t, int64(0), cs.updates.Load())
}

func TestRecalculate_UpdatesOnMaterialChange(t *testing.T) {
	cs := newCountingStore()
	rec := seedUsage(t, cs, domain.Shift1, 1000, "OPC")

	d := agg.NewCapacityDeriver(cs, zap.NewNop())
	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil))

	_, err := cs.RecordStore.Update(context.Background(), store.CollectionMaterialUsage, rec.ID(), store.Record{
		"total_production": 1200.0,
	})
	require.NoError(t, err)

	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil))
	require.Equal(t, int64(1), cs.updates.Load())

	rows, err := cs.Query(context.Background(), store.CollectionCapacity, store.Filter{
		"date": "2024-05-01",
	}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got, err := store.RecordToCapacity(rows[0])
	require.NoError(t, err)
	require.Equal(t, 1200.0, got.Wet)
}

func TestRecalculate_SkipsWhenNoCategory(t *testing.T) {
	cs := newCountingStore()
	seedUsage(t, cs, domain.Shift1, 500, "")

	d := agg.NewCapacityDeriver(cs, zap.NewNop())
	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", nil, nil))

	rows, err := cs.Query(context.Background(), store.CollectionCapacity, store.Filter{}, "")
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Equal(t, int64(0), cs.creates.Load())
}

func TestRecalculate_CategoryFallsBackToDefinitions(t *testing.T) {
	cs := newCountingStore()
	seedUsage(t, cs, domain.Shift1, 500, "")

	defs := []*domain.ParameterDefinition{
		{ID: "p1", Name: "Counter Feeder Clinker", Category: "PCC"},
	}
	d := agg.NewCapacityDeriver(cs, zap.NewNop())
	require.NoError(t, d.Recalculate(context.Background(), "2024-05-01", "unit-1", defs, nil))

	rows, err := cs.Query(context.Background(), store.CollectionCapacity, store.Filter{}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "PCC", rows[0].String("category"))
}
