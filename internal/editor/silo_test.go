package editor_test

import (
	"context"
	"testing"

	"sipoma-sync/internal/domain"
	"sipoma-sync/internal/editor"
	"sipoma-sync/internal/grid"
	"sipoma-sync/internal/store"

	"github.com/stretchr/testify/require"
)

func TestCommitSiloEdit_CreatesThenUpdates(t *testing.T) {
	mem := store.NewMemoryStore()
	p, _ := newPipeline(t, mem, nil)

	err := p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "12,5", "alice")
	require.NoError(t, err)

	rows, err := mem.Query(context.Background(), store.CollectionSilo, store.Filter{
		"silo_id": "silo-3",
		"date":    testDate,
	}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	field := store.SiloField(domain.Shift1, domain.SiloFieldEmptySpace)
	require.Equal(t, 12.5, rows[0][field])
	require.Equal(t, "alice", rows[0][field+"_user"])
	require.Equal(t, testUnit, rows[0]["plant_unit"])

	// Second edit to another shift lands on the same row.
	err = p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift2, domain.SiloFieldDeadStock, "40", "bob")
	require.NoError(t, err)

	rows, err = mem.Query(context.Background(), store.CollectionSilo, store.Filter{
		"silo_id": "silo-3",
	}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	other := store.SiloField(domain.Shift2, domain.SiloFieldDeadStock)
	require.Equal(t, 40.0, rows[0][other])
	require.Equal(t, "bob", rows[0][other+"_user"])
}

func TestCommitSiloEdit_EmptyValueNullsFieldAndStampsEditor(t *testing.T) {
	mem := store.NewMemoryStore()
	p, _ := newPipeline(t, mem, nil)

	require.NoError(t, p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "12.5", "alice"))
	require.NoError(t, p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "", "bob"))

	rows, err := mem.Query(context.Background(), store.CollectionSilo, store.Filter{
		"silo_id": "silo-3",
	}, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	field := store.SiloField(domain.Shift1, domain.SiloFieldEmptySpace)
	_, present := rows[0][field]
	require.False(t, present)
	require.Equal(t, "bob", rows[0][field+"_user"])
}

func TestCommitSiloEdit_RejectsUnknownField(t *testing.T) {
	p, _ := newPipeline(t, store.NewMemoryStore(), nil)
	err := p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, "volume", "10", "alice")
	require.Error(t, err)
}

func TestCommitSiloEdit_RejectsNonNumericValue(t *testing.T) {
	cs := &recordingStore{RecordStore: store.NewMemoryStore()}
	p, _ := newPipeline(t, cs, nil)

	err := p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "half full", "alice")
	require.ErrorIs(t, err, grid.ErrNotNumeric)
	require.Equal(t, int64(0), cs.calls.Load())
}

func TestCommitSiloEdit_GuardIsPerSiloShiftField(t *testing.T) {
	bs := newBlockingStore()
	p, _ := newPipeline(t, bs, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "10", "alice")
	}()
	<-bs.entered

	err := p.CommitSiloEdit(context.Background(), "silo-3", domain.Shift1, domain.SiloFieldEmptySpace, "11", "bob")
	require.ErrorIs(t, err, editor.ErrCommitInFlight)

	close(bs.release)
	require.NoError(t, <-firstDone)
}
