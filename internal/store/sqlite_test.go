package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/raster"
	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/pkg/overpass"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Census cells ---

func TestSQLite_Cells_InsertLoadCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	recs := []census.Record{
		{GridID: "a", X: 4334500, Y: 2684500, Pop: 3, Women: 2, Age: 1, Households: 2},
		{GridID: "b", X: 4335500, Y: 2684500, Pop: 1},
	}
	require.NoError(t, st.InsertRecords(ctx, recs))

	n, err := st.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := st.LoadRecords(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, recs, loaded)
}

func TestSQLite_Cells_UpsertOnReimport(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertRecords(ctx, []census.Record{
		{X: 1500, Y: 2500, Pop: 1},
	}))
	require.NoError(t, st.InsertRecords(ctx, []census.Record{
		{X: 1500, Y: 2500, Pop: 4},
	}))

	loaded, err := st.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 4, loaded[0].Pop)
}

func TestSQLite_Cells_Clear(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertRecords(ctx, []census.Record{{X: 1, Y: 2, Pop: 1}}))
	require.NoError(t, st.ClearRecords(ctx))

	n, err := st.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Runs and phases ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, RunStatusRunning))

	result := &RunResult{Regions: 3, POIs: 120, SuitableCells: 42, TotalPopulation: 1.5e6}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 42, got.Result.SuitableCells)
}

func TestSQLite_RunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateRunStatus(ctx, "missing", RunStatusRunning)
	assert.Error(t, err)

	_, err = st.GetRun(ctx, "missing")
	assert.Error(t, err)
}

func TestSQLite_ListRunsFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, r1.ID, RunStatusFailed))

	failed, err := st.ListRuns(ctx, RunFilter{Status: RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, r1.ID, failed[0].ID)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_Phases(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	phase, err := st.CreatePhase(ctx, run.ID, "census")
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusRunning, phase.Status)

	err = st.CompletePhase(ctx, phase.ID, &PhaseResult{
		Status: PhaseStatusComplete,
		Stats:  map[string]int64{"rows": 100},
	})
	require.NoError(t, err)

	err = st.CompletePhase(ctx, "missing", &PhaseResult{Status: PhaseStatusComplete})
	assert.Error(t, err)
}

// --- Regions ---

func TestSQLite_Regions_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	mask := raster.NewBand(raster.Grid{CellSize: 1000, Cols: 2, Rows: 1, SRID: 3035}, "mask")
	mask.Set(0, 0, 1)
	mask.Set(1, 0, 1)
	regs, err := regions.FromMask(mask, nil)
	require.NoError(t, err)
	regs[0].Name = "Berlin"
	regs[0].CentroidLon = 13.4
	regs[0].CentroidLat = 52.5

	require.NoError(t, st.SaveRegions(ctx, run.ID, regs))

	loaded, err := st.ListRegions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Berlin", loaded[0].Name)
	assert.Equal(t, 2, loaded[0].Cells)
	require.NotNil(t, loaded[0].Polygon)
	assert.InDelta(t, 2*1000*1000, loaded[0].Polygon.Area(), 1e-6)
}

func TestSQLite_Regions_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	require.NoError(t, st.SaveRegions(ctx, run.ID, []*regions.Region{
		{ID: 1, Cells: 1}, {ID: 2, Cells: 1},
	}))
	require.NoError(t, st.SaveRegions(ctx, run.ID, []*regions.Region{
		{ID: 1, Cells: 5},
	}))

	loaded, err := st.ListRegions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 5, loaded[0].Cells)
}

// --- POIs ---

func TestSQLite_POIs_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	pois := []overpass.POI{
		{ID: 1, Type: "node", Lat: 52.5, Lon: 13.4, Name: "Backhaus", Category: "bakery"},
		{ID: 2, Type: "way", Lat: 52.51, Lon: 13.41, Category: "supermarket"},
	}
	require.NoError(t, st.SavePOIs(ctx, run.ID, pois))

	loaded, err := st.ListPOIs(ctx, run.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, pois, loaded)
}

// --- API cache ---

func TestSQLite_APICache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedResponse(ctx, "nominatim", "key1", []byte("payload"), time.Hour))

	data, ok, err := st.GetCachedResponse(ctx, "nominatim", "key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(data))

	_, ok, err = st.GetCachedResponse(ctx, "overpass", "key1")
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped per service")
}

func TestSQLite_APICache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedResponse(ctx, "nominatim", "old", []byte("x"), -time.Hour))

	_, ok, err := st.GetCachedResponse(ctx, "nominatim", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := st.DeleteExpiredResponses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_APICache_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedResponse(ctx, "overpass", "q", []byte("first"), time.Hour))
	require.NoError(t, st.SetCachedResponse(ctx, "overpass", "q", []byte("second"), time.Hour))

	data, ok, err := st.GetCachedResponse(ctx, "overpass", "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", string(data))
}

func TestAPICacheAdapter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	cache := NewAPICache(st, time.Hour)

	require.NoError(t, cache.Put(ctx, "nominatim", "k", []byte("v")))
	data, ok, err := cache.Get(ctx, "nominatim", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(data))
}
