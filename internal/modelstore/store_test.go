package modelstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/ghmm/internal/ghmm"
	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/testutil"
	"github.com/banshee-data/ghmm/internal/timeutil"
	"github.com/banshee-data/ghmm/internal/topology"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testParams() ghmm.Params {
	return ghmm.Params{
		FullDim:            4,
		ObservedDim:        2,
		FullSigma:          testutil.DiagonalRows(1, 1, 4, 4),
		Sigma:              testutil.DiagonalRows(1, 1),
		InsertionDistance:  1,
		Epsilon:            0.01,
		StatePrior:         0.001,
		TransitionPrior:    0.001,
		DegenerateFallback: ghmm.FallbackUniform,
	}
}

func learned(t *testing.T, n int) *ghmm.Model {
	t.Helper()
	m, err := ghmm.New(testParams())
	require.NoError(t, err)
	_, err = m.Learn(testutil.CrossingBatch(n, 12, 0.5))
	require.NoError(t, err)
	return m
}

// graphDump flattens the persisted fields of a graph for comparison.
type graphDump struct {
	States []topology.State
	Edges  []topology.Transition
}

func dump(g *topology.Graph) graphDump {
	g.ResetAccumulators()
	var d graphDump
	for _, s := range g.States() {
		d.States = append(d.States, *s)
	}
	for _, e := range g.Transitions() {
		d.Edges = append(d.Edges, *e)
	}
	return d
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, db.MigrateUp())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	store := NewStore(db.DB, clock)
	m := learned(t, 6)

	id, err := store.Save(m, "crossing")
	require.NoError(t, err)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ModelID)
	assert.Equal(t, clock.Now().UnixNano(), rec.CreatedAtNs)
	assert.Nil(t, rec.UpdatedAtNs)
	assert.Equal(t, "crossing", rec.Description)
	assert.Equal(t, 6, rec.TrajectoryCount)
	assert.Equal(t, m.Graph().NumStates(), rec.States)
	assert.Equal(t, m.Graph().NumTransitions(), rec.Transitions)
	if diff := cmp.Diff(testParams(), rec.Params); diff != "" {
		t.Errorf("params differ (-want +got):\n%s", diff)
	}

	loaded, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, m.TrajectoryCount(), loaded.TrajectoryCount())
	if diff := cmp.Diff(dump(m.Graph()), dump(loaded.Graph())); diff != "" {
		t.Errorf("graph differs after round trip (-saved +loaded):\n%s", diff)
	}

	// A loaded model tracks like the original.
	a, b := topology.New(4), topology.New(4)
	require.NoError(t, m.InitTrack(a))
	require.NoError(t, loaded.InitTrack(b))
	for _, o := range [][]float64{{0, 0}, {0.5, 0}, {1, 0}} {
		require.NoError(t, m.Update(a, o))
		require.NoError(t, loaded.Update(b, o))
	}
	pa, err := m.ObservationPdf(a, 2, []float64{1.5, 0})
	require.NoError(t, err)
	pb, err := loaded.ObservationPdf(b, 2, []float64{1.5, 0})
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestReplace(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	store := NewStore(db.DB, clock)
	m := learned(t, 2)

	id, err := store.Save(m, "")
	require.NoError(t, err)

	_, err = m.Learn(testutil.CrossingBatch(4, 12, 0.5))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	require.NoError(t, store.Replace(id, m))

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.TrajectoryCount)
	require.NotNil(t, rec.UpdatedAtNs)
	assert.Equal(t, clock.Now().UnixNano(), *rec.UpdatedAtNs)
	assert.Empty(t, rec.Description)

	loaded, err := store.Load(id)
	require.NoError(t, err)
	if diff := cmp.Diff(dump(m.Graph()), dump(loaded.Graph())); diff != "" {
		t.Errorf("graph differs after replace (-want +got):\n%s", diff)
	}

	err = store.Replace("missing", m)
	assert.True(t, errors.Is(err, ErrModelNotFound), "got %v", err)
}

func TestListAndDelete(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	store := NewStore(db.DB, clock)

	first, err := store.Save(learned(t, 2), "first")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := store.Save(learned(t, 4), "second")
	require.NoError(t, err)

	recs, err := store.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second, recs[0].ModelID, "newest first")
	assert.Equal(t, first, recs[1].ModelID)

	require.NoError(t, store.Delete(first))
	var orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM model_states WHERE model_id = ?`, first).Scan(&orphans))
	assert.Zero(t, orphans, "states cascade with the model")

	_, err = store.Load(first)
	assert.True(t, errors.Is(err, ErrModelNotFound))
	assert.True(t, errors.Is(store.Delete(first), ErrModelNotFound))

	recs, err = store.List()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCentroidCodec(t *testing.T) {
	t.Parallel()
	in := []float64{0, -1.5, 3.25e-300, 1e300}
	out, err := decodeCentroid(encodeCentroid(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeCentroid([]byte{1, 2, 3})
	assert.Error(t, err)
}
