package ghmm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/ghmm/internal/testutil"
	"github.com/banshee-data/ghmm/internal/timeutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsLifecycle(t *testing.T) {
	t.Parallel()
	m := crossingModel(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	r := NewSessions(m, clock)

	id, err := r.Open()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	clock.Advance(time.Second)
	require.NoError(t, r.Update(id, []float64{0.5, 0}))
	require.NoError(t, r.Predict(id, 2))
	pdf, err := r.Pdf(id, 1, []float64{1, 0})
	require.NoError(t, err)
	assert.Greater(t, pdf, 0.0)

	st, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, start, st.Opened)
	assert.Equal(t, start.Add(time.Second), st.LastUpdate)
	assert.Equal(t, 1, st.Updates)
	assert.Zero(t, st.Degenerate)
	assert.Len(t, st.Belief, m.Graph().NumStates())
	assert.Len(t, st.PredictedMean, 4)
	assert.InDelta(t, st.Belief[st.MostLikely], st.MaxBelief, 0)

	g, err := r.Graph(id)
	require.NoError(t, err)
	testutil.AssertBeliefNormalized(t, g, 1e-9)

	assert.True(t, r.Close(id))
	assert.False(t, r.Close(id))
	_, err = r.Get(id)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(r.Update(id, []float64{0, 0}), ErrSessionNotFound))
}

func TestSessionsDegenerateCount(t *testing.T) {
	t.Parallel()
	m := trainedModel(t, planarParams(0.01, 0.1), testutil.TwoPointBatch())
	r := NewSessions(m, nil)
	id, err := r.Open()
	require.NoError(t, err)

	err = r.Update(id, []float64{100, 100})
	assert.True(t, errors.Is(err, ErrDegenerateLikelihood))
	st, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Degenerate)
	assert.Equal(t, 1, st.Updates)
}

func TestSessionsUntrained(t *testing.T) {
	t.Parallel()
	m, err := New(goalParams())
	require.NoError(t, err)
	_, err = NewSessions(m, nil).Open()
	assert.True(t, errors.Is(err, ErrUntrainedModel))
}

func TestSessionsCloseIdle(t *testing.T) {
	t.Parallel()
	m := crossingModel(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	r := NewSessions(m, clock)

	stale, err := r.Open()
	require.NoError(t, err)
	clock.Advance(time.Minute)
	fresh, err := r.Open()
	require.NoError(t, err)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, r.CloseIdle(45*time.Second))
	_, err = r.Get(stale)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = r.Get(fresh)
	assert.NoError(t, err)
}

func TestSessionsConcurrent(t *testing.T) {
	t.Parallel()
	m := crossingModel(t)
	r := NewSessions(m, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id, err := r.Open()
			if err != nil {
				errs <- err
				return
			}
			for i := 0; i < 10; i++ {
				o := []float64{float64(i) * 0.5, 0}
				if w%2 == 1 {
					o = []float64{0, float64(i) * 0.5}
				}
				if err := r.Update(id, o); err != nil {
					errs <- err
					return
				}
			}
			if err := r.Predict(id, 3); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, workers, r.Len())
}
