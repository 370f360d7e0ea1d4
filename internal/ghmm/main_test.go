package ghmm

import (
	"os"
	"testing"

	"github.com/banshee-data/ghmm/internal/density"
	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// planarParams is a 2-D model with isotropic emission variance v.
func planarParams(v, prior float64) Params {
	return Params{
		FullDim:           2,
		ObservedDim:       2,
		FullSigma:         testutil.DiagonalRows(1, 1),
		Sigma:             testutil.DiagonalRows(v, v),
		InsertionDistance: 0.5,
		Epsilon:           0.01,
		StatePrior:        prior,
		TransitionPrior:   prior,
	}
}

// goalParams mirrors the shipped defaults: position plus goal, with only
// the position observed.
func goalParams() Params {
	return Params{
		FullDim:           4,
		ObservedDim:       2,
		FullSigma:         testutil.DiagonalRows(1, 1, 4, 4),
		Sigma:             testutil.DiagonalRows(1, 1),
		InsertionDistance: 1,
		Epsilon:           0.01,
		StatePrior:        0.001,
		TransitionPrior:   0.001,
	}
}

func trainedModel(t *testing.T, p Params, batch [][][]float64) *Model {
	t.Helper()
	m, err := New(p)
	require.NoError(t, err)
	_, err = m.Learn(batch)
	require.NoError(t, err)
	return m
}

func unitPlanarGaussian(t *testing.T) *density.Gaussian {
	t.Helper()
	em, err := density.NewGaussian(density.Diagonal(1, 1))
	require.NoError(t, err)
	return em
}
