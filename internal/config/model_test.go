package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/ghmm/internal/ghmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	assert.Equal(t, 4, cfg.GetFullDim())
	assert.Equal(t, 2, cfg.GetObservedDim())
	assert.Equal(t, 4.0, cfg.GetFullSigma()[2][2])
	assert.Equal(t, 0.01, cfg.GetEpsilon())
	assert.Equal(t, ghmm.FallbackHold, cfg.GetDegenerateFallback())

	// The shipped defaults must build a model.
	_, err := ghmm.New(cfg.Params())
	require.NoError(t, err)
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &ModelConfig{}
	require.NoError(t, cfg.Validate())

	p := cfg.Params()
	assert.Equal(t, 4, p.FullDim)
	assert.Equal(t, 2, p.ObservedDim)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, p.Sigma)
	assert.Len(t, p.FullSigma, 4)
	assert.Equal(t, 1.0, p.InsertionDistance)
	assert.Equal(t, 0.001, p.StatePrior)
	assert.Equal(t, 0.001, p.TransitionPrior)
	assert.Equal(t, 10, cfg.GetTrackHorizon())
	assert.False(t, cfg.GetDebug())
}

func TestLoadModelConfig(t *testing.T) {
	path := writeConfig(t, "model.json", `{
  "full_dim": 2,
  "observed_dim": 2,
  "insertion_distance": 0.5,
  "degenerate_fallback": "uniform",
  "debug": true
}`)

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.GetFullDim())
	assert.Equal(t, 0.5, cfg.GetInsertionDistance())
	assert.Equal(t, ghmm.FallbackUniform, cfg.GetDegenerateFallback())
	assert.True(t, cfg.GetDebug())
	// Omitted fields keep their defaults.
	assert.Equal(t, 0.01, cfg.GetEpsilon())
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, cfg.GetFullSigma())
}

func TestLoadModelConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "extension", file: "model.yaml", body: `{}`, wantErr: ".json extension"},
		{name: "syntax", file: "bad.json", body: `{"epsilon":`, wantErr: "parse config JSON"},
		{name: "epsilon", file: "eps.json", body: `{"epsilon": 2}`, wantErr: "epsilon"},
		{name: "observed above full", file: "dims.json", body: `{"full_dim": 2, "observed_dim": 3}`, wantErr: "exceeds full_dim"},
		{name: "sigma rows", file: "sigma.json", body: `{"observed_dim": 2, "sigma": [[1]]}`, wantErr: "sigma has 1 rows"},
		{name: "fallback", file: "fb.json", body: `{"degenerate_fallback": "panic"}`, wantErr: "degenerate_fallback"},
		{name: "prior", file: "prior.json", body: `{"state_prior": -1}`, wantErr: "state_prior"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadModelConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := LoadModelConfig(filepath.Join(t.TempDir(), "none.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stat config file")
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"debug": false` + strings.Repeat(" ", 1024*1024) + `}`
		_, err := LoadModelConfig(writeConfig(t, "big.json", body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestValidatePointers(t *testing.T) {
	cfg := &ModelConfig{
		FullDim:            ptrInt(3),
		ObservedDim:        ptrInt(1),
		InsertionDistance:  ptrFloat64(2),
		DegenerateFallback: ptrString("hold"),
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, [][]float64{{1}}, cfg.GetSigma())

	cfg.InsertionDistance = ptrFloat64(0)
	assert.Error(t, cfg.Validate())
}
