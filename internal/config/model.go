// Package config loads GHMM model parameters from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/ghmm/internal/ghmm"
)

// DefaultConfigPath is the path to the canonical model defaults file.
const DefaultConfigPath = "config/ghmm.defaults.json"

// ModelConfig is the on-disk form of the model parameters plus the
// tracking options used by the command line tools. Every field is
// optional; the Get* methods supply defaults for omitted fields.
type ModelConfig struct {
	FullDim     *int `json:"full_dim,omitempty"`
	ObservedDim *int `json:"observed_dim,omitempty"`

	// Covariances as row-major matrices. Omitted means identity.
	FullSigma [][]float64 `json:"full_sigma,omitempty"`
	Sigma     [][]float64 `json:"sigma,omitempty"`

	InsertionDistance  *float64 `json:"insertion_distance,omitempty"`
	Epsilon            *float64 `json:"epsilon,omitempty"`
	StatePrior         *float64 `json:"state_prior,omitempty"`
	TransitionPrior    *float64 `json:"transition_prior,omitempty"`
	DegenerateFallback *string  `json:"degenerate_fallback,omitempty"` // "hold" or "uniform"

	// Tracking options
	TrackHorizon *int  `json:"track_horizon,omitempty"`
	Debug        *bool `json:"debug,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// LoadModelConfig loads a ModelConfig from a JSON file. The file must
// have a .json extension and be at most 1MB. Omitted fields keep their
// defaults, so partial configs are safe.
func LoadModelConfig(path string) (*ModelConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ModelConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *ModelConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadModelConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the set fields. Covariance positive-definiteness is
// checked when the model is constructed.
func (c *ModelConfig) Validate() error {
	if c.FullDim != nil && *c.FullDim <= 0 {
		return fmt.Errorf("full_dim must be positive, got %d", *c.FullDim)
	}
	if c.ObservedDim != nil && *c.ObservedDim <= 0 {
		return fmt.Errorf("observed_dim must be positive, got %d", *c.ObservedDim)
	}
	if c.GetObservedDim() > c.GetFullDim() {
		return fmt.Errorf("observed_dim %d exceeds full_dim %d", c.GetObservedDim(), c.GetFullDim())
	}
	if c.FullSigma != nil && len(c.FullSigma) != c.GetFullDim() {
		return fmt.Errorf("full_sigma has %d rows, want %d", len(c.FullSigma), c.GetFullDim())
	}
	if c.Sigma != nil && len(c.Sigma) != c.GetObservedDim() {
		return fmt.Errorf("sigma has %d rows, want %d", len(c.Sigma), c.GetObservedDim())
	}
	if c.InsertionDistance != nil && *c.InsertionDistance <= 0 {
		return fmt.Errorf("insertion_distance must be positive, got %f", *c.InsertionDistance)
	}
	if c.Epsilon != nil && (*c.Epsilon <= 0 || *c.Epsilon > 1) {
		return fmt.Errorf("epsilon must be in (0, 1], got %f", *c.Epsilon)
	}
	if c.StatePrior != nil && *c.StatePrior < 0 {
		return fmt.Errorf("state_prior must be non-negative, got %f", *c.StatePrior)
	}
	if c.TransitionPrior != nil && *c.TransitionPrior < 0 {
		return fmt.Errorf("transition_prior must be non-negative, got %f", *c.TransitionPrior)
	}
	if c.DegenerateFallback != nil {
		switch ghmm.DegenerateFallback(*c.DegenerateFallback) {
		case ghmm.FallbackHold, ghmm.FallbackUniform:
		default:
			return fmt.Errorf("degenerate_fallback must be %q or %q, got %q",
				ghmm.FallbackHold, ghmm.FallbackUniform, *c.DegenerateFallback)
		}
	}
	if c.TrackHorizon != nil && *c.TrackHorizon < 0 {
		return fmt.Errorf("track_horizon must be non-negative, got %d", *c.TrackHorizon)
	}
	return nil
}

// GetFullDim returns full_dim or the default.
func (c *ModelConfig) GetFullDim() int {
	if c.FullDim == nil {
		return 4 // position + goal in the plane
	}
	return *c.FullDim
}

// GetObservedDim returns observed_dim or the default.
func (c *ModelConfig) GetObservedDim() int {
	if c.ObservedDim == nil {
		return 2
	}
	return *c.ObservedDim
}

// GetFullSigma returns full_sigma or the FullDim identity.
func (c *ModelConfig) GetFullSigma() [][]float64 {
	if c.FullSigma == nil {
		return identity(c.GetFullDim())
	}
	return c.FullSigma
}

// GetSigma returns sigma or the ObservedDim identity.
func (c *ModelConfig) GetSigma() [][]float64 {
	if c.Sigma == nil {
		return identity(c.GetObservedDim())
	}
	return c.Sigma
}

// GetInsertionDistance returns insertion_distance or the default.
func (c *ModelConfig) GetInsertionDistance() float64 {
	if c.InsertionDistance == nil {
		return 1.0
	}
	return *c.InsertionDistance
}

// GetEpsilon returns epsilon or the default.
func (c *ModelConfig) GetEpsilon() float64 {
	if c.Epsilon == nil {
		return 0.01
	}
	return *c.Epsilon
}

// GetStatePrior returns state_prior or the default.
func (c *ModelConfig) GetStatePrior() float64 {
	if c.StatePrior == nil {
		return 0.001
	}
	return *c.StatePrior
}

// GetTransitionPrior returns transition_prior or the default.
func (c *ModelConfig) GetTransitionPrior() float64 {
	if c.TransitionPrior == nil {
		return 0.001
	}
	return *c.TransitionPrior
}

// GetDegenerateFallback returns degenerate_fallback or the default.
func (c *ModelConfig) GetDegenerateFallback() ghmm.DegenerateFallback {
	if c.DegenerateFallback == nil {
		return ghmm.FallbackHold
	}
	return ghmm.DegenerateFallback(*c.DegenerateFallback)
}

// GetTrackHorizon returns track_horizon or the default.
func (c *ModelConfig) GetTrackHorizon() int {
	if c.TrackHorizon == nil {
		return 10
	}
	return *c.TrackHorizon
}

// GetDebug returns debug or the default.
func (c *ModelConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}

// Params converts the configuration into model parameters.
func (c *ModelConfig) Params() ghmm.Params {
	return ghmm.Params{
		FullDim:            c.GetFullDim(),
		ObservedDim:        c.GetObservedDim(),
		FullSigma:          c.GetFullSigma(),
		Sigma:              c.GetSigma(),
		InsertionDistance:  c.GetInsertionDistance(),
		Epsilon:            c.GetEpsilon(),
		StatePrior:         c.GetStatePrior(),
		TransitionPrior:    c.GetTransitionPrior(),
		DegenerateFallback: c.GetDegenerateFallback(),
	}
}

func identity(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = 1
	}
	return rows
}
