// Package density provides the emission model and distance measure used
// by the GHMM: a fixed-covariance Gaussian over the observed subspace and
// a Mahalanobis metric over the full feature space.
package density

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNotSquare indicates a covariance given as a non-square row set.
	ErrNotSquare = errors.New("density: covariance is not square")
	// ErrNotSymmetric indicates a covariance that is not symmetric.
	ErrNotSymmetric = errors.New("density: covariance is not symmetric")
	// ErrNotPositiveDefinite indicates a covariance whose Cholesky factorization failed.
	ErrNotPositiveDefinite = errors.New("density: covariance is not positive definite")
)

// symmetryTolerance bounds |a_ij - a_ji| when reading covariances from rows.
const symmetryTolerance = 1e-12

// SymFromRows builds a symmetric matrix from row-major data, rejecting
// ragged or asymmetric input.
func SymFromRows(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty", ErrNotSquare)
	}
	data := make([]float64, 0, n*n)
	for i, r := range rows {
		if len(r) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotSquare, i, len(r), n)
		}
		data = append(data, r...)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > symmetryTolerance {
				return nil, fmt.Errorf("%w: [%d,%d]=%g vs [%d,%d]=%g", ErrNotSymmetric, i, j, rows[i][j], j, i, rows[j][i])
			}
		}
	}
	return mat.NewSymDense(n, data), nil
}

// Diagonal returns a diagonal covariance with the given variances.
func Diagonal(variances ...float64) *mat.SymDense {
	s := mat.NewSymDense(len(variances), nil)
	for i, v := range variances {
		s.SetSym(i, i, v)
	}
	return s
}

// Rows returns the row-major contents of a symmetric matrix.
func Rows(s mat.Symmetric) [][]float64 {
	n := s.SymmetricDim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = s.At(i, j)
		}
	}
	return out
}

func factorize(sigma mat.Symmetric) (*mat.Cholesky, error) {
	if sigma == nil || sigma.SymmetricDim() == 0 {
		return nil, fmt.Errorf("%w: empty", ErrNotSquare)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); !ok {
		return nil, ErrNotPositiveDefinite
	}
	return &chol, nil
}

// Gaussian is a multivariate normal density with a fixed covariance and a
// caller-supplied mean. Only the first Dim components of the mean and the
// observation are read, which lets a full-dimensional centroid serve as
// the mean of an observed-subspace density.
type Gaussian struct {
	dim     int
	chol    *mat.Cholesky
	logNorm float64 // -(k/2)log(2π) - ½log|Σ|
}

// NewGaussian factors sigma once; it is reused for every evaluation.
func NewGaussian(sigma mat.Symmetric) (*Gaussian, error) {
	chol, err := factorize(sigma)
	if err != nil {
		return nil, err
	}
	k := float64(sigma.SymmetricDim())
	return &Gaussian{
		dim:     sigma.SymmetricDim(),
		chol:    chol,
		logNorm: -0.5*k*math.Log(2*math.Pi) - 0.5*chol.LogDet(),
	}, nil
}

// Dim returns the dimensionality of the density.
func (g *Gaussian) Dim() int { return g.dim }

// LogDensity returns log N(x; mean, Σ). mean and x must each have at
// least Dim components.
func (g *Gaussian) LogDensity(mean, x []float64) float64 {
	d := stat.Mahalanobis(
		mat.NewVecDense(g.dim, x[:g.dim]),
		mat.NewVecDense(g.dim, mean[:g.dim]),
		g.chol,
	)
	return g.logNorm - 0.5*d*d
}

// Density returns N(x; mean, Σ). Far from the mean the result underflows
// to exactly zero; callers treat that as an incompatible observation.
func (g *Gaussian) Density(mean, x []float64) float64 {
	return math.Exp(g.LogDensity(mean, x))
}

// Mahalanobis measures distance in the full feature space under a fixed
// covariance.
type Mahalanobis struct {
	dim  int
	chol *mat.Cholesky
}

// NewMahalanobis factors sigma once.
func NewMahalanobis(sigma mat.Symmetric) (*Mahalanobis, error) {
	chol, err := factorize(sigma)
	if err != nil {
		return nil, err
	}
	return &Mahalanobis{dim: sigma.SymmetricDim(), chol: chol}, nil
}

// Dim returns the dimensionality of the metric.
func (m *Mahalanobis) Dim() int { return m.dim }

// Distance returns sqrt((a-b)ᵀ Σ⁻¹ (a-b)).
func (m *Mahalanobis) Distance(a, b []float64) float64 {
	return stat.Mahalanobis(
		mat.NewVecDense(m.dim, a[:m.dim]),
		mat.NewVecDense(m.dim, b[:m.dim]),
		m.chol,
	)
}
