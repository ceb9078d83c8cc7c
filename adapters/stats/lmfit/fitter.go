// Package lmfit fits a linear model of log abundance against the design
// matrix, independently for every feature.
package lmfit

import (
	"context"
	"math"
	"runtime"
	"time"

	"proteodiff/adapters/stats/design"
	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
	"proteodiff/internal/logger"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// FeatureFit is the per-feature fit record. Features that could not be fit
// carry Err and no coefficients; DF is zero for them.
type FeatureFit struct {
	FeatureID    string
	Coefficients []float64
	// CovUnscaled is (X'WX)^-1 over the observed samples of this feature.
	CovUnscaled *mat.SymDense
	Sigma       float64
	DF          float64
	NObs        int
	AveExpr     float64
	Iterations  int
	Err         error
}

// HasCoefficients reports whether a contrast can be estimated
func (f *FeatureFit) HasCoefficients() bool {
	return f.Err == nil && f.Coefficients != nil
}

// Testable reports whether a residual variance is available
func (f *FeatureFit) Testable() bool {
	return f.HasCoefficients() && f.DF > 0 && !math.IsNaN(f.Sigma)
}

// Fit is the result of fitting every feature of a matrix
type Fit struct {
	Design   *design.Matrix
	Mode     abundance.FitMode
	Features []FeatureFit
}

// Untestable counts features without a usable variance
func (f *Fit) Untestable() int {
	n := 0
	for i := range f.Features {
		if !f.Features[i].Testable() {
			n++
		}
	}
	return n
}

// Fitter fits features in parallel
type Fitter struct {
	Mode    abundance.FitMode
	Workers int
	// SampleWeights are optional per-sample precision weights, aligned with
	// the design rows. Nil means unweighted.
	SampleWeights []float64
	Robust        RobustOptions
}

// NewFitter creates a fitter. Workers <= 0 uses GOMAXPROCS.
func NewFitter(mode abundance.FitMode, workers int) *Fitter {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Fitter{
		Mode:    mode,
		Workers: workers,
		Robust:  DefaultRobustOptions(),
	}
}

// Fit fits every row of m against d. Per-feature failures are recorded on
// the feature; only matrix-level problems are returned as errors.
func (f *Fitter) Fit(ctx context.Context, m *abundance.Matrix, d *design.Matrix) (*Fit, error) {
	log := logger.Named("lmfit")
	start := time.Now()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.NumSamples() != d.Rows() {
		return nil, core.NewMatrixError("matrix columns do not match design rows")
	}
	for j, s := range m.SampleIDs {
		if d.Samples[j] != s {
			return nil, core.NewMatrixError("matrix sample order differs from design order")
		}
	}
	if f.SampleWeights != nil {
		if len(f.SampleWeights) != d.Rows() {
			return nil, core.NewMatrixError("sample weights do not match design rows")
		}
		for _, w := range f.SampleWeights {
			if !(w > 0) || math.IsInf(w, 0) {
				return nil, core.NewMatrixError("sample weights must be positive and finite")
			}
		}
	}
	if f.Mode == abundance.FitRobust && m.HasMissing() {
		return nil, core.ErrMissingRobust
	}

	out := &Fit{
		Design:   d,
		Mode:     f.Mode,
		Features: make([]FeatureFit, m.NumFeatures()),
	}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (m.NumFeatures() + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < m.NumFeatures(); lo += chunk {
		hi := min(lo+chunk, m.NumFeatures())
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out.Features[i] = f.fitRow(m.FeatureIDs[i], m.Values[i], d)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("mode", string(f.Mode)).
		Int("features", m.NumFeatures()).
		Int("untestable", out.Untestable()).
		Int("workers", workers).
		Dur("elapsed", time.Since(start)).
		Msg("linear models fitted")

	return out, nil
}

// fitRow is a pure function of one row and the shared design
func (f *Fitter) fitRow(id string, row []float64, d *design.Matrix) FeatureFit {
	ff := FeatureFit{FeatureID: id, AveExpr: aveExpr(row), Sigma: math.NaN()}

	p := d.Cols()
	obs := make([]int, 0, len(row))
	for j, v := range row {
		if abundance.Observed(v) {
			obs = append(obs, j)
		}
	}
	ff.NObs = len(obs)
	if len(obs) < p {
		ff.Err = core.NewInsufficientDataError(id, len(obs), p)
		return ff
	}

	x := mat.NewDense(len(obs), p, nil)
	y := mat.NewVecDense(len(obs), nil)
	w := make([]float64, len(obs))
	for k, j := range obs {
		x.SetRow(k, d.X.RawRowView(j))
		y.SetVec(k, row[j])
		w[k] = 1
		if f.SampleWeights != nil {
			w[k] = f.SampleWeights[j]
		}
	}

	var sol *solution
	var err error
	if f.Mode == abundance.FitRobust {
		sol, err = robustFit(x, y, w, f.Robust)
	} else {
		sol, err = weightedLeastSquares(x, y, w)
	}
	if err != nil {
		ff.Err = err
		return ff
	}

	ff.Coefficients = sol.beta
	ff.CovUnscaled = sol.cov
	ff.Iterations = sol.iterations
	ff.DF = float64(len(obs) - p)
	if ff.DF > 0 {
		ff.Sigma = sol.sigma
	}
	return ff
}

type solution struct {
	beta       []float64
	cov        *mat.SymDense
	resid      []float64
	sigma      float64
	iterations int
}

// weightedLeastSquares solves (X'WX)b = X'Wy by Cholesky factorization
func weightedLeastSquares(x *mat.Dense, y *mat.VecDense, w []float64) (*solution, error) {
	n, p := x.Dims()

	xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, x.At(i, j)*sw)
		}
		yw.SetVec(i, y.AtVec(i)*sw)
	}

	xtx := mat.NewSymDense(p, nil)
	xtx.SymOuterK(1, xw.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return nil, core.ErrRankDeficient
	}

	xty := mat.NewVecDense(p, nil)
	xty.MulVec(xw.T(), yw)

	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, xty); err != nil {
		return nil, core.ErrRankDeficient
	}

	cov := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, core.ErrRankDeficient
	}

	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(x, beta)
	resid := make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		resid[i] = r
		rss += w[i] * r * r
	}

	sigma := math.NaN()
	if n > p {
		sigma = math.Sqrt(rss / float64(n-p))
	}

	return &solution{
		beta:  mat.Col(nil, 0, beta),
		cov:   cov,
		resid: resid,
		sigma: sigma,
	}, nil
}

func aveExpr(row []float64) float64 {
	obs := make([]float64, 0, len(row))
	for _, v := range row {
		if abundance.Observed(v) {
			obs = append(obs, v)
		}
	}
	if len(obs) == 0 {
		return math.NaN()
	}
	mean, err := stats.Mean(obs)
	if err != nil {
		return math.NaN()
	}
	return mean
}
