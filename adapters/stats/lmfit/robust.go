package lmfit

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// RobustOptions tune the Huber M-estimator
type RobustOptions struct {
	K         float64
	MaxIter   int
	Tolerance float64
}

// DefaultRobustOptions matches the usual Huber settings (95% efficiency
// under normal errors)
func DefaultRobustOptions() RobustOptions {
	return RobustOptions{K: 1.345, MaxIter: 20, Tolerance: 1e-4}
}

// madConstant rescales the median absolute residual to a normal sd
const madConstant = 0.6745

// robustFit runs iteratively re-weighted least squares with Huber weights.
// prior are the caller's precision weights; the Huber weights multiply them.
// sigma is the MAD of the final residuals over 0.6745. When more than half
// of the residuals are zero (up to rounding) the MAD degenerates; IRLS then
// stops and sigma falls back to the weighted residual standard deviation of
// the last solve, so varying data never yields an infinite t.
func robustFit(x *mat.Dense, y *mat.VecDense, prior []float64, opts RobustOptions) (*solution, error) {
	sol, err := weightedLeastSquares(x, y, prior)
	if err != nil {
		return nil, err
	}

	n := len(prior)
	w := make([]float64, n)
	scale := 0.0
	iter := 0
	for iter = 1; iter <= opts.MaxIter; iter++ {
		scale = residualScale(sol.resid)
		if degenerateScale(scale, sol.resid) {
			break
		}
		for i, r := range sol.resid {
			w[i] = prior[i] * huberWeight(r/scale, opts.K)
		}

		next, err := weightedLeastSquares(x, y, w)
		if err != nil {
			return nil, err
		}
		delta := irlsDelta(sol.resid, next.resid)
		sol = next
		if delta < opts.Tolerance {
			break
		}
	}

	if iter > opts.MaxIter {
		iter = opts.MaxIter
	}

	_, p := x.Dims()
	if n > p {
		if mad := residualScale(sol.resid); !degenerateScale(mad, sol.resid) {
			sol.sigma = mad
		}
	}
	sol.iterations = iter
	return sol, nil
}

func huberWeight(u, k float64) float64 {
	a := math.Abs(u)
	if a <= k {
		return 1
	}
	return k / a
}

func residualScale(resid []float64) float64 {
	abs := make([]float64, len(resid))
	for i, r := range resid {
		abs[i] = math.Abs(r)
	}
	med, err := stats.Median(abs)
	if err != nil {
		return 0
	}
	return med / madConstant
}

// degenerateScale reports a MAD that is zero up to rounding while some
// residuals are not
func degenerateScale(mad float64, resid []float64) bool {
	largest := 0.0
	for _, r := range resid {
		largest = math.Max(largest, math.Abs(r))
	}
	return mad <= 1e-10*largest
}

func irlsDelta(old, next []float64) float64 {
	num, den := 0.0, 0.0
	for i := range old {
		d := old[i] - next[i]
		num += d * d
		den += old[i] * old[i]
	}
	return math.Sqrt(num / math.Max(1e-20, den))
}
