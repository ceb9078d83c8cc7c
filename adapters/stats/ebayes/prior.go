package ebayes

import (
	"fmt"
	"math"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"

	"github.com/montanaflynn/stats"
)

// FitPrior estimates a scaled inverse chi-squared prior for the variances
// by matching the mean and variance of log(s²) to their theoretical
// moments. variances[i] has dfs[i] residual degrees of freedom; entries
// with non-finite values or df <= 0 are ignored.
//
// When the moments cannot be matched (fewer than two usable variances, a
// non-positive excess variance, or a non-converging solve) it returns a
// prior with D0 = 0 together with a ModerationFitError; callers apply no
// shrinkage and report the error as a warning.
func FitPrior(variances, dfs []float64) (abundance.Prior, error) {
	x := make([]float64, 0, len(variances))
	d := make([]float64, 0, len(variances))
	for i, v := range variances {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < -1e-15 {
			continue
		}
		if math.IsNaN(dfs[i]) || math.IsInf(dfs[i], 0) || dfs[i] <= 1e-15 {
			continue
		}
		x = append(x, math.Max(v, 0))
		d = append(d, dfs[i])
	}

	if len(x) < 2 {
		return abundance.Prior{D0: 0, S02: pooled(x, d)}, core.NewModerationFitError(
			fmt.Sprintf("need at least two testable features, have %d", len(x)))
	}

	// Zero variances would send log to -Inf; offset them relative to the median.
	med, err := stats.Median(x)
	if err != nil {
		return abundance.Prior{}, core.NewModerationFitError(err.Error())
	}
	if med == 0 {
		med = 1
	}
	floor := 1e-5 * med

	e := make([]float64, len(x))
	tri := make([]float64, len(x))
	for i := range x {
		half := d[i] / 2
		e[i] = math.Log(math.Max(x[i], floor)) - digamma(half) + math.Log(half)
		tri[i] = trigamma(half)
	}

	emean, err := stats.Mean(e)
	if err != nil {
		return abundance.Prior{}, core.NewModerationFitError(err.Error())
	}
	evar, err := stats.SampleVariance(e)
	if err != nil {
		return abundance.Prior{}, core.NewModerationFitError(err.Error())
	}
	triMean, _ := stats.Mean(tri)
	evar -= triMean

	fallback := abundance.Prior{D0: 0, S02: math.Exp(emean)}
	if !(evar > 0) {
		return fallback, core.NewModerationFitError(
			fmt.Sprintf("log-variance spread %.4g is not above its sampling variance", evar))
	}

	half, err := trigammaInverse(evar)
	if err != nil {
		return fallback, core.NewModerationFitError(err.Error())
	}
	d0 := 2 * half
	s02 := math.Exp(emean + digamma(d0/2) - math.Log(d0/2))
	if !(d0 > 0) || math.IsInf(d0, 0) || !(s02 > 0) || math.IsInf(s02, 0) {
		return fallback, core.NewModerationFitError(fmt.Sprintf("non-finite prior d0=%v s0²=%v", d0, s02))
	}

	return abundance.Prior{D0: d0, S02: s02}, nil
}

// pooled is the df-weighted mean variance, reported when no prior can be fit
func pooled(x, d []float64) float64 {
	num, den := 0.0, 0.0
	for i := range x {
		num += d[i] * x[i]
		den += d[i]
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// PosteriorVariance shrinks s2 (with df degrees of freedom) toward the prior
func PosteriorVariance(s2, df float64, prior abundance.Prior) float64 {
	if prior.D0 == 0 {
		return s2
	}
	return (prior.D0*prior.S02 + df*s2) / (prior.D0 + df)
}
