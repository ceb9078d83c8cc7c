// Package contrast projects fitted coefficients onto a linear contrast.
package contrast

import (
	"fmt"
	"math"

	"proteodiff/adapters/stats/design"
	"proteodiff/adapters/stats/lmfit"
	"proteodiff/domain/core"

	"gonum.org/v1/gonum/mat"
)

// Contrast is a fixed combination of design coefficients
type Contrast struct {
	Name   string
	Vector []float64
}

// NewPair builds numerator - denominator. The vector is the difference of
// the two levels' design rows, so it is correct with or without intercept.
func NewPair(d *design.Matrix, numerator, denominator string) (*Contrast, error) {
	if numerator == denominator {
		return nil, fmt.Errorf("%w: contrast compares %q with itself", core.ErrDesign, numerator)
	}
	num, err := d.LevelRow(numerator)
	if err != nil {
		return nil, err
	}
	den, err := d.LevelRow(denominator)
	if err != nil {
		return nil, err
	}
	vec := make([]float64, len(num))
	for i := range num {
		vec[i] = num[i] - den[i]
	}
	return &Contrast{Name: numerator + "-" + denominator, Vector: vec}, nil
}

// New wraps an explicit vector over the design columns
func New(d *design.Matrix, name string, vector []float64) (*Contrast, error) {
	if len(vector) != d.Cols() {
		return nil, fmt.Errorf("%w: contrast has %d entries for %d design columns", core.ErrDesign, len(vector), d.Cols())
	}
	return &Contrast{Name: name, Vector: append([]float64(nil), vector...)}, nil
}

// Result is the per-feature contrast estimate. Fields are NaN when the
// feature had no coefficients.
type Result struct {
	FeatureID string
	Estimate  float64
	// StdevUnscaled is sqrt(c' V c), the standard error divided by sigma.
	StdevUnscaled float64
	SE            float64
	T             float64
	DF            float64
	Sigma         float64
	AveExpr       float64
	Tested        bool
	Reason        string
}

// Evaluate applies c to every feature of fit, preserving order
func Evaluate(fit *lmfit.Fit, c *Contrast) []Result {
	cv := mat.NewVecDense(len(c.Vector), append([]float64(nil), c.Vector...))
	out := make([]Result, len(fit.Features))
	for i := range fit.Features {
		out[i] = evaluateOne(&fit.Features[i], cv)
	}
	return out
}

func evaluateOne(f *lmfit.FeatureFit, cv *mat.VecDense) Result {
	r := Result{
		FeatureID:     f.FeatureID,
		Estimate:      math.NaN(),
		StdevUnscaled: math.NaN(),
		SE:            math.NaN(),
		T:             math.NaN(),
		DF:            f.DF,
		Sigma:         f.Sigma,
		AveExpr:       f.AveExpr,
	}
	if !f.HasCoefficients() {
		if f.Err != nil {
			r.Reason = f.Err.Error()
		}
		return r
	}

	beta := mat.NewVecDense(len(f.Coefficients), append([]float64(nil), f.Coefficients...))
	r.Estimate = mat.Dot(cv, beta)
	r.StdevUnscaled = math.Sqrt(mat.Inner(cv, f.CovUnscaled, cv))

	if !f.Testable() {
		r.Reason = "no residual degrees of freedom"
		return r
	}

	r.SE = f.Sigma * r.StdevUnscaled
	r.T = Ratio(r.Estimate, r.SE)
	r.Tested = true
	return r
}

// Ratio divides an estimate by its standard error. A zero estimate with a
// zero error is a null effect (t = 0); a nonzero estimate with zero error
// is an exact effect (t = ±Inf).
func Ratio(estimate, se float64) float64 {
	if se == 0 {
		if estimate == 0 {
			return 0
		}
		return math.Copysign(math.Inf(1), estimate)
	}
	return estimate / se
}
