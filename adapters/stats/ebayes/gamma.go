package ebayes

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
)

// digamma is ψ(x)
func digamma(x float64) float64 {
	return mathext.Digamma(x)
}

// trigamma is ψ₁(x), the Hurwitz zeta ζ(2, x)
func trigamma(x float64) float64 {
	return mathext.Zeta(2, x)
}

// tetragamma is ψ₂(x) = -2 ζ(3, x)
func tetragamma(x float64) float64 {
	return -2 * mathext.Zeta(3, x)
}

const (
	trigammaInvMaxIter = 50
	trigammaInvTol     = 1e-8
)

// trigammaInverse solves ψ₁(x) = y for x > 0 by Newton iteration on 1/ψ₁,
// which is nearly linear in x. The starting point 0.5 + 1/y lies right of
// the root and the iterates decrease monotonically toward it.
func trigammaInverse(y float64) (float64, error) {
	switch {
	case math.IsNaN(y) || y <= 0:
		return math.NaN(), fmt.Errorf("trigamma inverse undefined for %v", y)
	case math.IsInf(y, 1):
		return 0, nil
	case y > 1e7:
		return 1 / math.Sqrt(y), nil
	case y < 1e-6:
		return 1 / y, nil
	}

	x := 0.5 + 1/y
	for iter := 1; iter <= trigammaInvMaxIter; iter++ {
		tri := trigamma(x)
		dif := tri * (1 - tri/y) / tetragamma(x)
		x += dif
		if !(x > 0) || math.IsInf(x, 0) {
			return math.NaN(), fmt.Errorf("trigamma inverse diverged at iteration %d", iter)
		}
		if -dif/x < trigammaInvTol {
			return x, nil
		}
	}
	return x, fmt.Errorf("trigamma inverse did not converge in %d iterations", trigammaInvMaxIter)
}
