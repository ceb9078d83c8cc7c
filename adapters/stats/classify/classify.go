// Package classify labels features by fold change and adjusted p-value.
package classify

import (
	"fmt"
	"math"

	"proteodiff/domain/abundance"
)

// DefaultFCThreshold is log2(1.5)
var DefaultFCThreshold = math.Log2(1.5)

// DefaultAlpha is the default FDR level
const DefaultAlpha = 0.05

// Thresholds are the classification cut-offs. Both comparisons are strict:
// a feature exactly at either threshold is not significant.
type Thresholds struct {
	FC    float64
	Alpha float64
}

// DefaultThresholds returns log2(1.5) and 0.05
func DefaultThresholds() Thresholds {
	return Thresholds{FC: DefaultFCThreshold, Alpha: DefaultAlpha}
}

// Validate rejects thresholds that make every feature non-significant by accident
func (t Thresholds) Validate() error {
	if math.IsNaN(t.FC) || t.FC < 0 {
		return fmt.Errorf("fold-change threshold must be >= 0, got %v", t.FC)
	}
	if !(t.Alpha > 0 && t.Alpha <= 1) {
		return fmt.Errorf("alpha must be in (0, 1], got %v", t.Alpha)
	}
	return nil
}

// Classify labels one feature. NaN inputs (untestable features) are not
// significant.
func Classify(logFC, adjP float64, t Thresholds) abundance.Status {
	if math.IsNaN(logFC) || math.IsNaN(adjP) || !(adjP < t.Alpha) {
		return abundance.StatusNotSignificant
	}
	switch {
	case logFC > t.FC:
		return abundance.StatusIncreased
	case logFC < -t.FC:
		return abundance.StatusDecreased
	default:
		return abundance.StatusNotSignificant
	}
}
