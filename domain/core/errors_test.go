package core

import (
	"errors"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		design       bool
		insufficient bool
		fatal        bool
	}{
		{"unassigned label", NewDesignError("S1", ErrUnassignedLabel), true, false, true},
		{"unknown level", NewDesignError("S2", ErrUnknownLevel), true, false, true},
		{"feature insufficient", NewInsufficientDataError("P1", 1, 2), false, true, false},
		{"rank deficient", ErrRankDeficient, false, true, false},
		{"robust with missing", ErrMissingRobust, false, true, true},
		{"moderation", NewModerationFitError("no convergence"), false, false, false},
		{"correction", ErrCorrection, false, false, true},
		{"matrix", NewMatrixError("ragged rows"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDesignError(tt.err); got != tt.design {
				t.Errorf("IsDesignError = %v, want %v", got, tt.design)
			}
			if got := IsInsufficientDataError(tt.err); got != tt.insufficient {
				t.Errorf("IsInsufficientDataError = %v, want %v", got, tt.insufficient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestModerationFitErrorUnwraps(t *testing.T) {
	err := NewModerationFitError("evar negative")
	if !errors.Is(err, ErrModerationFit) {
		t.Fatalf("expected ErrModerationFit in chain, got %v", err)
	}
	if !IsModerationFitError(err) {
		t.Error("IsModerationFitError should be true")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := NewFingerprinter().String("P1").Floats([]float64{1, 2, 3}).StringMap(map[string]string{"b": "2", "a": "1"}).Sum()
	b := NewFingerprinter().String("P1").Floats([]float64{1, 2, 3}).StringMap(map[string]string{"a": "1", "b": "2"}).Sum()
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}

	c := NewFingerprinter().String("P1").Floats([]float64{1, 2, 4}).Sum()
	if a == c {
		t.Error("different inputs produced the same fingerprint")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Short() length = %d, want 12", len(a.Short()))
	}
}
