package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Design errors are fatal: every feature shares the design matrix.
	ErrDesign          = errors.New("design error")
	ErrUnassignedLabel = fmt.Errorf("%w: sample has no group label", ErrDesign)
	ErrUnknownLevel    = fmt.Errorf("%w: group level not in design", ErrDesign)
	ErrTooFewLevels    = fmt.Errorf("%w: at least two groups are required", ErrDesign)

	// Insufficient data is local to one feature unless raised for the whole matrix.
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrRankDeficient    = fmt.Errorf("%w: design is rank deficient on observed samples", ErrInsufficientData)
	ErrMissingRobust    = fmt.Errorf("%w: robust fitting does not accept missing values", ErrInsufficientData)

	// Moderation fit failures degrade to no shrinkage.
	ErrModerationFit = errors.New("moderation prior fit failed")

	// Correction errors are fatal only when nothing is testable.
	ErrCorrection = errors.New("multiple testing correction failed")

	// Input shape errors
	ErrInvalidMatrix = errors.New("invalid abundance matrix")
)

// Error constructors with context
func NewDesignError(sample string, reason error) error {
	return fmt.Errorf("%w (sample %q)", reason, sample)
}

func NewInsufficientDataError(feature string, observed, required int) error {
	return fmt.Errorf("%w: feature %s has %d usable samples, needs %d", ErrInsufficientData, feature, observed, required)
}

func NewModerationFitError(reason string) error {
	return fmt.Errorf("%w: %s", ErrModerationFit, reason)
}

func NewMatrixError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMatrix, reason)
}

// Error checking helpers
func IsDesignError(err error) bool {
	return errors.Is(err, ErrDesign)
}

func IsInsufficientDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsModerationFitError(err error) bool {
	return errors.Is(err, ErrModerationFit)
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDesign) ||
		errors.Is(err, ErrCorrection) ||
		errors.Is(err, ErrInvalidMatrix) ||
		errors.Is(err, ErrMissingRobust)
}
