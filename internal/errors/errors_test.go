package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"proteodiff/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCode(t *testing.T) {
	base := InvalidInput("matrix has no samples")
	wrapped := Wrap(base, "loading matrix")

	assert.Equal(t, CodeInvalidInput, GetCode(wrapped))
	assert.Equal(t, "loading matrix: matrix has no samples", wrapped.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestFromDomainCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{core.NewDesignError("S1", core.ErrUnassignedLabel), CodeDesign},
		{core.ErrMissingRobust, CodeInsufficient},
		{fmt.Errorf("%w: nothing testable", core.ErrCorrection), CodeCorrection},
		{core.NewMatrixError("ragged"), CodeInvalidInput},
		{stderrors.New("boom"), CodeInternalError},
	}
	for _, tt := range tests {
		err := FromDomain(tt.err, "analysis failed")
		assert.Equal(t, tt.code, GetCode(err), tt.err.Error())
		assert.True(t, stderrors.Is(err, tt.err))
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", ConfigInvalid("PD_ALPHA out of range"))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestWrapPlainErrorIsInternal(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrapf(cause, "failed to %s", "create analysis_runs table")

	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, CodeNotFound, GetCode(NotFound("run 42")))
}
