package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := EmptyResult("cells: all %d discarded", 10)
	assert.True(t, stderrors.Is(err, ErrEmptyResult))
	assert.False(t, stderrors.Is(err, ErrEmptyMatrix))

	wrapped := fmt.Errorf("stage failed: %w", Wrap(err, "filter"))
	assert.True(t, stderrors.Is(wrapped, ErrEmptyResult))
	assert.Equal(t, CodeEmptyResult, GetCode(wrapped))
}

func TestWrapKeepsCode(t *testing.T) {
	base := InvalidConfiguration("k_max must be >= 1, got %d", 0)
	err := Wrapf(base, "partition")
	assert.Equal(t, CodeInvalidConfiguration, GetCode(err))
	assert.Contains(t, err.Error(), "k_max must be >= 1")

	plain := Wrap(stderrors.New("boom"), "context")
	assert.Equal(t, CodeInternalError, GetCode(plain))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestGetCodeUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
	assert.False(t, IsAppError(stderrors.New("plain")))
	assert.True(t, IsAppError(NonConvergence("x")))
}
