package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", Validation("op", "bad %s", "input"), ErrValidation},
		{"invalid state", InvalidState("op", "nope"), ErrInvalidState},
		{"forbidden", Forbidden("op", "no"), ErrForbidden},
		{"not found", NotFound("op", "request", 7), ErrNotFound},
		{"transaction", TransactionFailure("op", errors.New("busy")), ErrTransactionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
		})
	}
}

func TestIllegalTransition(t *testing.T) {
	err := IllegalTransition("transition", "CLOSED", "APPROVE")

	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "CLOSED", err.Details["current_status"])
	assert.Equal(t, "APPROVE", err.Details["action"])
	assert.Contains(t, err.Error(), "APPROVE is not permitted from status CLOSED")

	assert.NotErrorIs(t, InvalidState("submit", "x"), ErrIllegalTransition)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(TransactionFailure("op", errors.New("locked"))))
	assert.False(t, Retryable(Forbidden("op", "no")))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestAsTransactionFailure(t *testing.T) {
	assert.NoError(t, AsTransactionFailure("op", nil))

	typed := Forbidden("op", "no")
	assert.Same(t, typed, AsTransactionFailure("op", typed))

	raw := errors.New("disk I/O error")
	err := AsTransactionFailure("combine", raw)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTransactionFailure, kind)
	assert.ErrorIs(t, err, raw)
}
