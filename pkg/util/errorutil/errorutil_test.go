package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotFound_NamesResource(t *testing.T) {
	err := NewNotFound("user", map[string]any{"user_id": int64(7)})

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	assert.Equal(t, "user not found", de.Message)
	assert.Equal(t, "user", de.Details["resource"])
	assert.Equal(t, int64(7), de.Details["user_id"])
}

func TestTaxonomyStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{"not found", NewNotFound("issue", nil), CodeNotFound, http.StatusNotFound},
		{"conflict", NewConflict("dup", nil), CodeConflict, http.StatusInternalServerError},
		{"storage", NewStorageError("create_issue", errors.New("boom")), CodeStorage, http.StatusInternalServerError},
		{"internal", NewInternalError(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}
}

func TestToDomainError_WrapsUnknown(t *testing.T) {
	cause := errors.New("connection reset")
	de := ToDomainError(cause)

	assert.Equal(t, CodeInternal, de.Code)
	assert.ErrorIs(t, de, cause)
	assert.Nil(t, ToDomainError(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("escalate: %w", NewValidationError("only complaints", nil))

	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsStorage(NewStorageError("x", errors.New("y"))))
	assert.True(t, IsConflict(NewConflict("x", nil)))
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := NewStorageError("escalate", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "escalate")
}
