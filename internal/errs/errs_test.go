package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("season not found", true, nil), http.StatusNotFound},
		{"conflict", NewConflictError("season already exists", true, Code("SEASON_ALREADY_EXISTS")), http.StatusConflict},
		{"wrapped validation", fmt.Errorf("create: %w", ValidationError(errors.New("number is required"))), http.StatusBadRequest},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestClassifiers(t *testing.T) {
	conflict := NewConflictError("cannot delete the active season", true, Code("SEASON_ACTIVE"))

	assert.True(t, IsConflict(conflict))
	assert.False(t, IsNotFound(conflict))
	assert.Equal(t, "SEASON_ACTIVE", conflict.Code)
	assert.False(t, IsConflict(nil))
	assert.True(t, IsNotFound(fmt.Errorf("promote: %w", NewNotFoundError("season not found", true, nil))))
}

func TestNewInternalServerError_HidesCause(t *testing.T) {
	err := NewInternalServerError()

	assert.Equal(t, "INTERNAL_SERVER_ERROR", err.Code)
	assert.Equal(t, "Internal Server Error", err.Message)
	assert.False(t, err.Override)
}
