package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		sentinel error
		code     string
		status   int
	}{
		{"not found", NotFound("purchase"), ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{"cross tenant", CrossTenant("vendor"), ErrCrossTenant, "CROSS_TENANT", http.StatusForbidden},
		{"forbidden", Forbidden("no scope"), ErrForbidden, "FORBIDDEN", http.StatusForbidden},
		{"validation", Validation(map[string]string{"quantity": "bad"}), ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{"business rule", BusinessRule(CodeBatchMismatch, "diverged"), ErrBusinessRule, CodeBatchMismatch, http.StatusUnprocessableEntity},
		{"infrastructure", Infrastructure(context.DeadlineExceeded, "timeout"), ErrInfrastructure, "INFRASTRUCTURE_ERROR", http.StatusServiceUnavailable},
		{"conflict", Conflict("duplicate"), ErrConflict, "CONFLICT", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestInfrastructureKeepsCause(t *testing.T) {
	err := Infrastructure(context.Canceled, "connection lost")
	assert.True(t, Is(err, context.Canceled))
	assert.True(t, Is(err, ErrInfrastructure))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("return: %w", BusinessRule(CodeReturnExceedsRemaining, "too many"))
	assert.Equal(t, CodeReturnExceedsRemaining, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(fmt.Errorf("plain")))

	var appErr *AppError
	assert.True(t, As(wrapped, &appErr))
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.StatusCode)
}

func TestWithDetails(t *testing.T) {
	err := BusinessRule(CodeInsufficientStock, "low").WithDetails(map[string]string{"available": "3"})
	assert.Equal(t, "3", err.Details["available"])
}
