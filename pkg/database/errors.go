package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"net/http"
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-service/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or carries no known code.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// lock_not_available (55P03), deadlock_detected (40P01), serialization_failure (40001)
	case "55P03":
		return errors.Infrastructure(err, "timed out waiting for a stock lock")
	case "40P01", "40001":
		return errors.Infrastructure(err, "concurrent stock update, retry the request")

	// query_canceled (57014), raised by statement_timeout
	case "57014":
		return errors.Infrastructure(err, "database statement timed out")
	}

	// Connection exceptions (class 08) and operator intervention (class 57)
	if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57" {
		return errors.Infrastructure(err, "database unavailable")
	}

	return nil
}

// Classify returns err as an AppError. Existing AppErrors pass through; pq,
// driver and context failures become Infrastructure errors; anything else is
// wrapped as Internal.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if mapped := MapPQError(err); mapped != nil {
		return mapped
	}

	var netErr net.Error
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.As(err, &netErr) ||
		stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Infrastructure(err, "database unavailable")
	}

	return errors.Wrap(err, "INTERNAL_ERROR", "unexpected database error", http.StatusInternalServerError)
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_on_hand_non_negative"):
		return errors.BusinessRule(errors.CodeBatchMismatch, "batch quantity on hand cannot go negative")

	case strings.Contains(constraint, "stock_quantity_non_negative"):
		return errors.BusinessRule(errors.CodeInsufficientStock, "medication stock cannot go negative")

	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be a positive integer",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return "a batch with this number already exists for the medication"
	case strings.Contains(constraint, "pkey"):
		return "a record with this id already exists"
	default:
		return "a record with these values already exists"
	}
}
