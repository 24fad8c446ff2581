package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const scopeKey contextKey = "hospital_scope"

var (
	// ErrNoScopeInContext is returned when hospital scope is missing
	ErrNoScopeInContext = errors.New("no hospital scope in context")
	// ErrInvalidScope is returned when the hospital or user id is not a UUID
	ErrInvalidScope = errors.New("invalid hospital scope")
)

// Scope is the authorization context produced by the access-control collaborator.
// It is trusted as already authorized: HospitalID is the tenant every read and
// write is restricted to, UserID is the caller recorded as creator.
type Scope struct {
	HospitalID string `json:"hospital_id"`
	UserID     string `json:"user_id"`
}

// NewScope validates both identifiers and builds a Scope
func NewScope(hospitalID, userID string) (Scope, error) {
	if _, err := uuid.Parse(hospitalID); err != nil {
		return Scope{}, ErrInvalidScope
	}
	if _, err := uuid.Parse(userID); err != nil {
		return Scope{}, ErrInvalidScope
	}
	return Scope{HospitalID: hospitalID, UserID: userID}, nil
}

// Owns reports whether a row tagged with hospitalID belongs to this scope
func (s Scope) Owns(hospitalID string) bool {
	return s.HospitalID != "" && s.HospitalID == hospitalID
}

// WithScope adds the hospital scope to the context.
// This should be called by middleware after reading the gateway headers.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the hospital scope from context
// Returns ErrNoScopeInContext if it is not present
func FromContext(ctx context.Context) (Scope, error) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	if !ok || scope.HospitalID == "" {
		return Scope{}, ErrNoScopeInContext
	}
	return scope, nil
}

// MustFromContext extracts the scope and panics if not found
// Use only in cases where missing scope is a programming error
func MustFromContext(ctx context.Context) Scope {
	scope, err := FromContext(ctx)
	if err != nil {
		panic("hospital scope not found in context")
	}
	return scope
}
