// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
// Tenant mismatches surface as the same not-found errors so existence is not
// leaked across tenants.
var (
	// ErrDefinitionNotFound indicates no definition for the tenant and id.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrExecutionNotFound indicates no execution for the tenant and id.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrStepExecutionNotFound indicates no step execution for the id.
	ErrStepExecutionNotFound = errors.New("workflow step execution not found")

	// ErrRuleNotFound indicates no rule for the tenant and id.
	ErrRuleNotFound = errors.New("business rule not found")

	// ErrConcurrentUpdate indicates an optimistic-lock conflict on an
	// execution update; the caller should re-read and retry.
	ErrConcurrentUpdate = errors.New("execution was modified concurrently")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op       string // Operation being performed (e.g. "GetByID", "Save")
	Entity   string // Entity kind ("definition", "execution", ...)
	EntityID string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.EntityID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity, entityID string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, EntityID: entityID, Err: err}
}

// IsNotFound checks whether an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrStepExecutionNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}

// IsConcurrentUpdate checks for an optimistic-lock conflict.
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
