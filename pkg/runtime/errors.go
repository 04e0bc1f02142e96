// Package runtime provides the database connection and error types shared by
// the relationship adapter.
package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity is returned when an entity is not registered.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNoPrimaryKey is returned when a table has no primary key.
	ErrNoPrimaryKey = errors.New("no primary key defined")

	// ErrUnsupportedRelationship is matched by UnsupportedRelationshipError.
	ErrUnsupportedRelationship = errors.New("unsupported relationship kind")

	// ErrUnsupportedValueType is matched by UnsupportedValueTypeError.
	ErrUnsupportedValueType = errors.New("unsupported value type")

	// ErrUnsupportedOperation is matched by UnsupportedOperationError.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrNestedFilterUnsupported is matched by NestedFilterUnsupportedError.
	ErrNestedFilterUnsupported = errors.New("nested filter unsupported")

	// ErrUnknownProperty is matched by UnknownPropertyError.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrAmbiguousOneToOne is returned when a one-to-one load finds more than
	// one target row for a single key.
	ErrAmbiguousOneToOne = errors.New("one-to-one relationship returned multiple rows")

	// ErrAlreadyExecuted is returned when a command is executed twice.
	ErrAlreadyExecuted = errors.New("command already executed")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")
)

// UnsupportedRelationshipError reports a relationship kind that neither the
// adapter nor a registered custom strategy can handle.
type UnsupportedRelationshipError struct {
	Kind     string
	Property string
}

// Error implements the error interface.
func (e *UnsupportedRelationshipError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("unsupported relationship kind %q", e.Kind)
	}
	return fmt.Sprintf("unsupported relationship kind %q on property %s", e.Kind, e.Property)
}

// Unwrap returns the sentinel error.
func (e *UnsupportedRelationshipError) Unwrap() error {
	return ErrUnsupportedRelationship
}

// UnsupportedValueTypeError reports a filter value with no binding.
type UnsupportedValueTypeError struct {
	Type     string
	Property string
}

// Error implements the error interface.
func (e *UnsupportedValueTypeError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("unsupported value type %s given", e.Type)
	}
	return fmt.Sprintf("unsupported value type %s given for %s", e.Type, e.Property)
}

// Unwrap returns the sentinel error.
func (e *UnsupportedValueTypeError) Unwrap() error {
	return ErrUnsupportedValueType
}

// UnsupportedOperationError reports a capability a command cannot provide.
type UnsupportedOperationError struct {
	Operation string
	Command   string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported by %s commands", e.Operation, e.Command)
}

// Unwrap returns the sentinel error.
func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

// NestedFilterUnsupportedError reports a custom relationship strategy used in
// a nested filter path without nested filter support.
type NestedFilterUnsupportedError struct {
	Strategy string
	Path     string
}

// Error implements the error interface.
func (e *NestedFilterUnsupportedError) Error() string {
	return fmt.Sprintf("strategy %s does not support nested filter %s", e.Strategy, e.Path)
}

// Unwrap returns the sentinel error.
func (e *NestedFilterUnsupportedError) Unwrap() error {
	return ErrNestedFilterUnsupported
}

// UnknownPropertyError reports a path segment that is not a relationship of
// the entity it is resolved against.
type UnknownPropertyError struct {
	Entity   string
	Property string
}

// Error implements the error interface.
func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("entity %s has no relationship property %s", e.Entity, e.Property)
}

// Unwrap returns the sentinel error.
func (e *UnknownPropertyError) Unwrap() error {
	return ErrUnknownProperty
}

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}
