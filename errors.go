package vlquery

import (
	"errors"
	"fmt"

	"github.com/syssam/vlquery/dialect/sql/pool"
	"github.com/syssam/vlquery/graph"
	"github.com/syssam/vlquery/ir"
	"github.com/syssam/vlquery/privacy"
	"github.com/syssam/vlquery/schema"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("vlquery: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("vlquery: entity not singular")
)

type (
	// IRError is returned for malformed expression trees: unknown operators
	// or functions, bad arity, unknown date parts.
	IRError = ir.Error
	// SchemaResolutionError is returned when an entity, column or relation
	// name cannot be resolved.
	SchemaResolutionError = schema.ResolutionError
	// NotLoadedError is returned when reading a lazy relation without
	// fetching it.
	NotLoadedError = graph.NotLoadedError
	// ConnectionError is returned when a statement observed a connection
	// failure while the pool still considered itself connected.
	ConnectionError = pool.ConnectionError
)

// IsIRError returns true if the error is an IRError.
func IsIRError(err error) bool {
	var e *IRError
	return errors.As(err, &e)
}

// IsSchemaResolutionError returns true if the error is a SchemaResolutionError.
func IsSchemaResolutionError(err error) bool {
	var e *SchemaResolutionError
	return errors.As(err, &e)
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	var e *NotLoadedError
	return errors.As(err, &e)
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

// CardinalityError is returned when a query expected exactly one row.
type CardinalityError struct {
	Entity string
	Count  int // Number of rows observed.
}

// Error returns the error string.
func (e *CardinalityError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("vlquery: %s not found", e.Entity)
	}
	return fmt.Sprintf("vlquery: %s not singular (got %d results, expected 1)", e.Entity, e.Count)
}

// Is reports whether the target error matches the sentinel errors.
// errors.Is(err, ErrNotFound) holds only for a zero count.
func (e *CardinalityError) Is(err error) bool {
	return err == ErrNotSingular || (err == ErrNotFound && e.Count == 0)
}

// IsCardinalityError returns true if the error is a CardinalityError.
func IsCardinalityError(err error) bool {
	var e *CardinalityError
	return errors.As(err, &e)
}

// IsNotFound returns true if the error means no row matched.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsNotSingular returns true if the error means other than one row matched.
func IsNotSingular(err error) bool {
	return err != nil && errors.Is(err, ErrNotSingular)
}

// IntegrityError is returned when deleting an entity that is still
// referenced by live rows.
type IntegrityError struct {
	Entity   string // Entity being deleted.
	Referrer string // Referencing entity, empty if unknown.
	Relation string // Referencing relation, empty if unknown.
	Count    int    // Number of referencing rows, -1 if unknown.
	Err      error  // Database error, if the violation was reported by the database.
}

// Error returns the error string.
func (e *IntegrityError) Error() string {
	if e.Count < 0 || e.Referrer == "" {
		return fmt.Sprintf("vlquery: cannot delete %s: still referenced", e.Entity)
	}
	return fmt.Sprintf("vlquery: cannot delete %s: referenced by %d %s rows through %q", e.Entity, e.Count, e.Referrer, e.Relation)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError returns true if the error is an IntegrityError.
func IsIntegrityError(err error) bool {
	var e *IntegrityError
	return errors.As(err, &e)
}

// ErrReadOnly is wrapped by the ValidationError of a write to a view entity.
var ErrReadOnly = errors.New("entity is a read-only view")

// ValidationError represents an invalid column value in a write, or a
// write the entity does not accept at all.
type ValidationError struct {
	Entity string // Set when the whole write is rejected
	Name   string // Column name
	Err    error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("vlquery: write to %s: %s", e.Entity, e.Err)
	}
	return fmt.Sprintf("vlquery: invalid value for column %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("vlquery: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	var e ConstraintError
	return errors.As(err, &e)
}

// QueryError wraps a driver error with the entity and operation.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "count")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("vlquery: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("vlquery: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a driver error raised by a write.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("vlquery: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	var e *MutationError
	return errors.As(err, &e)
}

// IsDenied returns true if a privacy policy rejected the operation.
func IsDenied(err error) bool {
	return errors.Is(err, privacy.Deny)
}
