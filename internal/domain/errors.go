// Package domain defines core types, interfaces, and errors for the transformation registry.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind names the specific rule a rejected operation broke.
type ErrorKind string

// Error kinds reported by the write path and the resolver.
const (
	KindMissingField         ErrorKind = "MissingField"
	KindInvalidType          ErrorKind = "InvalidType"
	KindFunctionOnlyConflict ErrorKind = "FunctionOnlyConflict"
	KindMalformedQuery       ErrorKind = "MalformedQuery"
	KindUnknownDependency    ErrorKind = "UnknownDependency"
	KindDependentsExist      ErrorKind = "DependentsExist"
	KindGraphCycle           ErrorKind = "GraphCycle"
	KindUnknownID            ErrorKind = "UnknownId"
)

// ValidationError indicates a structurally invalid transformation definition.
type ValidationError struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ReferentialError indicates a broken or blocking depends_on reference.
type ReferentialError struct {
	Kind    ErrorKind
	ID      string
	Message string
}

func (e *ReferentialError) Error() string { return e.Message }

// IntegrityError indicates stored data that violates the graph invariants.
// It is only raised when a breach that the write path should have prevented
// is discovered.
type IntegrityError struct {
	Kind    ErrorKind
	ID      string
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Kind    ErrorKind
	ID      string
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrMissingField creates a ValidationError for a required field left empty.
func ErrMissingField(field string) *ValidationError {
	return &ValidationError{
		Kind:    KindMissingField,
		Field:   field,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// ErrInvalidType creates a ValidationError for an undeclared transformation type.
func ErrInvalidType(value string) *ValidationError {
	return &ValidationError{
		Kind:    KindInvalidType,
		Field:   "type",
		Message: fmt.Sprintf("unavailable type %q: must be one of %s", value, strings.Join(TransformationTypeNames(), ", ")),
	}
}

// ErrFunctionOnlyConflict creates a ValidationError for a function-only
// transformation that also sets field.
func ErrFunctionOnlyConflict(field string) *ValidationError {
	return &ValidationError{
		Kind:    KindFunctionOnlyConflict,
		Field:   field,
		Message: fmt.Sprintf("function only transformation can not have %s: input_query is absent", field),
	}
}

// ErrMalformedQuery creates a ValidationError for an input query that is not a single SELECT.
func ErrMalformedQuery(query string) *ValidationError {
	return &ValidationError{
		Kind:    KindMalformedQuery,
		Field:   "input_query",
		Message: fmt.Sprintf("bad formatted query: %s", query),
	}
}

// ErrUnknownDependency creates a ReferentialError for a depends_on that does
// not resolve to a record of the same job.
func ErrUnknownDependency(id, jobID string) *ReferentialError {
	return &ReferentialError{
		Kind:    KindUnknownDependency,
		ID:      id,
		Message: fmt.Sprintf("unknown dependency %q in job %q", id, jobID),
	}
}

// ErrDependentsExist creates a ReferentialError for an id still referenced by dependents.
func ErrDependentsExist(id string, dependents []string) *ReferentialError {
	msg := fmt.Sprintf("at least one transformation depends on %q", id)
	if len(dependents) > 0 {
		msg += ": " + strings.Join(dependents, ", ")
	}
	return &ReferentialError{Kind: KindDependentsExist, ID: id, Message: msg}
}

// ErrDependencyCycle creates a ReferentialError for a definition of id whose
// depends_on chain would lead back to id.
func ErrDependencyCycle(id string) *ReferentialError {
	return &ReferentialError{
		Kind:    KindGraphCycle,
		ID:      id,
		Message: fmt.Sprintf("depends_on of %q would create a dependency cycle", id),
	}
}

// ErrGraphCycle creates an IntegrityError for a stored dependency chain that revisits id.
func ErrGraphCycle(id string) *IntegrityError {
	return &IntegrityError{
		Kind:    KindGraphCycle,
		ID:      id,
		Message: fmt.Sprintf("dependency cycle detected at %q", id),
	}
}

// ErrUnknownID creates a NotFoundError for a missing transformation id.
func ErrUnknownID(id string) *NotFoundError {
	return &NotFoundError{
		Kind:    KindUnknownID,
		ID:      id,
		Message: fmt.Sprintf("transformation %q not found", id),
	}
}

// KindOf returns the ErrorKind carried by err, or the empty string when err
// is not one of the registry's typed errors.
func KindOf(err error) ErrorKind {
	var (
		ve *ValidationError
		re *ReferentialError
		ie *IntegrityError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Kind
	case errors.As(err, &re):
		return re.Kind
	case errors.As(err, &ie):
		return ie.Kind
	case errors.As(err, &ne):
		return ne.Kind
	default:
		return ""
	}
}
