package domain

import (
	"encoding/json"
	"time"
)

// TransformationType is the declared kind of computation a transformation performs.
type TransformationType string

// Transformation type constants.
const (
	TransformationTypeTransform TransformationType = "transform"
	TransformationTypePredict   TransformationType = "predict"
	TransformationTypeFit       TransformationType = "fit"
)

// TransformationTypes lists the declared kinds in their canonical order.
var TransformationTypes = []TransformationType{
	TransformationTypeTransform,
	TransformationTypePredict,
	TransformationTypeFit,
}

// TransformationTypeNames returns the declared kinds as plain strings.
func TransformationTypeNames() []string {
	names := make([]string, len(TransformationTypes))
	for i, t := range TransformationTypes {
		names[i] = string(t)
	}
	return names
}

// Valid reports whether t is one of the declared kinds.
func (t TransformationType) Valid() bool {
	for _, known := range TransformationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Transformation is a named computation unit, optionally materialized into a
// target table. Optional fields are nil when absent.
type Transformation struct {
	ID               string
	JobID            string
	Type             TransformationType
	FunctionText     string
	FunctionName     *string
	InputQuery       *string
	TargetTable      *string
	TriggerTables    []string
	DependsOn        *string
	Parameters       json.RawMessage
	OutputExpression *string
	Materialized     bool
	FunctionOnly     bool
	CreationDate     time.Time
	ProcessDate      *time.Time
}

// DefineTransformationRequest holds the caller-supplied fields of a define-by-id.
// Derived fields are computed by the write path.
type DefineTransformationRequest struct {
	ID            string
	Type          TransformationType
	FunctionText  string
	JobID         string
	InputQuery    *string
	TargetTable   *string
	TriggerTables []string
	DependsOn     *string
	Parameters    json.RawMessage
}

// Normalize folds empty optional values into absent ones.
func (r *DefineTransformationRequest) Normalize() {
	if len(r.TriggerTables) == 0 {
		r.TriggerTables = nil
	}
	if len(r.Parameters) == 0 || string(r.Parameters) == "null" {
		r.Parameters = nil
	}
}

// Validate checks the request's shape: required fields, the declared type,
// and function-only exclusivity. Query syntax and references are checked by
// the graph validator.
func (r *DefineTransformationRequest) Validate() error {
	r.Normalize()
	if r.ID == "" {
		return ErrMissingField("id")
	}
	if r.JobID == "" {
		return ErrMissingField("job_id")
	}
	if r.FunctionText == "" {
		return ErrMissingField("function_text")
	}
	if !r.Type.Valid() {
		return ErrInvalidType(string(r.Type))
	}
	if r.InputQuery == nil {
		switch {
		case r.TargetTable != nil:
			return ErrFunctionOnlyConflict("target_table")
		case r.TriggerTables != nil:
			return ErrFunctionOnlyConflict("trigger_tables")
		case r.DependsOn != nil:
			return ErrFunctionOnlyConflict("depends_on")
		}
	}
	return nil
}

// TransformationFilter holds filter parameters for listing transformations.
type TransformationFilter struct {
	JobID *string
	Page  PageRequest
}

// PlanStep is one transformation inside an execution plan, with its resolved
// position in the dependency chain.
type PlanStep struct {
	Transformation
	Depth     int
	Ancestors []string // nearest first
}

// ExecutionPlan is the ordered set of transformations a single job must run.
type ExecutionPlan struct {
	JobID           string
	Transformations []PlanStep
}

// UpdatePipeline is the resolved result for one changed trigger table.
type UpdatePipeline struct {
	TriggerTable string
	Plans        []ExecutionPlan
}
