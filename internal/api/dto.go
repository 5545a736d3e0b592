package api

import (
	"encoding/json"
	"time"

	"transform-registry/internal/domain"
)

// DefineTransformationBody is the PUT body; the id comes from the path.
type DefineTransformationBody struct {
	Type          string          `json:"type"`
	FunctionText  string          `json:"function_text"`
	JobID         string          `json:"job_id"`
	InputQuery    *string         `json:"input_query,omitempty"`
	TargetTable   *string         `json:"target_table,omitempty"`
	TriggerTables []string        `json:"trigger_tables,omitempty"`
	DependsOn     *string         `json:"depends_on,omitempty"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
}

func (b DefineTransformationBody) toDomain(id string) domain.DefineTransformationRequest {
	return domain.DefineTransformationRequest{
		ID:            id,
		Type:          domain.TransformationType(b.Type),
		FunctionText:  b.FunctionText,
		JobID:         b.JobID,
		InputQuery:    b.InputQuery,
		TargetTable:   b.TargetTable,
		TriggerTables: b.TriggerTables,
		DependsOn:     b.DependsOn,
		Parameters:    b.Parameters,
	}
}

// Transformation is the wire form of a stored record. Absent optional
// fields are rendered as null.
type Transformation struct {
	ID               string          `json:"id"`
	JobID            string          `json:"job_id"`
	Type             string          `json:"type"`
	FunctionText     string          `json:"function_text"`
	FunctionName     *string         `json:"function_name"`
	InputQuery       *string         `json:"input_query"`
	TargetTable      *string         `json:"target_table"`
	TriggerTables    []string        `json:"trigger_tables"`
	DependsOn        *string         `json:"depends_on"`
	Parameters       json.RawMessage `json:"parameters"`
	OutputExpression *string         `json:"output_expression"`
	Materialized     bool            `json:"materialized"`
	FunctionOnly     bool            `json:"function_only"`
	CreationDate     time.Time       `json:"creation_date"`
	ProcessDate      *time.Time      `json:"process_date"`
}

// PlanStep is a Transformation with its place in the dependency chain.
type PlanStep struct {
	Transformation
	Depth     int      `json:"depth"`
	Ancestors []string `json:"ancestors"`
}

// ExecutionPlan lists the steps one job runs.
type ExecutionPlan struct {
	JobID           string     `json:"job_id"`
	Transformations []PlanStep `json:"transformations"`
}

// UpdatePipeline is the resolve response. Matched is false, with no plans,
// when no transformation is triggered by the table.
type UpdatePipeline struct {
	TriggerTable string          `json:"trigger_table"`
	Matched      bool            `json:"matched"`
	Plans        []ExecutionPlan `json:"plans"`
}

// IDResponse answers define and delete.
type IDResponse struct {
	ID string `json:"id"`
}

// TypesResponse lists the allowed transformation types.
type TypesResponse struct {
	Types []string `json:"types"`
}

// ListTransformationsResponse is one page of records.
type ListTransformationsResponse struct {
	Transformations []Transformation `json:"transformations"`
	NextPageToken   string           `json:"next_page_token,omitempty"`
}

// JobOrderResponse lists a job's ids in dependency order.
type JobOrderResponse struct {
	JobID string   `json:"job_id"`
	Order []string `json:"order"`
}

// AuditEntry is the wire form of an audit log row.
type AuditEntry struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id,omitempty"`
	Action           string    `json:"action"`
	TransformationID string    `json:"transformation_id"`
	JobID            string    `json:"job_id,omitempty"`
	Detail           *string   `json:"detail,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ListAuditResponse is one page of audit entries.
type ListAuditResponse struct {
	Entries       []AuditEntry `json:"entries"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

// === Mapping helpers ===

func transformationToAPI(t domain.Transformation) Transformation {
	return Transformation{
		ID:               t.ID,
		JobID:            t.JobID,
		Type:             string(t.Type),
		FunctionText:     t.FunctionText,
		FunctionName:     t.FunctionName,
		InputQuery:       t.InputQuery,
		TargetTable:      t.TargetTable,
		TriggerTables:    t.TriggerTables,
		DependsOn:        t.DependsOn,
		Parameters:       t.Parameters,
		OutputExpression: t.OutputExpression,
		Materialized:     t.Materialized,
		FunctionOnly:     t.FunctionOnly,
		CreationDate:     t.CreationDate,
		ProcessDate:      t.ProcessDate,
	}
}

func planStepToAPI(s domain.PlanStep) PlanStep {
	ancestors := s.Ancestors
	if ancestors == nil {
		ancestors = []string{}
	}
	return PlanStep{
		Transformation: transformationToAPI(s.Transformation),
		Depth:          s.Depth,
		Ancestors:      ancestors,
	}
}

func updatePipelineToAPI(table string, p *domain.UpdatePipeline) UpdatePipeline {
	out := UpdatePipeline{TriggerTable: table, Plans: []ExecutionPlan{}}
	if p == nil {
		return out
	}
	out.Matched = true
	for _, plan := range p.Plans {
		steps := make([]PlanStep, len(plan.Transformations))
		for i, s := range plan.Transformations {
			steps[i] = planStepToAPI(s)
		}
		out.Plans = append(out.Plans, ExecutionPlan{JobID: plan.JobID, Transformations: steps})
	}
	return out
}

func auditEntryToAPI(e domain.AuditEntry) AuditEntry {
	return AuditEntry{
		ID:               e.ID,
		RequestID:        e.RequestID,
		Action:           e.Action,
		TransformationID: e.TransformationID,
		JobID:            e.JobID,
		Detail:           e.Detail,
		CreatedAt:        e.CreatedAt,
	}
}
