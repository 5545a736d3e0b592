package domain

import (
	"context"
	"time"
)

// TransformationRepository is the keyed store of Transformation records.
// Every method is atomic for a single record; no multi-record transactions
// are assumed.
type TransformationRepository interface {
	// Define upserts t by id. When t.DependsOn is set the write only happens
	// if the referenced record still exists in the same job; otherwise it
	// returns a ReferentialError of kind UnknownDependency.
	Define(ctx context.Context, t *Transformation) (string, error)
	Get(ctx context.Context, id string) (*Transformation, error)
	// Delete removes id unless another record depends on it.
	Delete(ctx context.Context, id string) (string, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	FindByDependsOn(ctx context.Context, id string) ([]Transformation, error)
	FindByTriggerTable(ctx context.Context, table string) ([]Transformation, error)
	List(ctx context.Context, filter TransformationFilter) ([]Transformation, int64, error)
}

// AuditRepository records successful registry mutations.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}
