package transformation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"transform-registry/internal/domain"
)

// maxNamedDependents bounds how many dependent ids a rejection lists.
const maxNamedDependents = 5

// GraphValidator guards the dependency graph on the write path. Each check
// reads the store and returns before anything is written; the store's
// conditional writes re-check the dependency edges at commit.
type GraphValidator struct {
	repo   domain.TransformationRepository
	sql    domain.SQLValidator
	logger *slog.Logger
}

// NewGraphValidator creates a GraphValidator.
func NewGraphValidator(repo domain.TransformationRepository, sql domain.SQLValidator, logger *slog.Logger) *GraphValidator {
	return &GraphValidator{repo: repo, sql: sql, logger: logger}
}

// ValidateDefine checks req against the stored graph and returns the record
// to persist, with every derived field filled in and creation_date set to now.
// The first failing check wins.
func (v *GraphValidator) ValidateDefine(ctx context.Context, req domain.DefineTransformationRequest, now time.Time) (*domain.Transformation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.InputQuery != nil && !v.sql.CheckSelect(*req.InputQuery) {
		return nil, domain.ErrMalformedQuery(*req.InputQuery)
	}
	if req.DependsOn != nil {
		if err := v.checkParent(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := v.checkJobMove(ctx, req); err != nil {
		return nil, err
	}
	return v.derive(req, now), nil
}

// checkParent requires the parent to exist in the same job and not to sit
// below req.ID in the graph. A new id naming itself has no parent yet and is
// an unknown dependency.
func (v *GraphValidator) checkParent(ctx context.Context, req domain.DefineTransformationRequest) error {
	parentID := *req.DependsOn
	parent, err := v.repo.Get(ctx, parentID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return domain.ErrUnknownDependency(parentID, req.JobID)
		}
		return err
	}
	if parent.JobID != req.JobID {
		return domain.ErrUnknownDependency(parentID, req.JobID)
	}
	if parentID == req.ID {
		return domain.ErrDependencyCycle(req.ID)
	}

	chain, err := ancestors(ctx, v.repo.Get, parent)
	if err != nil {
		return err
	}
	for _, a := range chain {
		if a.ID == req.ID {
			return domain.ErrDependencyCycle(req.ID)
		}
	}
	return nil
}

// checkJobMove rejects moving an existing record to another job while it
// still has dependents, which would leave them pointing across jobs.
func (v *GraphValidator) checkJobMove(ctx context.Context, req domain.DefineTransformationRequest) error {
	existing, err := v.repo.Get(ctx, req.ID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	if existing.JobID == req.JobID {
		return nil
	}
	return v.ValidateDelete(ctx, req.ID)
}

func (v *GraphValidator) derive(req domain.DefineTransformationRequest, now time.Time) *domain.Transformation {
	t := &domain.Transformation{
		ID:            req.ID,
		JobID:         req.JobID,
		Type:          req.Type,
		FunctionText:  req.FunctionText,
		InputQuery:    req.InputQuery,
		TargetTable:   req.TargetTable,
		TriggerTables: req.TriggerTables,
		DependsOn:     req.DependsOn,
		Parameters:    req.Parameters,
		Materialized:  req.TargetTable != nil,
		FunctionOnly:  req.InputQuery == nil,
		CreationDate:  now,
	}

	if v.sql.CheckFunction(req.FunctionText) {
		if name, ok := v.sql.ExtractFunctionName(req.FunctionText); ok {
			t.FunctionName = &name
		}
	} else {
		v.logger.Warn("function text is not a valid python function definition",
			"transformation_id", req.ID, "job_id", req.JobID)
	}

	if t.Materialized && t.FunctionName != nil {
		expr := ComposeOutput(*t.FunctionName, *t.InputQuery)
		t.OutputExpression = &expr
	}
	return t
}

// ValidateDelete rejects removing id while any record depends on it.
func (v *GraphValidator) ValidateDelete(ctx context.Context, id string) error {
	dependents, err := v.repo.FindByDependsOn(ctx, id)
	if err != nil {
		return err
	}
	if len(dependents) == 0 {
		return nil
	}
	names := make([]string, 0, maxNamedDependents)
	for i := 0; i < len(dependents) && i < maxNamedDependents; i++ {
		names = append(names, dependents[i].ID)
	}
	return domain.ErrDependentsExist(id, names)
}
