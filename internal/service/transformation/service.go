// Package transformation implements the registry's write path, its
// update-pipeline resolution and the job graph export.
package transformation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"transform-registry/internal/domain"
	"transform-registry/internal/metrics"
)

// Write operation labels, shared with metrics.
const (
	opDefine        = "define"
	opDelete        = "delete"
	opMarkProcessed = "mark_processed"
)

// Service is the registry's API to its callers.
type Service struct {
	repo      domain.TransformationRepository
	audit     domain.AuditRepository
	validator *GraphValidator
	resolver  *PipelineResolver
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. m may be nil.
func NewService(
	repo domain.TransformationRepository,
	audit domain.AuditRepository,
	sql domain.SQLValidator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		audit:     audit,
		validator: NewGraphValidator(repo, sql, logger),
		resolver:  NewPipelineResolver(repo),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for creation and process dates.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// DefineTransformation validates req and upserts the resulting record,
// returning its id.
func (s *Service) DefineTransformation(ctx context.Context, req domain.DefineTransformationRequest) (string, error) {
	t, err := s.validator.ValidateDefine(ctx, req, s.now())
	if err != nil {
		s.recordWrite(opDefine, err)
		return "", err
	}

	id, err := s.repo.Define(ctx, t)
	s.recordWrite(opDefine, err)
	if err != nil {
		return "", err
	}

	s.logger.Info("transformation defined",
		"transformation_id", id, "job_id", t.JobID, "type", t.Type, "materialized", t.Materialized)
	s.logAudit(ctx, domain.AuditActionDefineTransformation, t.ID, t.JobID, fmt.Sprintf("type=%s", t.Type))
	return id, nil
}

// DeleteTransformation removes id when nothing depends on it.
func (s *Service) DeleteTransformation(ctx context.Context, id string) (string, error) {
	if err := s.validator.ValidateDelete(ctx, id); err != nil {
		s.recordWrite(opDelete, err)
		return "", err
	}

	deleted, err := s.repo.Delete(ctx, id)
	s.recordWrite(opDelete, err)
	if err != nil {
		return "", err
	}

	s.logger.Info("transformation deleted", "transformation_id", deleted)
	s.logAudit(ctx, domain.AuditActionDeleteTransformation, deleted, "", "")
	return deleted, nil
}

// MarkProcessed stamps id's process_date with the current time.
func (s *Service) MarkProcessed(ctx context.Context, id string) error {
	err := s.repo.MarkProcessed(ctx, id, s.now())
	s.recordWrite(opMarkProcessed, err)
	if err != nil {
		return err
	}
	s.logAudit(ctx, domain.AuditActionMarkProcessed, id, "", "")
	return nil
}

// GetTransformation returns a single record.
func (s *Service) GetTransformation(ctx context.Context, id string) (*domain.Transformation, error) {
	return s.repo.Get(ctx, id)
}

// ListTransformations returns a page of records and the total matching count.
func (s *Service) ListTransformations(ctx context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error) {
	return s.repo.List(ctx, filter)
}

// ListAudit returns a page of audit entries, newest first.
func (s *Service) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	return s.audit.List(ctx, filter)
}

// Types returns the transformation kinds a definition may declare.
func (s *Service) Types() []string {
	return domain.TransformationTypeNames()
}

// ResolveUpdatePipeline returns the plans to run after triggerTable changes,
// or nil when no transformation is triggered by it.
func (s *Service) ResolveUpdatePipeline(ctx context.Context, triggerTable string) (*domain.UpdatePipeline, error) {
	start := time.Now()
	pipeline, err := s.resolver.Resolve(ctx, triggerTable)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		s.metrics.ObserveResolve(metrics.ResolveFailed, elapsed, 0)
		s.logger.Error("update pipeline resolution failed",
			"trigger_table", triggerTable, "error", err, "kind", domain.KindOf(err))
		return nil, err
	case pipeline == nil:
		s.metrics.ObserveResolve(metrics.ResolveNotMatched, elapsed, 0)
		s.logger.Debug("no transformation triggered", "trigger_table", triggerTable)
		return nil, nil
	}

	count := 0
	for _, p := range pipeline.Plans {
		count += len(p.Transformations)
	}
	s.metrics.ObserveResolve(metrics.ResolveMatched, elapsed, count)
	s.logger.Debug("update pipeline resolved",
		"trigger_table", triggerTable, "jobs", len(pipeline.Plans), "transformations", count)
	return pipeline, nil
}

// JobOrder returns the ids of jobID's transformations in dependency order.
func (s *Service) JobOrder(ctx context.Context, jobID string) ([]string, error) {
	records, err := s.jobRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	g, err := BuildJobGraph(records)
	if err != nil {
		return nil, err
	}
	return TopologicalOrder(g)
}

// WriteJobGraph renders jobID's dependency forest to w in DOT format.
func (s *Service) WriteJobGraph(ctx context.Context, jobID string, w io.Writer) error {
	records, err := s.jobRecords(ctx, jobID)
	if err != nil {
		return err
	}
	g, err := BuildJobGraph(records)
	if err != nil {
		return err
	}
	return WriteDOT(g, w)
}

// jobRecords pages through every record of jobID.
func (s *Service) jobRecords(ctx context.Context, jobID string) ([]domain.Transformation, error) {
	filter := domain.TransformationFilter{
		JobID: &jobID,
		Page:  domain.PageRequest{MaxResults: domain.MaxMaxResults},
	}
	var out []domain.Transformation
	for {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		next := domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total)
		if next == "" || len(page) == 0 {
			return out, nil
		}
		filter.Page.PageToken = next
	}
}

func (s *Service) recordWrite(op string, err error) {
	switch {
	case err == nil:
		s.metrics.RecordWrite(op, metrics.OutcomeSuccess)
	case domain.KindOf(err) != "":
		s.metrics.RecordWrite(op, string(domain.KindOf(err)))
	default:
		s.metrics.RecordWrite(op, metrics.OutcomeError)
	}
}

// logAudit records a successful mutation. Audit failures are logged and
// never fail the mutation itself.
func (s *Service) logAudit(ctx context.Context, action, id, jobID, detail string) {
	entry := &domain.AuditEntry{
		RequestID:        domain.RequestIDFromContext(ctx),
		Action:           action,
		TransformationID: id,
		JobID:            jobID,
		CreatedAt:        s.now(),
	}
	if detail != "" {
		entry.Detail = &detail
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed", "action", action, "transformation_id", id, "error", err)
	}
}
