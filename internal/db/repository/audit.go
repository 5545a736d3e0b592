package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transform-registry/internal/domain"
)

var _ domain.AuditRepository = (*AuditRepo)(nil)

// AuditRepo stores audit entries in SQLite.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends e to the audit log, assigning an id and timestamp when unset.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, request_id, action, transformation_id, job_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RequestID, e.Action, e.TransformationID, e.JobID, nullString(e.Detail), formatTime(e.CreatedAt))
	return mapDBError(err)
}

// List returns a page of audit entries, newest first.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	// NULL disables the corresponding filter.
	transformationID := nullString(filter.TransformationID)
	action := nullString(filter.Action)

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE (? IS NULL OR transformation_id = ?) AND (? IS NULL OR action = ?)
	`, transformationID, transformationID, action, action).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, action, transformation_id, job_id, detail, created_at
		FROM audit_log
		WHERE (? IS NULL OR transformation_id = ?) AND (? IS NULL OR action = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, transformationID, transformationID, action, action, filter.Page.Limit(), filter.Page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			detail    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.TransformationID, &e.JobID, &detail, &createdAt); err != nil {
			return nil, 0, err
		}
		e.Detail = stringPtr(detail)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, fmt.Errorf("parse created_at of audit entry %q: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
