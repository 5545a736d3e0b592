package domain

import "time"

// Audit action constants.
const (
	AuditActionDefineTransformation = "define_transformation"
	AuditActionDeleteTransformation = "delete_transformation"
	AuditActionMarkProcessed        = "mark_processed"
)

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID               string
	RequestID        string
	Action           string
	TransformationID string
	JobID            string
	Detail           *string
	CreatedAt        time.Time
}

// AuditFilter holds filter parameters for querying the audit log.
type AuditFilter struct {
	TransformationID *string
	Action           *string
	Page             PageRequest
}
