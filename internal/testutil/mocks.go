// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"time"

	"transform-registry/internal/domain"
)

// === Audit Repository Mock ===

// MockAuditRepo implements domain.AuditRepository for testing.
type MockAuditRepo struct {
	InsertFn func(ctx context.Context, e *domain.AuditEntry) error
	ListFn   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)
	Entries  []*domain.AuditEntry // collected entries for assertions
}

// Insert implements the interface method for testing.
func (m *MockAuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, e); err != nil {
			return err
		}
	}
	m.Entries = append(m.Entries, e)
	return nil
}

// List implements the interface method for testing.
func (m *MockAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockAuditRepo.List")
}

// LastEntry returns the last collected audit entry, or nil if none.
func (m *MockAuditRepo) LastEntry() *domain.AuditEntry {
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// HasAction returns true if any collected entry has the given action.
func (m *MockAuditRepo) HasAction(action string) bool {
	for _, e := range m.Entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

var _ domain.AuditRepository = (*MockAuditRepo)(nil)

// === Transformation Repository Mock ===

// MockTransformationRepo implements domain.TransformationRepository for
// testing. Every unset function panics when called.
type MockTransformationRepo struct {
	DefineFn             func(ctx context.Context, t *domain.Transformation) (string, error)
	GetFn                func(ctx context.Context, id string) (*domain.Transformation, error)
	DeleteFn             func(ctx context.Context, id string) (string, error)
	MarkProcessedFn      func(ctx context.Context, id string, at time.Time) error
	FindByDependsOnFn    func(ctx context.Context, id string) ([]domain.Transformation, error)
	FindByTriggerTableFn func(ctx context.Context, table string) ([]domain.Transformation, error)
	ListFn               func(ctx context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error)
}

// Define implements the interface method for testing.
func (m *MockTransformationRepo) Define(ctx context.Context, t *domain.Transformation) (string, error) {
	if m.DefineFn != nil {
		return m.DefineFn(ctx, t)
	}
	panic("unexpected call to MockTransformationRepo.Define")
}

// Get implements the interface method for testing.
func (m *MockTransformationRepo) Get(ctx context.Context, id string) (*domain.Transformation, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	panic("unexpected call to MockTransformationRepo.Get")
}

// Delete implements the interface method for testing.
func (m *MockTransformationRepo) Delete(ctx context.Context, id string) (string, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	panic("unexpected call to MockTransformationRepo.Delete")
}

// MarkProcessed implements the interface method for testing.
func (m *MockTransformationRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	if m.MarkProcessedFn != nil {
		return m.MarkProcessedFn(ctx, id, at)
	}
	panic("unexpected call to MockTransformationRepo.MarkProcessed")
}

// FindByDependsOn implements the interface method for testing.
func (m *MockTransformationRepo) FindByDependsOn(ctx context.Context, id string) ([]domain.Transformation, error) {
	if m.FindByDependsOnFn != nil {
		return m.FindByDependsOnFn(ctx, id)
	}
	panic("unexpected call to MockTransformationRepo.FindByDependsOn")
}

// FindByTriggerTable implements the interface method for testing.
func (m *MockTransformationRepo) FindByTriggerTable(ctx context.Context, table string) ([]domain.Transformation, error) {
	if m.FindByTriggerTableFn != nil {
		return m.FindByTriggerTableFn(ctx, table)
	}
	panic("unexpected call to MockTransformationRepo.FindByTriggerTable")
}

// List implements the interface method for testing.
func (m *MockTransformationRepo) List(ctx context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockTransformationRepo.List")
}

var _ domain.TransformationRepository = (*MockTransformationRepo)(nil)
