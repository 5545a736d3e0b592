package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"transform-registry/internal/domain"
)

// MemTransformationRepo is an in-memory domain.TransformationRepository that
// enforces the same conditional writes as the SQLite store. It is safe for
// concurrent use.
type MemTransformationRepo struct {
	mu      sync.Mutex
	records map[string]domain.Transformation

	// Gets counts Get calls, for tests asserting on memoization.
	Gets int
}

// NewMemTransformationRepo creates an empty store.
func NewMemTransformationRepo() *MemTransformationRepo {
	return &MemTransformationRepo{records: make(map[string]domain.Transformation)}
}

// Put stores t without any checks, for seeding states the write path would
// refuse, such as cycles or dangling references.
func (m *MemTransformationRepo) Put(t domain.Transformation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[t.ID] = cloneTransformation(t)
}

// Define implements domain.TransformationRepository.
func (m *MemTransformationRepo) Define(_ context.Context, t *domain.Transformation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.DependsOn != nil {
		parent, ok := m.records[*t.DependsOn]
		if !ok || parent.JobID != t.JobID {
			return "", domain.ErrUnknownDependency(*t.DependsOn, t.JobID)
		}
	}
	var moved []string
	for _, r := range m.sortedLocked() {
		if r.DependsOn != nil && *r.DependsOn == t.ID && r.JobID != t.JobID {
			moved = append(moved, r.ID)
		}
	}
	if len(moved) > 0 {
		return "", domain.ErrDependentsExist(t.ID, moved)
	}

	stored := cloneTransformation(*t)
	stored.ProcessDate = nil
	m.records[t.ID] = stored
	return t.ID, nil
}

// Get implements domain.TransformationRepository.
func (m *MemTransformationRepo) Get(_ context.Context, id string) (*domain.Transformation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++

	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrUnknownID(id)
	}
	out := cloneTransformation(r)
	return &out, nil
}

// Delete implements domain.TransformationRepository.
func (m *MemTransformationRepo) Delete(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dependents []string
	for _, r := range m.sortedLocked() {
		if r.DependsOn != nil && *r.DependsOn == id {
			dependents = append(dependents, r.ID)
		}
	}
	if len(dependents) > 0 {
		return "", domain.ErrDependentsExist(id, dependents)
	}
	if _, ok := m.records[id]; !ok {
		return "", domain.ErrUnknownID(id)
	}
	delete(m.records, id)
	return id, nil
}

// MarkProcessed implements domain.TransformationRepository.
func (m *MemTransformationRepo) MarkProcessed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return domain.ErrUnknownID(id)
	}
	r.ProcessDate = &at
	m.records[id] = r
	return nil
}

// FindByDependsOn implements domain.TransformationRepository.
func (m *MemTransformationRepo) FindByDependsOn(_ context.Context, id string) ([]domain.Transformation, error) {
	return m.filter(func(r domain.Transformation) bool {
		return r.DependsOn != nil && *r.DependsOn == id
	}), nil
}

// FindByTriggerTable implements domain.TransformationRepository.
func (m *MemTransformationRepo) FindByTriggerTable(_ context.Context, table string) ([]domain.Transformation, error) {
	return m.filter(func(r domain.Transformation) bool {
		for _, t := range r.TriggerTables {
			if t == table {
				return true
			}
		}
		return false
	}), nil
}

// List implements domain.TransformationRepository.
func (m *MemTransformationRepo) List(_ context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error) {
	all := m.filter(func(r domain.Transformation) bool {
		return filter.JobID == nil || r.JobID == *filter.JobID
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].JobID < all[j].JobID })

	total := int64(len(all))
	start := filter.Page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.Page.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *MemTransformationRepo) filter(keep func(domain.Transformation) bool) []domain.Transformation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transformation
	for _, r := range m.sortedLocked() {
		if keep(r) {
			out = append(out, cloneTransformation(r))
		}
	}
	return out
}

func (m *MemTransformationRepo) sortedLocked() []domain.Transformation {
	out := make([]domain.Transformation, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneTransformation(t domain.Transformation) domain.Transformation {
	if t.TriggerTables != nil {
		t.TriggerTables = append([]string(nil), t.TriggerTables...)
	}
	if t.Parameters != nil {
		t.Parameters = append([]byte(nil), t.Parameters...)
	}
	t.FunctionName = cloneString(t.FunctionName)
	t.InputQuery = cloneString(t.InputQuery)
	t.TargetTable = cloneString(t.TargetTable)
	t.DependsOn = cloneString(t.DependsOn)
	t.OutputExpression = cloneString(t.OutputExpression)
	if t.ProcessDate != nil {
		at := *t.ProcessDate
		t.ProcessDate = &at
	}
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ domain.TransformationRepository = (*MemTransformationRepo)(nil)
