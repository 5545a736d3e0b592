package transformation

import (
	"context"
	"sort"

	"transform-registry/internal/domain"
)

// PipelineResolver computes which transformations must re-run after a
// trigger table changes. It holds no state between calls.
type PipelineResolver struct {
	repo domain.TransformationRepository
}

// NewPipelineResolver creates a PipelineResolver.
func NewPipelineResolver(repo domain.TransformationRepository) *PipelineResolver {
	return &PipelineResolver{repo: repo}
}

// Resolve returns the job-grouped plans for triggerTable, or nil when no
// record lists it as a trigger. The roots and every ancestor they reach are
// included once per job, ordered by depth then id, and plans are ordered by
// job id, so the output is stable for unchanged store contents.
func (r *PipelineResolver) Resolve(ctx context.Context, triggerTable string) (*domain.UpdatePipeline, error) {
	roots, err := r.repo.FindByTriggerTable(ctx, triggerTable)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}

	// Records are memoized for this call only.
	seen := make(map[string]*domain.Transformation, len(roots))
	for i := range roots {
		seen[roots[i].ID] = &roots[i]
	}
	fetch := func(ctx context.Context, id string) (*domain.Transformation, error) {
		if t, ok := seen[id]; ok {
			return t, nil
		}
		t, err := r.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		seen[id] = t
		return t, nil
	}

	steps := make(map[string]domain.PlanStep)
	for i := range roots {
		root := &roots[i]
		if _, done := steps[root.ID]; done {
			continue
		}
		chain, err := ancestors(ctx, fetch, root)
		if err != nil {
			return nil, err
		}
		steps[root.ID] = domain.PlanStep{
			Transformation: *root,
			Depth:          len(chain),
			Ancestors:      idsOf(chain),
		}
		// Each ancestor's own chain is the remainder of this one.
		for j, a := range chain {
			if _, done := steps[a.ID]; done {
				continue
			}
			rest := chain[j+1:]
			steps[a.ID] = domain.PlanStep{
				Transformation: *a,
				Depth:          len(rest),
				Ancestors:      idsOf(rest),
			}
		}
	}

	return &domain.UpdatePipeline{
		TriggerTable: triggerTable,
		Plans:        groupByJob(steps),
	}, nil
}

func groupByJob(steps map[string]domain.PlanStep) []domain.ExecutionPlan {
	byJob := make(map[string][]domain.PlanStep)
	for _, s := range steps {
		byJob[s.JobID] = append(byJob[s.JobID], s)
	}

	jobIDs := make([]string, 0, len(byJob))
	for id := range byJob {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)

	plans := make([]domain.ExecutionPlan, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		list := byJob[jobID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Depth != list[j].Depth {
				return list[i].Depth < list[j].Depth
			}
			return list[i].ID < list[j].ID
		})
		plans = append(plans, domain.ExecutionPlan{JobID: jobID, Transformations: list})
	}
	return plans
}
