package transformation

import (
	"context"
	"errors"

	"transform-registry/internal/domain"
)

// fetchFunc loads one record by id.
type fetchFunc func(ctx context.Context, id string) (*domain.Transformation, error)

// ancestors follows depends_on upward from t and returns every record on the
// way, nearest first. A revisited id is reported as a GraphCycle and a
// reference to a missing record as UnknownDependency; the chain is never
// cut short.
func ancestors(ctx context.Context, fetch fetchFunc, t *domain.Transformation) ([]*domain.Transformation, error) {
	visited := map[string]bool{t.ID: true}
	var chain []*domain.Transformation

	cur := t
	for cur.DependsOn != nil {
		id := *cur.DependsOn
		if visited[id] {
			return nil, domain.ErrGraphCycle(id)
		}
		visited[id] = true

		parent, err := fetch(ctx, id)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				return nil, domain.ErrUnknownDependency(id, cur.JobID)
			}
			return nil, err
		}
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}

func idsOf(chain []*domain.Transformation) []string {
	if len(chain) == 0 {
		return nil
	}
	out := make([]string, len(chain))
	for i, t := range chain {
		out[i] = t.ID
	}
	return out
}
