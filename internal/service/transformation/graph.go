package transformation

import (
	"errors"
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"transform-registry/internal/domain"
)

func transformationHash(t domain.Transformation) string { return t.ID }

// BuildJobGraph builds the dependency forest of one job's records, with an
// edge from each parent to its dependents. Edges that would close a cycle
// are rejected as GraphCycle and parents outside records as
// UnknownDependency.
func BuildJobGraph(records []domain.Transformation) (graph.Graph[string, domain.Transformation], error) {
	g := graph.New(transformationHash, graph.Directed(), graph.PreventCycles())

	for _, t := range records {
		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", fmt.Sprintf(`%s\n(%s)`, t.ID, t.Type)),
		}
		if t.Materialized {
			attrs = append(attrs, graph.VertexAttribute("shape", "box"))
		}
		if err := g.AddVertex(t, attrs...); err != nil {
			return nil, fmt.Errorf("add vertex %s: %w", t.ID, err)
		}
	}

	for _, t := range records {
		if t.DependsOn == nil {
			continue
		}
		err := g.AddEdge(*t.DependsOn, t.ID)
		switch {
		case err == nil:
		case errors.Is(err, graph.ErrVertexNotFound):
			return nil, domain.ErrUnknownDependency(*t.DependsOn, t.JobID)
		case errors.Is(err, graph.ErrEdgeCreatesCycle):
			return nil, domain.ErrGraphCycle(t.ID)
		default:
			return nil, fmt.Errorf("add edge %s -> %s: %w", *t.DependsOn, t.ID, err)
		}
	}
	return g, nil
}

// TopologicalOrder returns the ids of g in dependency order, breaking ties by id.
func TopologicalOrder(g graph.Graph[string, domain.Transformation]) ([]string, error) {
	return graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
}

// WriteDOT renders g in Graphviz DOT format.
func WriteDOT(g graph.Graph[string, domain.Transformation], w io.Writer) error {
	return draw.DOT(g, w, draw.GraphAttribute("rankdir", "LR"))
}
