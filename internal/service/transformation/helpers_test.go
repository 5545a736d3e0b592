package transformation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transform-registry/internal/domain"
	"transform-registry/internal/sqlcheck"
	"transform-registry/internal/testutil"
)

const fnText = `CREATE FUNCTION f (data DOUBLE) RETURN TABLE (result DOUBLE) LANGUAGE PYTHON
{
    import numpy; return {'result': numpy.log(data)}
}`

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return baseTime.Add(time.Duration(n) * time.Second)
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newMemService(t *testing.T) (*Service, *testutil.MemTransformationRepo, *testutil.MockAuditRepo) {
	t.Helper()
	repo := testutil.NewMemTransformationRepo()
	audit := &testutil.MockAuditRepo{}
	svc := NewService(repo, audit, sqlcheck.New(), nil, discardLogger())
	svc.SetClock(stepClock())
	return svc, repo, audit
}

func fnOnlyReq(id, job string) domain.DefineTransformationRequest {
	return domain.DefineTransformationRequest{
		ID:           id,
		Type:         domain.TransformationTypeTransform,
		FunctionText: fnText,
		JobID:        job,
	}
}

func queryReq(id, job string, dependsOn *string, triggers ...string) domain.DefineTransformationRequest {
	req := fnOnlyReq(id, job)
	req.InputQuery = strPtr("SELECT * FROM src")
	req.DependsOn = dependsOn
	req.TriggerTables = triggers
	return req
}

func mustDefine(t *testing.T, svc *Service, req domain.DefineTransformationRequest) {
	t.Helper()
	_, err := svc.DefineTransformation(context.Background(), req)
	require.NoError(t, err)
}

// seedScenarioA builds job J1 as the chain A <- B <- C <- D <- E and job J2
// as the single record F, every one of them triggered by T.
func seedScenarioA(t *testing.T, svc *Service) {
	t.Helper()
	mustDefine(t, svc, queryReq("A", "J1", nil, "T"))
	prev := "A"
	for _, id := range []string{"B", "C", "D", "E"} {
		mustDefine(t, svc, queryReq(id, "J1", strPtr(prev), "T"))
		prev = id
	}
	mustDefine(t, svc, queryReq("F", "J2", nil, "T"))
}

func planIDs(p domain.ExecutionPlan) []string {
	out := make([]string, len(p.Transformations))
	for i, s := range p.Transformations {
		out[i] = s.ID
	}
	return out
}

func planDepths(p domain.ExecutionPlan) []int {
	out := make([]int, len(p.Transformations))
	for i, s := range p.Transformations {
		out[i] = s.Depth
	}
	return out
}
