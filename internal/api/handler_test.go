package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "transform-registry/internal/db"
	"transform-registry/internal/db/repository"
	"transform-registry/internal/domain"
	"transform-registry/internal/metrics"
	"transform-registry/internal/middleware"
	"transform-registry/internal/service/transformation"
	"transform-registry/internal/sqlcheck"
)

const fnText = `CREATE FUNCTION f (data DOUBLE) RETURN TABLE (result DOUBLE) LANGUAGE PYTHON
{
    import numpy; return {'result': numpy.log(data)}
}`

// newTestRouter serves a SQLite-backed registry.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	pools := internaldb.OpenTestPools(t)
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := transformation.NewService(
		repository.NewTransformationRepo(pools.Write, pools.Read),
		repository.NewAuditRepo(pools.Write),
		sqlcheck.New(),
		m,
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRouter(ctx, NewHandler(svc, logger), RouterConfig{
		Logger:             logger,
		Metrics:            m,
		CORSAllowedOrigins: []string{"https://ui.example"},
		Ping:               pools.Read.PingContext,
	})
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func fnOnlyBody(job string) map[string]interface{} {
	return map[string]interface{}{"type": "transform", "function_text": fnText, "job_id": job}
}

func queryBody(job string, extra map[string]interface{}) map[string]interface{} {
	b := fnOnlyBody(job)
	b["input_query"] = "SELECT * FROM src"
	for k, v := range extra {
		b[k] = v
	}
	return b
}

func mustPut(t *testing.T, h http.Handler, id string, body interface{}) {
	t.Helper()
	rec := do(t, h, http.MethodPut, "/v1/transformations/"+id, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDefineAndGet(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPut, "/v1/transformations/a", queryBody("J", map[string]interface{}{
		"target_table":   "out",
		"trigger_tables": []string{"T"},
		"parameters":     map[string]int{"window": 3},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a", decode[IDResponse](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/v1/transformations/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[Transformation](t, rec)
	assert.Equal(t, "J", got.JobID)
	assert.Equal(t, "transform", got.Type)
	require.NotNil(t, got.FunctionName)
	assert.Equal(t, "f", *got.FunctionName)
	assert.True(t, got.Materialized)
	assert.False(t, got.FunctionOnly)
	require.NotNil(t, got.OutputExpression)
	assert.Equal(t, "SELECT * FROM f((SELECT * FROM src))", *got.OutputExpression)
	assert.Equal(t, []string{"T"}, got.TriggerTables)
	assert.JSONEq(t, `{"window":3}`, string(got.Parameters))
	assert.Nil(t, got.ProcessDate)
	assert.False(t, got.CreationDate.IsZero())
}

func TestDefine_FunctionOnlyRendersNulls(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", fnOnlyBody("J"))

	rec := do(t, h, http.MethodGet, "/v1/transformations/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, field := range []string{"input_query", "target_table", "trigger_tables", "depends_on", "parameters", "output_expression", "process_date"} {
		assert.Equal(t, "null", string(raw[field]), field)
	}
	assert.Equal(t, "true", string(raw["function_only"]))
}

func TestDefine_Rejections(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "other", queryBody("K", nil))

	tests := []struct {
		name      string
		body      interface{}
		wantCode  int
		wantKind  string
		wantField string
		wantID    string
	}{
		{
			name:      "invalid type",
			body:      map[string]interface{}{"type": "train", "function_text": fnText, "job_id": "J"},
			wantCode:  http.StatusBadRequest,
			wantKind:  "InvalidType",
			wantField: "type",
		},
		{
			name:      "missing job",
			body:      map[string]interface{}{"type": "fit", "function_text": fnText},
			wantCode:  http.StatusBadRequest,
			wantKind:  "MissingField",
			wantField: "job_id",
		},
		{
			name: "function only with target",
			body: map[string]interface{}{
				"type": "transform", "function_text": fnText, "job_id": "J", "target_table": "out",
			},
			wantCode:  http.StatusBadRequest,
			wantKind:  "FunctionOnlyConflict",
			wantField: "target_table",
		},
		{
			name:      "malformed query",
			body:      queryBody("J", map[string]interface{}{"input_query": "DELETE FROM src"}),
			wantCode:  http.StatusBadRequest,
			wantKind:  "MalformedQuery",
			wantField: "input_query",
		},
		{
			name:     "parent in another job",
			body:     queryBody("J", map[string]interface{}{"depends_on": "other"}),
			wantCode: http.StatusConflict,
			wantKind: "UnknownDependency",
			wantID:   "other",
		},
		{
			name:     "new id depending on itself",
			body:     queryBody("J", map[string]interface{}{"depends_on": "x"}),
			wantCode: http.StatusConflict,
			wantKind: "UnknownDependency",
			wantID:   "x",
		},
		{
			name:     "unknown body field",
			body:     `{"type":"fit","function_text":"f","job_id":"J","bogus":1}`,
			wantCode: http.StatusBadRequest,
			wantKind: kindInvalidRequest,
		},
		{
			name:     "not json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
			wantKind: kindInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, "/v1/transformations/x", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode[ErrorBody](t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, tt.wantField, body.Field)
			assert.Equal(t, tt.wantID, body.ID)
			assert.NotEmpty(t, body.Message)
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/transformations/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "rejected defines must not write")
}

func TestDefine_CycleRejected(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", queryBody("J", nil))
	mustPut(t, h, "b", queryBody("J", map[string]interface{}{"depends_on": "a"}))

	tests := []struct {
		name string
		id   string
		body interface{}
	}{
		{name: "closing a cycle", id: "a", body: queryBody("J", map[string]interface{}{"depends_on": "b"})},
		{name: "redefined to depend on itself", id: "b", body: queryBody("J", map[string]interface{}{"depends_on": "b"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, "/v1/transformations/"+tt.id, tt.body)
			require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
			body := decode[ErrorBody](t, rec)
			assert.Equal(t, "GraphCycle", body.Kind)
			assert.Equal(t, tt.id, body.ID)
		})
	}

	got := decode[Transformation](t, do(t, h, http.MethodGet, "/v1/transformations/a", nil))
	assert.Nil(t, got.DependsOn, "rejected define must not write")
}

func TestDelete(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", queryBody("J", nil))
	mustPut(t, h, "b", queryBody("J", map[string]interface{}{"depends_on": "a"}))

	rec := do(t, h, http.MethodDelete, "/v1/transformations/a", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, "DependentsExist", body.Kind)
	assert.Equal(t, "a", body.ID)
	assert.Contains(t, body.Message, "b")

	rec = do(t, h, http.MethodDelete, "/v1/transformations/b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", decode[IDResponse](t, rec).ID)

	rec = do(t, h, http.MethodDelete, "/v1/transformations/b", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UnknownId", decode[ErrorBody](t, rec).Kind)

	rec = do(t, h, http.MethodDelete, "/v1/transformations/a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMarkProcessed(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", fnOnlyBody("J"))

	rec := do(t, h, http.MethodPost, "/v1/transformations/a/processed", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	got := decode[Transformation](t, do(t, h, http.MethodGet, "/v1/transformations/a", nil))
	require.NotNil(t, got.ProcessDate)

	rec = do(t, h, http.MethodPost, "/v1/transformations/missing/processed", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", decode[ErrorBody](t, rec).ID)
}

func TestListTransformations(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", fnOnlyBody("J1"))
	mustPut(t, h, "b", fnOnlyBody("J1"))
	mustPut(t, h, "c", fnOnlyBody("J2"))

	rec := do(t, h, http.MethodGet, "/v1/transformations?max_results=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[ListTransformationsResponse](t, rec)
	require.Len(t, first.Transformations, 2)
	assert.Equal(t, "a", first.Transformations[0].ID)
	require.NotEmpty(t, first.NextPageToken)

	rec = do(t, h, http.MethodGet, "/v1/transformations?max_results=2&page_token="+first.NextPageToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ListTransformationsResponse](t, rec)
	require.Len(t, second.Transformations, 1)
	assert.Equal(t, "c", second.Transformations[0].ID)
	assert.Empty(t, second.NextPageToken)

	rec = do(t, h, http.MethodGet, "/v1/transformations?job_id=J2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListTransformationsResponse](t, rec).Transformations, 1)

	rec = do(t, h, http.MethodGet, "/v1/transformations?max_results=many", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "max_results", decode[ErrorBody](t, rec).Field)
}

func TestListTypes(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/v1/transformation-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"transform", "predict", "fit"}, decode[TypesResponse](t, rec).Types)
}

func TestResolveUpdatePipeline(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", queryBody("J1", map[string]interface{}{"trigger_tables": []string{"T"}}))
	mustPut(t, h, "b", queryBody("J1", map[string]interface{}{"depends_on": "a", "trigger_tables": []string{"T"}}))
	mustPut(t, h, "c", queryBody("J1", map[string]interface{}{"depends_on": "b"}))
	mustPut(t, h, "d", queryBody("J2", map[string]interface{}{"trigger_tables": []string{"T", "U"}}))

	rec := do(t, h, http.MethodGet, "/v1/update-pipeline?table=T", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ancestors":[]`)

	got := decode[UpdatePipeline](t, rec)
	assert.True(t, got.Matched)
	assert.Equal(t, "T", got.TriggerTable)
	require.Len(t, got.Plans, 2)

	assert.Equal(t, "J1", got.Plans[0].JobID)
	steps := got.Plans[0].Transformations
	require.Len(t, steps, 2)
	assert.Equal(t, "a", steps[0].ID)
	assert.Equal(t, 0, steps[0].Depth)
	assert.Equal(t, "b", steps[1].ID)
	assert.Equal(t, 1, steps[1].Depth)
	assert.Equal(t, []string{"a"}, steps[1].Ancestors)
	assert.Equal(t, "J2", got.Plans[1].JobID)
	assert.Equal(t, "d", got.Plans[1].Transformations[0].ID)

	rec = do(t, h, http.MethodGet, "/v1/update-pipeline?table=nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trigger_table":"nothing","matched":false,"plans":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/update-pipeline", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, "MissingField", body.Kind)
	assert.Equal(t, "table", body.Field)

	metricsRec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `transform_registry_resolve_duration_seconds_count{result="matched"} 1`)
}

func TestJobOrderAndGraph(t *testing.T) {
	h := newTestRouter(t)
	mustPut(t, h, "a", queryBody("J", map[string]interface{}{"target_table": "out_a"}))
	mustPut(t, h, "b", queryBody("J", map[string]interface{}{"depends_on": "a"}))

	rec := do(t, h, http.MethodGet, "/v1/jobs/J/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, JobOrderResponse{JobID: "J", Order: []string{"a", "b"}}, decode[JobOrderResponse](t, rec))

	rec = do(t, h, http.MethodGet, "/v1/jobs/empty/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"job_id":"empty","order":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/jobs/J/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/vnd.graphviz"))
	assert.Contains(t, rec.Body.String(), `"a" -> "b"`)
}

func TestListAudit(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/transformations/a", strings.NewReader(`{"type":"fit","function_text":"x","job_id":"J"}`))
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/transformations/a/processed", nil).Code)

	rec = do(t, h, http.MethodGet, "/v1/audit?transformation_id=a&action="+domain.AuditActionDefineTransformation, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ListAuditResponse](t, rec)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "req-123", got.Entries[0].RequestID)
	assert.Equal(t, "J", got.Entries[0].JobID)

	rec = do(t, h, http.MethodGet, "/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListAuditResponse](t, rec).Entries, 2)
}

func TestHealthzAndCORS(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/v1/transformations/a", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/transformation-types", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz_Unavailable(t *testing.T) {
	h := NewRouter(context.Background(), NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))), RouterConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ping:   func(context.Context) error { return errors.New("db closed") },
	})
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are not mounted without a collector")
}

// failingService fails every read with a storage error.
type failingService struct {
	RegistryService
	err error
}

func (f failingService) GetTransformation(context.Context, string) (*domain.Transformation, error) {
	return nil, f.err
}

func TestStorageErrorIsOpaque(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewRouter(context.Background(),
		NewHandler(failingService{err: errors.New("disk I/O error")}, logger),
		RouterConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	rec := do(t, h, http.MethodGet, "/v1/transformations/a", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, "internal error", body.Message)
	assert.Empty(t, body.Kind)
	assert.Contains(t, logs.String(), "disk I/O error")
}

func TestRateLimitedV1(t *testing.T) {
	pools := internaldb.OpenTestPools(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := transformation.NewService(
		repository.NewTransformationRepo(pools.Write, pools.Read),
		repository.NewAuditRepo(pools.Write), sqlcheck.New(), nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewRouter(ctx, NewHandler(svc, logger), RouterConfig{
		Logger:    logger,
		RateLimit: &middleware.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
	})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/transformation-types", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/v1/transformation-types", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code, "health checks are not rate limited")
}
