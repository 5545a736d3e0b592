package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transform-registry/internal/api"
)

// capturedRequest holds details captured from an incoming HTTP request.
type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// requestRecorder is a thread-safe recorder for HTTP requests received by httptest servers.
type requestRecorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *requestRecorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, capturedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Header: req.Header.Clone(),
		Body:   string(body),
	})
}

func (r *requestRecorder) last() capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return capturedRequest{}
	}
	return r.requests[len(r.requests)-1]
}

// jsonHandler records the request and responds with status and body.
func jsonHandler(rec *requestRecorder, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 30*time.Second, c.HTTPClient.Timeout)
}

func TestClient_Requests(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantQuery  string
		wantBody   string
	}{
		{
			name: "define escapes id",
			call: func(c *Client) error {
				_, err := c.Define(context.Background(), "a/b", api.DefineTransformationBody{Type: "fit", FunctionText: "f", JobID: "J"})
				return err
			},
			wantMethod: http.MethodPut,
			wantPath:   "/v1/transformations/a/b",
			wantBody:   `{"type":"fit","function_text":"f","job_id":"J"}`,
		},
		{
			name: "list with filters",
			call: func(c *Client) error {
				_, err := c.List(context.Background(), "J", 5, "tok")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/v1/transformations",
			wantQuery:  "job_id=J&max_results=5&page_token=tok",
		},
		{
			name: "resolve",
			call: func(c *Client) error {
				_, err := c.Resolve(context.Background(), "sales data")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/v1/update-pipeline",
			wantQuery:  "table=sales+data",
		},
		{
			name:       "mark processed",
			call:       func(c *Client) error { return c.MarkProcessed(context.Background(), "a") },
			wantMethod: http.MethodPost,
			wantPath:   "/v1/transformations/a/processed",
		},
		{
			name: "audit",
			call: func(c *Client) error {
				_, err := c.Audit(context.Background(), "a", "mark_processed", 0)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/v1/audit",
			wantQuery:  "action=mark_processed&transformation_id=a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &requestRecorder{}
			srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, `{}`))
			t.Cleanup(srv.Close)

			require.NoError(t, tt.call(NewClient(srv.URL)))
			got := rec.last()
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantQuery, got.Query)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, got.Body)
				assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
			} else {
				assert.Empty(t, got.Body)
			}
		})
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   APIError
	}{
		{
			name:   "typed error body",
			status: http.StatusConflict,
			body:   `{"code":409,"kind":"DependentsExist","id":"a","message":"at least one transformation depends on \"a\": b"}`,
			want:   APIError{HTTPStatus: 409, Kind: "DependentsExist", ID: "a", Message: `at least one transformation depends on "a": b`},
		},
		{
			name:   "plain text body",
			status: http.StatusBadGateway,
			body:   "upstream unavailable\n",
			want:   APIError{HTTPStatus: 502, Message: "upstream unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(jsonHandler(&requestRecorder{}, tt.status, tt.body))
			t.Cleanup(srv.Close)

			_, err := NewClient(srv.URL).Get(context.Background(), "a")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.want, *apiErr)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Types(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /transformation-types")
}
