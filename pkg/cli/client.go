package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"transform-registry/internal/api"
)

// Client is a thin HTTP client for the registry's /v1 API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the registry.
type APIError struct {
	HTTPStatus int
	Kind       string
	Field      string
	ID         string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.HTTPStatus, e.Message)
}

// Do sends a request to /v1 + path. A non-nil body is sent as JSON.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	u := c.BaseURL + "/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// call performs a request and decodes a JSON answer into out, which may be
// nil for bodiless answers.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	resp, err := c.Do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// raw performs a request and returns the answer body unparsed.
func (c *Client) raw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// checkResponse turns an error status into an *APIError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	data, _ := io.ReadAll(resp.Body)
	var body api.ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return &APIError{
		HTTPStatus: resp.StatusCode,
		Kind:       body.Kind,
		Field:      body.Field,
		ID:         body.ID,
		Message:    body.Message,
	}
}

// === Typed calls ===

// Define upserts a transformation and returns its id.
func (c *Client) Define(ctx context.Context, id string, body api.DefineTransformationBody) (string, error) {
	var out api.IDResponse
	err := c.call(ctx, http.MethodPut, "/transformations/"+url.PathEscape(id), nil, body, &out)
	return out.ID, err
}

// Get returns one transformation.
func (c *Client) Get(ctx context.Context, id string) (*api.Transformation, error) {
	var out api.Transformation
	if err := c.call(ctx, http.MethodGet, "/transformations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of transformations.
func (c *Client) List(ctx context.Context, jobID string, maxResults int, pageToken string) (*api.ListTransformationsResponse, error) {
	q := url.Values{}
	if jobID != "" {
		q.Set("job_id", jobID)
	}
	if maxResults > 0 {
		q.Set("max_results", fmt.Sprint(maxResults))
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	var out api.ListTransformationsResponse
	if err := c.call(ctx, http.MethodGet, "/transformations", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a transformation.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var out api.IDResponse
	err := c.call(ctx, http.MethodDelete, "/transformations/"+url.PathEscape(id), nil, nil, &out)
	return out.ID, err
}

// MarkProcessed stamps a transformation's process date.
func (c *Client) MarkProcessed(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/transformations/"+url.PathEscape(id)+"/processed", nil, nil, nil)
}

// Types lists the allowed transformation types.
func (c *Client) Types(ctx context.Context) ([]string, error) {
	var out api.TypesResponse
	if err := c.call(ctx, http.MethodGet, "/transformation-types", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Types, nil
}

// Resolve returns the update pipeline for a changed table.
func (c *Client) Resolve(ctx context.Context, table string) (*api.UpdatePipeline, error) {
	var out api.UpdatePipeline
	q := url.Values{"table": []string{table}}
	if err := c.call(ctx, http.MethodGet, "/update-pipeline", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobOrder returns a job's ids in dependency order.
func (c *Client) JobOrder(ctx context.Context, jobID string) ([]string, error) {
	var out api.JobOrderResponse
	if err := c.call(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/order", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

// JobGraph returns a job's dependency forest in DOT format.
func (c *Client) JobGraph(ctx context.Context, jobID string) ([]byte, error) {
	return c.raw(ctx, "/jobs/"+url.PathEscape(jobID)+"/graph")
}

// Audit returns one page of audit entries.
func (c *Client) Audit(ctx context.Context, transformationID, action string, maxResults int) (*api.ListAuditResponse, error) {
	q := url.Values{}
	if transformationID != "" {
		q.Set("transformation_id", transformationID)
	}
	if action != "" {
		q.Set("action", action)
	}
	if maxResults > 0 {
		q.Set("max_results", fmt.Sprint(maxResults))
	}
	var out api.ListAuditResponse
	if err := c.call(ctx, http.MethodGet, "/audit", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
