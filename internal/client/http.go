package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/trigger"
	"github.com/groblegark/relay/internal/workflow"
)

// HTTPClient implements RelayClient using the relay HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Events and runs ---

func (c *HTTPClient) EmitEvent(ctx context.Context, evt trigger.Event) ([]*model.WorkflowRun, error) {
	var resp struct {
		Runs []*model.WorkflowRun `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", evt, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *HTTPClient) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *HTTPClient) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if len(req.Event) > 0 {
		q.Set("event", strings.Join(req.Event, ","))
	}
	if req.Branch != "" {
		q.Set("branch", req.Branch)
	}
	if req.CommitSHA != "" {
		q.Set("commit_sha", req.CommitSHA)
	}
	if req.Workflow != "" {
		q.Set("workflow", req.Workflow)
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", req.Offset))
	}

	path := "/v1/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListRunsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetRunEvents(ctx context.Context, id string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) ListWorkflows(ctx context.Context) ([]workflow.Definition, error) {
	var resp struct {
		Workflows []workflow.Definition `json:"workflows"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/workflows", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// --- Reviews and gate ---

func (c *HTTPClient) AddReview(ctx context.Context, branch, commitSHA, reviewer string) (*model.Review, error) {
	body := map[string]string{
		"commit_sha": commitSHA,
		"reviewer":   reviewer,
	}
	var review model.Review
	if err := c.doJSON(ctx, http.MethodPost, "/v1/branches/"+url.PathEscape(branch)+"/reviews", body, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func (c *HTTPClient) GetReviews(ctx context.Context, branch string) ([]*model.Review, error) {
	var resp struct {
		Reviews []*model.Review `json:"reviews"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/branches/"+url.PathEscape(branch)+"/reviews", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reviews, nil
}

func (c *HTTPClient) GateDecision(ctx context.Context, branch, commitSHA, pusher string) (*model.Decision, error) {
	q := url.Values{}
	q.Set("commit_sha", commitSHA)
	if pusher != "" {
		q.Set("pusher", pusher)
	}
	path := "/v1/branches/" + url.PathEscape(branch) + "/gate?" + q.Encode()

	var decision model.Decision
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// --- Branch protections ---

func (c *HTTPClient) SetProtection(ctx context.Context, p *model.BranchProtection) (*model.BranchProtection, error) {
	var out model.BranchProtection
	if err := c.doJSON(ctx, http.MethodPut, "/v1/protections/"+url.PathEscape(p.Branch), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetProtection(ctx context.Context, branch string) (*model.BranchProtection, error) {
	var p model.BranchProtection
	if err := c.doJSON(ctx, http.MethodGet, "/v1/protections/"+url.PathEscape(branch), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListProtections(ctx context.Context) ([]*model.BranchProtection, error) {
	var resp struct {
		Protections []*model.BranchProtection `json:"protections"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/protections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Protections, nil
}

func (c *HTTPClient) DeleteProtection(ctx context.Context, branch string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/protections/"+url.PathEscape(branch), nil, nil)
}

// --- Artifacts ---

func (c *HTTPClient) ListRunArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error) {
	var resp struct {
		Artifacts []*model.Artifact `json:"artifacts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID)+"/artifacts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Artifacts, nil
}

func (c *HTTPClient) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	var a model.Artifact
	if err := c.doJSON(ctx, http.MethodGet, "/v1/artifacts/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DownloadArtifact fetches the artifact blob itself.
func (c *HTTPClient) DownloadArtifact(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/artifacts/"+url.PathEscape(id)+"?download=true", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is an error response from the relay server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content, success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
