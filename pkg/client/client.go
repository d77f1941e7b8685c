package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// StatusError is returned when the server answers with an unexpected status code
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the pipeline servers
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new pipeline client. Animation runs are synchronous, so the
// default timeout is generous.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// NewWithHTTPClient creates a new pipeline client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Process enqueues a run on the worker and returns its run ID
func (c *Client) Process(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.ProcessResponse, error) {
	var resp pipeline.ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/v1/process", req, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Animate runs the full pipeline on the standalone server. An aborted run is
// returned as a report with Aborted set, not as an error.
func (c *Client) Animate(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.Report, error) {
	var report pipeline.Report
	if err := c.do(ctx, http.MethodPost, "/v1/animate", req, &report, http.StatusOK, http.StatusUnprocessableEntity); err != nil {
		return nil, err
	}
	return &report, nil
}

// Concepts previews the concepts and seeds a run would use
func (c *Client) Concepts(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.ConceptsResponse, error) {
	var resp pipeline.ConceptsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/concepts", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the state of an asynchronous run
func (c *Client) Status(ctx context.Context, runID string) (*pipeline.RunStatus, error) {
	var status pipeline.RunStatus
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, &status, http.StatusOK); err != nil {
		return nil, err
	}
	return &status, nil
}

// SeenCount reports how often text has been submitted to the worker for job
func (c *Client) SeenCount(ctx context.Context, text, job string) (*pipeline.SeenResponse, error) {
	var resp pipeline.SeenResponse
	req := pipeline.SeenRequest{Text: text, Job: job}
	if err := c.do(ctx, http.MethodPost, "/v1/submissions/seen", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, want ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if !slices.Contains(want, resp.StatusCode) {
		bodyBytes, _ := io.ReadAll(resp.Body)
		msg := string(bytes.TrimSpace(bodyBytes))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
