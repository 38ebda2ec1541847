// Package seedance talks to the ModelArk content-generation tasks API that
// renders short videos from a prompt and a source image.
package seedance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
)

// ErrMissingCredentials indicates the client was built without a base URL or API key.
var ErrMissingCredentials = fmt.Errorf("seedance: api key and base url are required: %w", domain.ErrConfiguration)

const (
	defaultDurationSeconds = 5
	maxResponseBytes       = 1 << 20
)

// Options configures the tasks API client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Duration       int
}

// Client performs HTTP calls against the generation tasks endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
	duration   int
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type taskParameters struct {
	Duration   int    `json:"duration"`
	Resolution string `json:"resolution"`
	Audio      bool   `json:"audio"`
}

type createTaskRequest struct {
	Model      string         `json:"model"`
	Content    []contentPart  `json:"content"`
	Parameters taskParameters `json:"parameters"`
}

// PingResult reports the outcome of a connectivity probe.
type PingResult struct {
	HTTPCode int             `json:"httpCode"`
	Response json.RawMessage `json:"response,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = defaultDurationSeconds
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		timeout:    timeout,
		duration:   duration,
	}, nil
}

// Configured reports whether the client can perform remote calls.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// Submit creates a generation task and returns its id. Any failure means the
// task must be treated as not created.
func (c *Client) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	if !c.Configured() {
		return "", ErrMissingCredentials
	}
	if strings.TrimSpace(req.SourceImageURL) == "" {
		return "", errors.New("seedance: source image url is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = domain.DefaultPrompt
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = domain.DefaultModel
	}
	payload := createTaskRequest{
		Model: model,
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: req.SourceImageURL}},
		},
		Parameters: taskParameters{
			Duration:   c.duration,
			Resolution: domain.NormalizeResolution(req.Resolution),
			Audio:      false,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("seedance: encode request: %w", err)
	}

	status, raw, err := c.do(ctx, http.MethodPost, c.tasksURL(), body)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("seedance: submit status %d: %s: %w", status, errorMessage(raw), domain.ErrProviderUnavailable)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("seedance: decode submit response: %w", errors.Join(domain.ErrProviderUnavailable, err))
	}
	taskID := firstString(doc, taskIDPaths)
	if taskID == "" {
		return "", fmt.Errorf("seedance: submit response without task id: %w", domain.ErrProviderUnavailable)
	}
	c.logger.Debug().
		Str("task_id", taskID).
		Str("model", model).
		Str("resolution", payload.Parameters.Resolution).
		Msg("seedance: task created")
	return taskID, nil
}

// QueryStatus fetches a task and normalizes it. A 404 or TaskNotFound reads
// as Processing because new tasks take a moment to become visible. A 429
// also reads as Processing but is returned with ErrRateLimited. Server errors
// and unparseable bodies are ErrProviderUnavailable; other client errors with
// a readable body mark the task failed.
func (c *Client) QueryStatus(ctx context.Context, taskID string) (domain.CanonicalStatus, error) {
	if !c.Configured() {
		return domain.Processing(), ErrMissingCredentials
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Processing(), errors.New("seedance: task id is required")
	}

	status, raw, err := c.do(ctx, http.MethodGet, c.tasksURL()+"/"+url.PathEscape(taskID), nil)
	if err != nil {
		return domain.Processing(), err
	}

	var doc map[string]any
	parseErr := json.Unmarshal(raw, &doc)

	switch {
	case status == http.StatusNotFound:
		return domain.Processing(), nil
	case parseErr == nil && isTaskNotFound(doc):
		return domain.Processing(), nil
	case status == http.StatusTooManyRequests:
		return domain.Processing(), fmt.Errorf("seedance: task %s: %w", taskID, domain.ErrRateLimited)
	case status >= 300 && parseErr != nil:
		return domain.Processing(), fmt.Errorf("seedance: status %d with unparseable body: %w", status, domain.ErrProviderUnavailable)
	case status >= 500:
		return domain.Processing(), fmt.Errorf("seedance: status %d: %s: %w", status, reasonOrDefault(doc), domain.ErrProviderUnavailable)
	case status >= 300:
		reason := reasonOrDefault(doc)
		c.logger.Warn().
			Str("task_id", taskID).
			Int("status", status).
			Str("reason", reason).
			Msg("seedance: task rejected")
		return domain.Failed(reason), nil
	case parseErr != nil:
		return domain.Processing(), fmt.Errorf("seedance: decode status: %w", errors.Join(domain.ErrProviderUnavailable, parseErr))
	}

	return normalizeStatus(doc), nil
}

// Ping lists a single task to verify connectivity and credentials.
func (c *Client) Ping(ctx context.Context) (PingResult, error) {
	if !c.Configured() {
		return PingResult{}, ErrMissingCredentials
	}
	status, raw, err := c.do(ctx, http.MethodGet, c.tasksURL()+"?offset=0&limit=1", nil)
	if err != nil {
		return PingResult{}, err
	}
	result := PingResult{HTTPCode: status}
	if json.Valid(raw) {
		result.Response = raw
	} else if len(raw) > 0 {
		quoted, _ := json.Marshal(string(raw))
		result.Response = quoted
	}
	return result, nil
}

func (c *Client) tasksURL() string {
	return c.baseURL + "/contents/generations/tasks"
}

// do performs one bounded request. Transport failures and timeouts are
// reported as ErrProviderUnavailable.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("seedance: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("seedance: http request: %w", errors.Join(domain.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("seedance: read response: %w", errors.Join(domain.ErrProviderUnavailable, err))
	}
	return resp.StatusCode, raw, nil
}

func reasonOrDefault(doc map[string]any) string {
	if reason := firstString(doc, failureReasonPaths); reason != "" {
		return reason
	}
	return "provider error"
}

func errorMessage(raw []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err == nil {
		return reasonOrDefault(doc)
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

var _ domain.Provider = (*Client)(nil)
