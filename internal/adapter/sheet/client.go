// Package sheet is the ledger backed by the kiosk's Apps Script web app. The
// script fronts a spreadsheet: reads are GET ?action=..., writes are POSTs of
// a JSON body sent as text/plain so browsers skip the CORS preflight the
// script cannot answer.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
)

// ErrMissingURL indicates the client was built without a script URL.
var ErrMissingURL = fmt.Errorf("sheet: apps script url is required: %w", domain.ErrConfiguration)

// Options configures the Apps Script client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Client reads and writes job rows through the Apps Script web app.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
	now        func() time.Time
}

// envelope is the common shape of script responses. Older deployments omit
// "ok" on success, so a missing flag counts as success.
type envelope struct {
	OK       *bool  `json:"ok"`
	Error    string `json:"error"`
	Conflict bool   `json:"conflict"`
	FileID   string `json:"fileId"`
}

func (e envelope) failed() bool {
	return e.OK != nil && !*e.OK
}

// NewClient constructs a client with defaults for timeout and clock.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:    strings.TrimSpace(opts.BaseURL),
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		timeout:    timeout,
		now:        now,
	}, nil
}

// Configured reports whether a script URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

func (c *Client) get(ctx context.Context, action string, out any) error {
	if !c.Configured() {
		return ErrMissingURL
	}
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("sheet: parse url: %w", errors.Join(domain.ErrConfiguration, err))
	}
	q := endpoint.Query()
	q.Set("action", action)
	// cache buster: the script is served behind Google's edge cache
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	endpoint.RawQuery = q.Encode()
	return c.do(ctx, http.MethodGet, endpoint.String(), nil, out)
}

func (c *Client) post(ctx context.Context, payload map[string]any, out any) error {
	if !c.Configured() {
		return ErrMissingURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sheet: encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL, body, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("sheet: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheet: http request: %w", errors.Join(domain.ErrLedgerUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sheet: read response: %w", errors.Join(domain.ErrLedgerUnavailable, err))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sheet: status %d: %w", resp.StatusCode, domain.ErrLedgerUnavailable)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		c.logger.Error().Str("body", snippet).Msg("sheet: script returned non-json")
		return fmt.Errorf("sheet: decode response: %w", errors.Join(domain.ErrLedgerUnavailable, err))
	}
	return nil
}
