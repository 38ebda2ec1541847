package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"boothvideo/internal/dispatcher"
	"boothvideo/internal/domain"
	"boothvideo/internal/intake"
	"boothvideo/internal/providers/seedance"
)

type memLedger struct {
	created []domain.Job
	err     error
}

func (l *memLedger) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	return nil, nil
}

func (l *memLedger) UpdateJobState(ctx context.Context, id string, expected, next domain.JobState, fields domain.JobUpdate) error {
	return nil
}

func (l *memLedger) CreateJob(ctx context.Context, job domain.Job) error {
	if l.err != nil {
		return l.err
	}
	l.created = append(l.created, job)
	return nil
}

type stubTicker struct {
	rep dispatcher.Report
	err error
}

func (s stubTicker) Tick(ctx context.Context) (dispatcher.Report, error) {
	return s.rep, s.err
}

type stubProvider struct {
	status domain.CanonicalStatus
	err    error
}

func (p stubProvider) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	return "", errors.New("not used")
}

func (p stubProvider) QueryStatus(ctx context.Context, taskID string) (domain.CanonicalStatus, error) {
	return p.status, p.err
}

type stubPinger struct {
	configured bool
	result     seedance.PingResult
	err        error
}

func (p stubPinger) Configured() bool { return p.configured }

func (p stubPinger) Ping(ctx context.Context) (seedance.PingResult, error) {
	return p.result, p.err
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	(&App{}).Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestVideoStart(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		ledgerErr error
		wantCode  int
		wantJobs  int
	}{
		{name: "queued", body: `{"sourceImageId":"img-1","sessionFolderId":"s1"}`, wantCode: http.StatusOK, wantJobs: 1},
		{name: "legacy field", body: `{"driveFileId":"img-1"}`, wantCode: http.StatusOK, wantJobs: 1},
		{name: "missing source image", body: `{"sessionFolderId":"s1"}`, wantCode: http.StatusBadRequest},
		{name: "bad resolution", body: `{"sourceImageId":"x","resolution":"1080p"}`, wantCode: http.StatusBadRequest},
		{name: "invalid json", body: `{`, wantCode: http.StatusBadRequest},
		{name: "ledger down", body: `{"sourceImageId":"x"}`, ledgerErr: domain.ErrLedgerUnavailable, wantCode: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &memLedger{err: tc.ledgerErr}
			app := &App{Intake: intake.NewService(ledger, "", nil)}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/video/start", strings.NewReader(tc.body))
			app.VideoStart(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if len(ledger.created) != tc.wantJobs {
				t.Fatalf("expected %d ledger writes, got %d", tc.wantJobs, len(ledger.created))
			}
			body := decode(t, rec)
			if tc.wantCode == http.StatusOK {
				if body["status"] != "queued" {
					t.Fatalf("expected queued status, got %v", body)
				}
			} else if body["error"] == nil {
				t.Fatalf("expected error field, got %v", body)
			}
		})
	}
}

func TestVideoTick(t *testing.T) {
	tests := []struct {
		name     string
		ticker   stubTicker
		wantCode int
	}{
		{name: "ok", ticker: stubTicker{rep: dispatcher.Report{Processed: 1, Started: 2, Errors: []string{"j: boom"}}}, wantCode: http.StatusOK},
		{name: "config", ticker: stubTicker{err: fmt.Errorf("x: %w", domain.ErrConfiguration)}, wantCode: http.StatusInternalServerError},
		{name: "ledger", ticker: stubTicker{err: fmt.Errorf("x: %w", domain.ErrLedgerUnavailable)}, wantCode: http.StatusInternalServerError},
		{name: "busy", ticker: stubTicker{err: dispatcher.ErrTickInProgress}, wantCode: http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := &App{Ticker: tc.ticker}
			rec := httptest.NewRecorder()
			app.VideoTick(rec, httptest.NewRequest(http.MethodGet, "/api/video/tick", nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			body := decode(t, rec)
			if tc.wantCode != http.StatusOK {
				if body["error"] == nil {
					t.Fatalf("expected error field, got %v", body)
				}
				return
			}
			if body["ok"] != true {
				t.Fatalf("expected ok true, got %v", body)
			}
			report := body["report"].(map[string]any)
			if report["processed"] != float64(1) || report["started"] != float64(2) {
				t.Fatalf("unexpected report %v", report)
			}
			if errs := report["errors"].([]any); len(errs) != 1 {
				t.Fatalf("unexpected errors %v", errs)
			}
		})
	}
}

func TestVideoStatus(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		provider   stubProvider
		wantCode   int
		wantStatus string
		wantField  string
	}{
		{name: "missing task", query: "", wantCode: http.StatusBadRequest},
		{name: "done", query: "?taskId=t1", provider: stubProvider{status: domain.Succeeded("https://x/y.mp4")}, wantCode: http.StatusOK, wantStatus: "done", wantField: "videoUrl"},
		{name: "processing", query: "?taskId=t1", provider: stubProvider{status: domain.Processing()}, wantCode: http.StatusOK, wantStatus: "processing"},
		{name: "failed", query: "?taskId=t1", provider: stubProvider{status: domain.Failed("nsfw")}, wantCode: http.StatusOK, wantStatus: "failed", wantField: "error"},
		{name: "rate limited", query: "?taskId=t1", provider: stubProvider{status: domain.Processing(), err: domain.ErrRateLimited}, wantCode: http.StatusTooManyRequests, wantStatus: "processing"},
		{name: "unavailable", query: "?taskId=t1", provider: stubProvider{err: domain.ErrProviderUnavailable}, wantCode: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := &App{Provider: tc.provider}
			rec := httptest.NewRecorder()
			app.VideoStatus(rec, httptest.NewRequest(http.MethodGet, "/api/video/status"+tc.query, nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			body := decode(t, rec)
			if tc.wantStatus != "" && body["status"] != tc.wantStatus {
				t.Fatalf("expected status %q, got %v", tc.wantStatus, body)
			}
			if tc.wantField != "" && body[tc.wantField] == nil {
				t.Fatalf("expected field %q, got %v", tc.wantField, body)
			}
		})
	}
}

func TestDebugProvider(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		app := &App{Pinger: stubPinger{}, Info: DebugInfo{HasBaseURL: true}}
		rec := httptest.NewRecorder()
		app.DebugProvider(rec, httptest.NewRequest(http.MethodGet, "/api/debug/provider", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["config"].(map[string]any)["hasBaseUrl"] != true {
			t.Fatalf("expected config echo, got %v", body)
		}
	})

	t.Run("ping", func(t *testing.T) {
		app := &App{Pinger: stubPinger{configured: true, result: seedance.PingResult{HTTPCode: 200, Response: json.RawMessage(`{"items":[]}`)}}}
		rec := httptest.NewRecorder()
		app.DebugProvider(rec, httptest.NewRequest(http.MethodGet, "/api/debug/provider", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode(t, rec); body["httpCode"] != float64(200) {
			t.Fatalf("unexpected body %v", body)
		}
	})
}

func allowAll(*url.URL) bool { return true }

func TestVideoProxyStreamsWithRange(t *testing.T) {
	var gotRange string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "video/webm")
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, "abcd")
	}))
	defer upstream.Close()

	app := &App{ProxyTargetAllowed: allowAll}
	req := httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(upstream.URL+"/v.mp4"), nil)
	req.Header.Set("Range", "bytes=0-3")
	rec := httptest.NewRecorder()
	app.VideoProxy(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if gotRange != "bytes=0-3" {
		t.Fatalf("range not forwarded, got %q", gotRange)
	}
	h := rec.Header()
	if h.Get("Content-Type") != "video/webm" || h.Get("Accept-Ranges") != "bytes" || h.Get("Vary") != "Range" {
		t.Fatalf("unexpected headers %v", h)
	}
	if h.Get("Cache-Control") != "public, max-age=3600" || h.Get("Content-Range") != "bytes 0-3/10" {
		t.Fatalf("unexpected headers %v", h)
	}
	if rec.Body.String() != "abcd" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestVideoProxyDefaultsContentType(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, "frames")
	}))
	defer upstream.Close()

	app := &App{ProxyTargetAllowed: allowAll}
	rec := httptest.NewRecorder()
	app.VideoProxy(rec, httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(upstream.URL), nil))

	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("expected video/mp4 fallback, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestVideoProxyBlocksRedirectToForbiddenHost(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "internal-secret")
	}))
	defer internal.Close()
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/admin", http.StatusFound)
	}))
	defer public.Close()

	publicURL, _ := url.Parse(public.URL)
	app := &App{ProxyTargetAllowed: func(u *url.URL) bool { return u.Host == publicURL.Host }}
	rec := httptest.NewRecorder()
	app.VideoProxy(rec, httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(public.URL+"/v.mp4"), nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "internal-secret") {
		t.Fatal("redirect target content leaked")
	}
}

func TestVideoProxyFollowsAllowedRedirect(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = io.WriteString(w, "video")
	}))
	defer cdn.Close()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cdn.URL+"/v.mp4", http.StatusFound)
	}))
	defer origin.Close()

	app := &App{ProxyTargetAllowed: allowAll}
	rec := httptest.NewRecorder()
	app.VideoProxy(rec, httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(origin.URL), nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "video" {
		t.Fatalf("expected redirected video, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestVideoProxyStreamsPastWriteTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = io.WriteString(w, "first-")
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = io.WriteString(w, "second")
	}))
	defer upstream.Close()

	app := &App{ProxyTargetAllowed: allowAll}
	proxy := httptest.NewUnstartedServer(http.HandlerFunc(app.VideoProxy))
	proxy.Config.WriteTimeout = 50 * time.Millisecond
	proxy.Start()
	defer proxy.Close()

	resp, err := http.Get(proxy.URL + "/api/video/proxy?url=" + url.QueryEscape(upstream.URL))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || string(body) != "first-second" {
		t.Fatalf("stream cut short: %q %v", body, err)
	}
}

func TestVideoProxyRetriesWithoutRangeOn416(t *testing.T) {
	var calls []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Header.Get("Range"))
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		_, _ = io.WriteString(w, "full")
	}))
	defer upstream.Close()

	app := &App{ProxyTargetAllowed: allowAll}
	req := httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(upstream.URL), nil)
	req.Header.Set("Range", "bytes=100-")
	rec := httptest.NewRecorder()
	app.VideoProxy(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "full" {
		t.Fatalf("expected full body after retry, got %d %q", rec.Code, rec.Body.String())
	}
	if len(calls) != 2 || calls[0] != "bytes=100-" || calls[1] != "" {
		t.Fatalf("unexpected upstream calls %v", calls)
	}
}

func TestVideoProxyRejects(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantCode int
	}{
		{name: "missing", target: "", wantCode: http.StatusBadRequest},
		{name: "ftp", target: "ftp://example.com/v.mp4", wantCode: http.StatusBadRequest},
		{name: "localhost", target: "http://localhost:8080/v.mp4", wantCode: http.StatusForbidden},
		{name: "loopback", target: "http://127.0.0.1/v.mp4", wantCode: http.StatusForbidden},
		{name: "private", target: "https://192.168.1.10/v.mp4", wantCode: http.StatusForbidden},
		{name: "ten net", target: "https://10.0.0.5/v.mp4", wantCode: http.StatusForbidden},
		{name: "unspecified", target: "http://0.0.0.0/v.mp4", wantCode: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(tc.target), nil)
			(&App{}).VideoProxy(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
		})
	}
}

func TestVideoProxyUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/video/proxy?url="+url.QueryEscape(upstream.URL), nil)
	(&App{ProxyTargetAllowed: allowAll}).VideoProxy(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestPublicTarget(t *testing.T) {
	tests := map[string]bool{
		"https://ark-content.example.com/v.mp4": true,
		"https://8.8.8.8/v.mp4":                 true,
		"http://LOCALHOST/v.mp4":                false,
		"http://api.localhost/v.mp4":            false,
		"http://[::1]/v.mp4":                    false,
		"http://172.16.0.1/v.mp4":               false,
		"http://169.254.169.254/latest":         false,
	}
	for raw, want := range tests {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got := PublicTarget(u); got != want {
			t.Fatalf("PublicTarget(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestOpenAPIJSONDescribesVideoRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	(&App{}).OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatal("expected cache headers")
	}
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, path := range []string{"/api/video/start", "/api/video/tick", "/api/video/status", "/api/video/proxy"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("missing path %s", path)
		}
	}
}

func TestOpenAPIDocsPointsAtSpec(t *testing.T) {
	rec := httptest.NewRecorder()
	(&App{}).OpenAPIDocs(rec, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))
	if !strings.Contains(rec.Body.String(), `spec-url="/v1/openapi.json"`) {
		t.Fatalf("docs page does not reference the spec: %s", rec.Body.String())
	}
}
