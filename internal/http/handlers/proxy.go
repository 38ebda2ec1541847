package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxProxyRedirects    = 5
	defaultHeaderTimeout = 20 * time.Second
)

var (
	errForbiddenRedirect = errors.New("redirect to forbidden target")
	defaultProxyClient   = NewProxyClient(defaultHeaderTimeout)
)

// Headers copied from the upstream video response.
var proxiedHeaders = []string{"Content-Length", "Content-Range", "Last-Modified", "ETag"}

// NewProxyClient builds the upstream client for VideoProxy. Only the wait for
// response headers is bounded; the body streams as long as the player reads.
func NewProxyClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// VideoProxy streams a provider-hosted video so kiosk players can seek it
// from the same origin.
func (a *App) VideoProxy(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "missing url param")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid protocol")
		return
	}
	allowed := a.ProxyTargetAllowed
	if allowed == nil {
		allowed = PublicTarget
	}
	if !allowed(target) {
		a.error(w, http.StatusForbidden, "forbidden", "forbidden target")
		return
	}

	rangeHeader := r.Header.Get("Range")
	resp, err := a.fetchUpstream(r.Context(), target.String(), rangeHeader, allowed)
	if err == nil && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && rangeHeader != "" {
		// stale players ask for bytes past the end; serve the whole file instead
		resp.Body.Close()
		a.log(r).Warn().Str("url", target.Redacted()).Msg("video proxy: 416 from upstream, retrying without range")
		resp, err = a.fetchUpstream(r.Context(), target.String(), "", allowed)
	}
	if errors.Is(err, errForbiddenRedirect) {
		a.log(r).Warn().Str("url", target.Redacted()).Msg("video proxy: upstream redirected to a forbidden target")
		a.error(w, http.StatusForbidden, "forbidden", "forbidden target")
		return
	}
	if err != nil {
		a.log(r).Error().Err(err).Msg("video proxy: upstream request failed")
		a.error(w, http.StatusBadGateway, "upstream", "proxy stream error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.log(r).Warn().Int("status", resp.StatusCode).Str("url", target.Redacted()).Msg("video proxy: upstream error")
		a.error(w, http.StatusBadGateway, "upstream", "upstream error: "+resp.Status)
		return
	}

	h := w.Header()
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("Vary", "Range")
	for _, name := range proxiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	acceptRanges := resp.Header.Get("Accept-Ranges")
	if acceptRanges == "" {
		acceptRanges = "bytes"
	}
	h.Set("Accept-Ranges", acceptRanges)
	// the server write timeout is sized for JSON endpoints, not playback
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		a.log(r).Debug().Err(err).Msg("video proxy: client went away")
	}
}

// fetchUpstream follows redirects only while every hop passes allowed.
func (a *App) fetchUpstream(ctx context.Context, target, rangeHeader string, allowed func(*url.URL) bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	base := a.ProxyClient
	if base == nil {
		base = defaultProxyClient
	}
	client := *base
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= maxProxyRedirects {
			return errors.New("too many redirects")
		}
		if (next.URL.Scheme != "http" && next.URL.Scheme != "https") || !allowed(next.URL) {
			return errForbiddenRedirect
		}
		return nil
	}
	return client.Do(req)
}

// PublicTarget rejects localhost and private, loopback, link-local or
// unspecified literal addresses.
func PublicTarget(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast())
}
