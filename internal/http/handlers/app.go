package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"boothvideo/internal/dispatcher"
	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
	"boothvideo/internal/intake"
	"boothvideo/internal/providers/seedance"
)

// Pinger probes provider connectivity.
type Pinger interface {
	Configured() bool
	Ping(ctx context.Context) (seedance.PingResult, error)
}

// DebugInfo is echoed by the provider debug endpoint. It never carries secrets.
type DebugInfo struct {
	HasAPIKey     bool   `json:"hasApiKey"`
	HasBaseURL    bool   `json:"hasBaseUrl"`
	BaseURL       string `json:"baseUrl"`
	LedgerDriver  string `json:"ledgerDriver"`
	HasLedger     bool   `json:"hasLedger"`
	ArchiveDriver string `json:"archiveDriver"`
}

type App struct {
	Logger      *infra.Logger
	Intake      *intake.Service
	Ticker      dispatcher.Ticker
	Provider    domain.Provider
	Pinger      Pinger
	Info        DebugInfo
	ProxyClient *http.Client
	// ProxyTargetAllowed decides which upstream hosts the video proxy may
	// reach. Nil means public hosts only.
	ProxyTargetAllowed func(*url.URL) bool
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": msg, "code": kind})
}

// log returns the request-scoped logger when one is attached.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return infra.LoggerOrDiscard(a.Logger)
}
