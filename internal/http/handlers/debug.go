package handlers

import (
	"net/http"
	"time"

	"boothvideo/internal/providers/seedance"
)

type debugResponse struct {
	Status    string               `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
	HTTPCode  int                  `json:"httpCode,omitempty"`
	Response  *seedance.PingResult `json:"ping,omitempty"`
	Config    DebugInfo            `json:"config"`
	Timestamp string               `json:"timestamp"`
}

// DebugProvider reports configuration flags and a live connectivity probe.
func (a *App) DebugProvider(w http.ResponseWriter, r *http.Request) {
	resp := debugResponse{Config: a.Info, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if a.Pinger == nil || !a.Pinger.Configured() {
		resp.Error = "missing provider config"
		a.json(w, http.StatusInternalServerError, resp)
		return
	}
	result, err := a.Pinger.Ping(r.Context())
	if err != nil {
		resp.Error = err.Error()
		a.json(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Status = "connection attempted"
	resp.HTTPCode = result.HTTPCode
	resp.Response = &result
	a.json(w, http.StatusOK, resp)
}
