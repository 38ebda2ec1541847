package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"boothvideo/internal/dispatcher"
	"boothvideo/internal/domain"
	"boothvideo/internal/intake"
)

const maxIntakeBody = 64 << 10

type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type tickResponse struct {
	OK     bool              `json:"ok"`
	Report dispatcher.Report `json:"report"`
}

type statusResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VideoStart queues a video job and returns without waiting for submission.
func (a *App) VideoStart(w http.ResponseWriter, r *http.Request) {
	if a.Intake == nil {
		a.error(w, http.StatusInternalServerError, "configuration", "intake not configured")
		return
	}
	var req intake.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIntakeBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	_, err := a.Intake.Start(r.Context(), req)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, startResponse{Status: "queued", Message: "Video task queued successfully"})
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		a.log(r).Error().Err(err).Msg("video start: misconfigured")
		a.error(w, http.StatusInternalServerError, "configuration", "ledger not configured")
	default:
		a.log(r).Error().Err(err).Msg("video start: queue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue video")
	}
}

// VideoTick runs one dispatcher pass.
func (a *App) VideoTick(w http.ResponseWriter, r *http.Request) {
	if a.Ticker == nil {
		a.error(w, http.StatusInternalServerError, "configuration", "dispatcher not configured")
		return
	}
	rep, err := a.Ticker.Tick(r.Context())
	switch {
	case err == nil:
		a.json(w, http.StatusOK, tickResponse{OK: true, Report: rep})
	case errors.Is(err, dispatcher.ErrTickInProgress):
		a.error(w, http.StatusConflict, "busy", err.Error())
	default:
		a.log(r).Error().Err(err).Msg("video tick failed")
		a.error(w, http.StatusInternalServerError, "tick_failed", err.Error())
	}
}

// VideoStatus asks the provider directly about one task.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "taskId is required")
		return
	}
	if a.Provider == nil {
		a.error(w, http.StatusInternalServerError, "configuration", "provider not configured")
		return
	}
	status, err := a.Provider.QueryStatus(r.Context(), taskID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited):
		a.json(w, http.StatusTooManyRequests, statusResponse{Status: "processing", Error: "too many requests, try again later"})
		return
	case errors.Is(err, domain.ErrConfiguration):
		a.error(w, http.StatusInternalServerError, "configuration", "provider not configured")
		return
	default:
		a.log(r).Warn().Err(err).Str("task_id", taskID).Msg("video status: provider unavailable")
		a.error(w, http.StatusBadGateway, "provider_unavailable", err.Error())
		return
	}

	switch status.Kind {
	case domain.StatusSucceeded:
		a.json(w, http.StatusOK, statusResponse{Status: "done", VideoURL: status.ResultURL})
	case domain.StatusFailed:
		a.json(w, http.StatusOK, statusResponse{Status: "failed", Error: status.Reason})
	default:
		a.json(w, http.StatusOK, statusResponse{Status: "processing"})
	}
}
