package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"boothvideo/internal/domain"
)

// galleryItem mirrors one spreadsheet row as returned by ?action=gallery.
// The photo id doubles as the job id and the source image id.
type galleryItem struct {
	ID                   string  `json:"id"`
	Type                 string  `json:"type"`
	SessionFolderID      string  `json:"sessionFolderId"`
	VideoStatus          string  `json:"videoStatus"`
	VideoTaskID          string  `json:"videoTaskId"`
	ProviderURL          string  `json:"providerUrl"`
	VideoFileID          string  `json:"videoFileId"`
	VideoPrompt          string  `json:"videoPrompt"`
	VideoResolution      string  `json:"videoResolution"`
	VideoModel           string  `json:"videoModel"`
	VideoError           string  `json:"videoError"`
	VideoArchiveAttempts flexInt `json:"videoArchiveAttempts"`
}

type galleryResponse struct {
	Items []galleryItem `json:"items"`
}

// flexInt accepts numbers and numeric strings; spreadsheet cells come back as either.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("sheet: invalid integer %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(int(n))
	return nil
}

func (it galleryItem) toJob() domain.Job {
	return domain.Job{
		ID:                it.ID,
		State:             domain.ParseJobState(it.VideoStatus),
		ProviderTaskID:    it.VideoTaskID,
		ProviderResultURL: it.ProviderURL,
		ArchivedFileID:    it.VideoFileID,
		FailureReason:     it.VideoError,
		ArchiveAttempts:   int(it.VideoArchiveAttempts),
		Prompt:            it.VideoPrompt,
		Resolution:        it.VideoResolution,
		Model:             it.VideoModel,
		SourceImageID:     it.ID,
		SessionFolderID:   it.SessionFolderID,
	}
}

// ListJobs reads the gallery and returns the rows that match filter in the
// order the script returns them.
func (c *Client) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	var resp galleryResponse
	if err := c.get(ctx, "gallery", &resp); err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID == "" || item.Type == "video" {
			continue
		}
		job := item.toJob()
		if filter.Matches(job) {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// UpdateJobState posts updateVideoStatus. expectedStatus lets the script
// refuse stale writes; it answers {ok:false, conflict:true} when it does.
func (c *Client) UpdateJobState(ctx context.Context, id string, expected, next domain.JobState, fields domain.JobUpdate) error {
	payload := map[string]any{
		"action":         "updateVideoStatus",
		"photoId":        id,
		"status":         string(next),
		"expectedStatus": string(expected),
	}
	if fields.ProviderTaskID != nil {
		payload["taskId"] = *fields.ProviderTaskID
	}
	if fields.ProviderResultURL != nil {
		payload["providerUrl"] = *fields.ProviderResultURL
	}
	if fields.ArchivedFileID != nil {
		payload["fileId"] = *fields.ArchivedFileID
	}
	if fields.FailureReason != nil {
		payload["error"] = *fields.FailureReason
	}
	if fields.ArchiveAttempts != nil {
		payload["archiveAttempts"] = *fields.ArchiveAttempts
	}

	var resp envelope
	if err := c.post(ctx, payload, &resp); err != nil {
		return err
	}
	if resp.Conflict {
		return fmt.Errorf("sheet: update %s to %s: %w", id, next, domain.ErrStateConflict)
	}
	if resp.failed() {
		return fmt.Errorf("sheet: update %s to %s: %s: %w", id, next, resp.Error, domain.ErrLedgerUnavailable)
	}
	return nil
}

// CreateJob posts queueVideo. The script overwrites an existing row for the
// same photo unless it is in flight.
func (c *Client) CreateJob(ctx context.Context, job domain.Job) error {
	payload := map[string]any{
		"action":          "queueVideo",
		"photoId":         job.ID,
		"sessionFolderId": job.SessionFolderID,
		"prompt":          job.Prompt,
		"resolution":      job.Resolution,
		"model":           job.Model,
	}
	var resp envelope
	if err := c.post(ctx, payload, &resp); err != nil {
		return err
	}
	if resp.failed() {
		return fmt.Errorf("sheet: queue %s: %s: %w", job.ID, resp.Error, domain.ErrLedgerUnavailable)
	}
	return nil
}

// Archive asks the script to copy the provider video into the session's
// Drive folder and returns the Drive file id.
func (c *Client) Archive(ctx context.Context, req domain.ArchiveRequest) (string, error) {
	payload := map[string]any{
		"action":          "finalizeVideoUpload",
		"photoId":         req.JobID,
		"videoUrl":        req.VideoURL,
		"sessionFolderId": req.SessionFolderID,
	}
	var resp envelope
	if err := c.post(ctx, payload, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrArchivalFailed, err)
	}
	if resp.failed() || resp.FileID == "" {
		reason := resp.Error
		if reason == "" {
			reason = "no file id returned"
		}
		return "", fmt.Errorf("sheet: finalize %s: %s: %w", req.JobID, reason, domain.ErrArchivalFailed)
	}
	return resp.FileID, nil
}

var (
	_ domain.Ledger       = (*Client)(nil)
	_ domain.Archiver     = (*Client)(nil)
	_ domain.Configurable = (*Client)(nil)
)
