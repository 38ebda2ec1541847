// Package archive copies provider-hosted videos into storage the kiosk owns.
// Provider URLs expire, so a job is only done once one of these drivers has
// returned a file id.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"boothvideo/internal/domain"
)

// MaxVideoBytes caps a single download.
const MaxVideoBytes = 256 << 20

// Object key layout shared by the s3 and local drivers.
func objectKey(req domain.ArchiveRequest) string {
	folder := strings.TrimSpace(req.SessionFolderID)
	if folder == "" {
		folder = "unsorted"
	}
	return path.Join("videos", folder, req.JobID+".mp4")
}

type downloader struct {
	client  *http.Client
	timeout time.Duration
}

func newDownloader(client *http.Client, timeout time.Duration) downloader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if client == nil {
		client = &http.Client{}
	}
	return downloader{client: client, timeout: timeout}
}

// fetch opens the provider video. The caller closes the body and must call
// cancel once done reading.
func (d downloader) fetch(ctx context.Context, url string) (io.ReadCloser, string, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, "", nil, fmt.Errorf("archive: build request: %w", errors.Join(domain.ErrArchivalFailed, err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, "", nil, fmt.Errorf("archive: download: %w", errors.Join(domain.ErrArchivalFailed, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, "", nil, fmt.Errorf("archive: download status %d: %w", resp.StatusCode, domain.ErrArchivalFailed)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "video/mp4"
	}
	body := struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, MaxVideoBytes+1), resp.Body}
	return body, contentType, cancel, nil
}

func validate(req domain.ArchiveRequest) error {
	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.VideoURL) == "" {
		return fmt.Errorf("archive: job id and video url are required: %w", domain.ErrArchivalFailed)
	}
	return nil
}
