package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
	"boothvideo/internal/storage"
)

// LocalArchiver stores videos in a FileStore.
type LocalArchiver struct {
	store  *storage.FileStore
	dl     downloader
	logger *infra.Logger
}

func NewLocalArchiver(store *storage.FileStore, httpClient *http.Client, timeout time.Duration, logger *infra.Logger) (*LocalArchiver, error) {
	if store == nil {
		return nil, fmt.Errorf("archive: file store is required: %w", domain.ErrConfiguration)
	}
	return &LocalArchiver{
		store:  store,
		dl:     newDownloader(httpClient, timeout),
		logger: infra.LoggerOrDiscard(logger),
	}, nil
}

func (a *LocalArchiver) Archive(ctx context.Context, req domain.ArchiveRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	body, _, cancel, err := a.dl.fetch(ctx, req.VideoURL)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer body.Close()

	key, n, err := a.store.Write(ctx, objectKey(req), body)
	if err != nil {
		return "", fmt.Errorf("archive: %w", errors.Join(domain.ErrArchivalFailed, err))
	}
	if n > MaxVideoBytes {
		return "", fmt.Errorf("archive: video exceeds %d bytes: %w", MaxVideoBytes, domain.ErrArchivalFailed)
	}
	a.logger.Info().Str("job_id", req.JobID).Str("key", key).Int64("bytes", n).Msg("archive: stored video locally")
	return key, nil
}

var _ domain.Archiver = (*LocalArchiver)(nil)
