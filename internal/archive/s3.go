package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
)

// PutObjectAPI is the slice of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver downloads the provider video and stores it in a bucket. The
// returned file id is the object key.
type S3Archiver struct {
	api    PutObjectAPI
	bucket string
	dl     downloader
	logger *infra.Logger
}

// NewS3Archiver builds an archiver writing to bucket.
func NewS3Archiver(api PutObjectAPI, bucket string, httpClient *http.Client, timeout time.Duration, logger *infra.Logger) (*S3Archiver, error) {
	if api == nil || bucket == "" {
		return nil, fmt.Errorf("archive: s3 client and bucket are required: %w", domain.ErrConfiguration)
	}
	return &S3Archiver{
		api:    api,
		bucket: bucket,
		dl:     newDownloader(httpClient, timeout),
		logger: infra.LoggerOrDiscard(logger),
	}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, req domain.ArchiveRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	body, contentType, cancel, err := a.dl.fetch(ctx, req.VideoURL)
	if err != nil {
		return "", err
	}
	defer cancel()
	defer body.Close()

	// PutObject needs a seekable body to sign the payload.
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("archive: read video: %w", errors.Join(domain.ErrArchivalFailed, err))
	}
	if len(data) > MaxVideoBytes {
		return "", fmt.Errorf("archive: video exceeds %d bytes: %w", MaxVideoBytes, domain.ErrArchivalFailed)
	}

	key := objectKey(req)
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"job-id":         req.JobID,
			"session-folder": req.SessionFolderID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: put object %s: %w", key, errors.Join(domain.ErrArchivalFailed, err))
	}
	a.logger.Info().Str("job_id", req.JobID).Str("key", key).Int("bytes", len(data)).Msg("archive: stored video in s3")
	return key, nil
}

var _ domain.Archiver = (*S3Archiver)(nil)
