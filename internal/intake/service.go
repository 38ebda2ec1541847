// Package intake turns a "generate video" request into a queued ledger
// record. It never talks to the provider; the next tick picks the job up.
package intake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
)

// Request is the intake payload. DriveFileID is the name older kiosk builds
// send for the source image id.
type Request struct {
	SourceImageID   string `json:"sourceImageId" validate:"required,max=256"`
	DriveFileID     string `json:"driveFileId,omitempty" validate:"-"`
	SessionFolderID string `json:"sessionFolderId" validate:"omitempty,max=256"`
	Prompt          string `json:"prompt,omitempty" validate:"omitempty,max=2000"`
	Resolution      string `json:"resolution,omitempty" validate:"omitempty,oneof=480p 720p"`
	Model           string `json:"model,omitempty" validate:"omitempty,max=128"`
}

type Service struct {
	ledger       domain.Ledger
	validate     *validator.Validate
	defaultModel string
	logger       *infra.Logger
}

func NewService(ledger domain.Ledger, defaultModel string, logger *infra.Logger) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = domain.DefaultModel
	}
	return &Service{
		ledger:       ledger,
		validate:     v,
		defaultModel: defaultModel,
		logger:       infra.LoggerOrDiscard(logger),
	}
}

// Start validates req, fills defaults and writes the queued record.
func (s *Service) Start(ctx context.Context, req Request) (domain.Job, error) {
	req = normalize(req)
	if err := s.validate.Struct(req); err != nil {
		return domain.Job{}, toValidationError(err)
	}
	if !configured(s.ledger) {
		return domain.Job{}, fmt.Errorf("intake: ledger not configured: %w", domain.ErrConfiguration)
	}

	job := domain.Job{
		ID:              req.SourceImageID,
		State:           domain.JobStateQueued,
		Prompt:          req.Prompt,
		Resolution:      req.Resolution,
		Model:           req.Model,
		SourceImageID:   req.SourceImageID,
		SessionFolderID: req.SessionFolderID,
	}
	if job.Prompt == "" {
		job.Prompt = domain.DefaultPrompt
	}
	if job.Resolution == "" {
		job.Resolution = domain.DefaultResolution
	}
	if job.Model == "" {
		job.Model = s.defaultModel
	}

	if err := s.ledger.CreateJob(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("intake: queue %s: %w", job.ID, err)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("resolution", job.Resolution).
		Str("model", job.Model).
		Msg("intake: video queued")
	return job, nil
}

func normalize(req Request) Request {
	req.SourceImageID = strings.TrimSpace(req.SourceImageID)
	if req.SourceImageID == "" {
		req.SourceImageID = strings.TrimSpace(req.DriveFileID)
	}
	req.SessionFolderID = strings.TrimSpace(req.SessionFolderID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Resolution = strings.ToLower(strings.TrimSpace(req.Resolution))
	req.Model = strings.TrimSpace(req.Model)
	return req
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	default:
		msg = "is invalid"
	}
	return &domain.ValidationError{Field: fe.Field(), Message: msg}
}

func configured(l domain.Ledger) bool {
	if l == nil {
		return false
	}
	if c, ok := l.(domain.Configurable); ok {
		return c.Configured()
	}
	return true
}
