// Package inquiry implements intake of inquiry submissions: anti-forgery check, validation,
// persistence, and notification fan-out.
package inquiry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/metrics"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

// Repository persists inquiries.
type Repository interface {
	Create(ctx context.Context, inquiry *model.Inquiry) error
}

// SettingsLoader provides the current notification settings.
type SettingsLoader interface {
	Load(ctx context.Context) (model.Settings, error)
}

// Notifier fans a stored inquiry out to the configured channels.
type Notifier interface {
	Notify(ctx context.Context, settings model.Settings, inquiry model.Inquiry)
}

// TokenVerifier checks the anti-forgery token presented with a submission.
type TokenVerifier interface {
	VerifyToken(token string) bool
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(token string) bool

// VerifyToken calls the function.
func (verifierFunc TokenVerifierFunc) VerifyToken(token string) bool {
	return verifierFunc(token)
}

// Submission is one inquiry posted by a visitor.
type Submission struct {
	Input    model.InquiryInput
	Token    string
	Verifier TokenVerifier
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, settings model.Settings, inquiry model.Inquiry) {}

// Service accepts submissions.
type Service struct {
	logger     *zap.Logger
	repository Repository
	settings   SettingsLoader
	notifier   Notifier
}

// NewService constructs a Service. A nil notifier disables fan-out.
func NewService(logger *zap.Logger, repository Repository, settings SettingsLoader, notifier Notifier) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		logger:     logger,
		repository: repository,
		settings:   settings,
		notifier:   notifier,
	}
}

// Submit verifies the token, validates and stores the inquiry, then dispatches notifications
// synchronously. Success is reported once the record is stored, whatever the delivery outcome.
func (service *Service) Submit(ctx context.Context, submission Submission) (model.Inquiry, error) {
	if submission.Verifier == nil || submission.Token == "" || !submission.Verifier.VerifyToken(submission.Token) {
		metrics.RecordSubmission(metrics.SubmissionResultRejectedToken)
		return model.Inquiry{}, ErrAuthentication
	}

	record, validationErr := model.NewInquiry(submission.Input)
	if validationErr != nil {
		metrics.RecordSubmission(metrics.SubmissionResultRejectedInvalid)
		return model.Inquiry{}, newValidationError(validationErr)
	}

	if createErr := service.repository.Create(ctx, &record); createErr != nil {
		metrics.RecordSubmission(metrics.SubmissionResultStorageFailed)
		service.logger.Error("save_inquiry", zap.Error(createErr))
		return model.Inquiry{}, fmt.Errorf("%w: %w", ErrStorage, createErr)
	}
	metrics.RecordSubmission(metrics.SubmissionResultAccepted)

	dispatchContext := context.WithoutCancel(ctx)
	settings, settingsErr := service.settings.Load(dispatchContext)
	if settingsErr != nil {
		service.logger.Warn("load_inquiry_settings", zap.Error(settingsErr), zap.String("inquiry_id", record.ID))
		return record, nil
	}
	service.notifier.Notify(dispatchContext, settings, record)
	return record, nil
}

func newValidationError(cause error) *ValidationError {
	validationError := &ValidationError{
		Field: model.InquiryFieldForError(cause),
		Cause: cause,
	}
	switch {
	case errors.Is(cause, model.ErrMissingInquiryEmail):
		validationError.Code = ErrorCodeMissingEmail
		validationError.Message = MessageMissingEmail
	case errors.Is(cause, model.ErrInvalidInquiryEmail):
		validationError.Code = ErrorCodeInvalidEmail
		validationError.Message = MessageInvalidEmail
	case errors.Is(cause, model.ErrMissingInquiryMessage):
		validationError.Code = ErrorCodeMissingMessage
		validationError.Message = MessageMissingMessage
	default:
		validationError.Code = ErrorCodeInvalidPayload
		validationError.Message = MessageInvalidPayload
	}
	return validationError
}
