package inquiry

import (
	"errors"
	"fmt"
)

const (
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeInvalidPayload = "invalid_payload"
	ErrorCodeMissingEmail   = "missing_email"
	ErrorCodeInvalidEmail   = "invalid_email"
	ErrorCodeMissingMessage = "missing_message"
	ErrorCodeSaveFailed     = "save_failed"

	MessageSubmitted      = "Inquiry submitted successfully."
	MessageGenericFailure = "Something went wrong. Please try again."
	MessageInvalidToken   = "Your session has expired. Please reload the page and try again."
	MessageMissingEmail   = "Please enter your email address."
	MessageInvalidEmail   = "Please enter a valid email address."
	MessageMissingMessage = "Please enter a message."
	MessageInvalidPayload = "The inquiry could not be read. Please try again."
)

var (
	// ErrAuthentication marks submissions rejected by the anti-forgery check.
	ErrAuthentication = errors.New("inquiry: authentication failed")
	// ErrValidation marks submissions with a missing or malformed required field.
	ErrValidation = errors.New("inquiry: validation failed")
	// ErrStorage marks submissions that could not be persisted.
	ErrStorage = errors.New("inquiry: storage failed")
	// ErrNotification marks a failed email or webhook delivery.
	ErrNotification = errors.New("inquiry: notification failed")
)

// ValidationError describes the offending field of a rejected submission.
type ValidationError struct {
	Field   string
	Code    string
	Message string
	Cause   error
}

func (validationError *ValidationError) Error() string {
	if validationError.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrValidation.Error(), validationError.Field, validationError.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), validationError.Field)
}

func (validationError *ValidationError) Unwrap() []error {
	if validationError.Cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, validationError.Cause}
}

// NotificationError records one failed delivery attempt.
type NotificationError struct {
	Channel string
	Target  string
	Cause   error
}

func (notificationError *NotificationError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrNotification.Error(), notificationError.Channel, notificationError.Target, notificationError.Cause)
}

func (notificationError *NotificationError) Unwrap() []error {
	if notificationError.Cause == nil {
		return []error{ErrNotification}
	}
	return []error{ErrNotification, notificationError.Cause}
}

// PublicMessage returns the human-readable text for an error surfaced to the submitter.
func PublicMessage(err error) string {
	var validationError *ValidationError
	switch {
	case errors.As(err, &validationError) && validationError.Message != "":
		return validationError.Message
	case errors.Is(err, ErrAuthentication):
		return MessageInvalidToken
	default:
		return MessageGenericFailure
	}
}

// ErrorCode returns the machine-readable code for an error surfaced to the submitter.
func ErrorCode(err error) string {
	var validationError *ValidationError
	switch {
	case errors.As(err, &validationError) && validationError.Code != "":
		return validationError.Code
	case errors.Is(err, ErrAuthentication):
		return ErrorCodeInvalidToken
	default:
		return ErrorCodeSaveFailed
	}
}
