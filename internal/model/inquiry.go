package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/sanitize"
	"github.com/google/uuid"
)

const (
	InquiryTitlePrefix  = "Inquiry for "
	InquiryTitleDefault = "Inquiry"

	InquiryFieldEmail   = "email"
	InquiryFieldMessage = "message"

	inquiryPhoneMaxLength     = 64
	inquiryMessageMaxLength   = 10000
	inquiryPageTitleMaxLength = 500
	inquiryTitleMaxLength     = 600
	inquiryIPMaxLength        = 64
	inquiryUserAgentMaxLength = 400
)

var (
	ErrMissingInquiryEmail   = errors.New("missing_email")
	ErrInvalidInquiryEmail   = errors.New("invalid_email")
	ErrMissingInquiryMessage = errors.New("missing_message")
)

// Inquiry is a visitor request submitted through the embedded inquiry form.
type Inquiry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"not null;size:600" json:"title"`
	Email     string    `gorm:"not null;size:320;index" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone"`
	Message   string    `gorm:"not null;type:text" json:"message"`
	PageURL   string    `gorm:"size:2048" json:"page_url"`
	PageTitle string    `gorm:"size:500" json:"page_title"`
	IP        string    `gorm:"size:64" json:"ip"`
	UserAgent string    `gorm:"size:400" json:"user_agent"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InquiryInput holds the raw values posted by the inquiry form.
type InquiryInput struct {
	Email     string
	Phone     string
	Message   string
	PageURL   string
	PageTitle string
	IP        string
	UserAgent string
}

// InquiryDetailsInput holds the fields an administrator may change after submission.
type InquiryDetailsInput struct {
	Email     string
	Phone     string
	PageURL   string
	PageTitle string
}

// InquiryPayload is the outbound representation sent to webhooks.
type InquiryPayload struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
}

// NewInquiry validates and sanitizes the input and returns a record ready to be persisted.
func NewInquiry(input InquiryInput) (Inquiry, error) {
	email, emailErr := normalizeInquiryEmail(input.Email)
	if emailErr != nil {
		return Inquiry{}, emailErr
	}

	message := sanitize.RichText(truncateRunes(input.Message, inquiryMessageMaxLength))
	if message == "" {
		return Inquiry{}, ErrMissingInquiryMessage
	}

	pageTitle := truncateRunes(sanitize.PlainText(input.PageTitle), inquiryPageTitleMaxLength)

	return Inquiry{
		ID:        uuid.NewString(),
		Title:     InquiryTitle(pageTitle),
		Email:     email,
		Phone:     truncateRunes(sanitize.PlainText(input.Phone), inquiryPhoneMaxLength),
		Message:   message,
		PageURL:   sanitize.URL(input.PageURL),
		PageTitle: pageTitle,
		IP:        truncateRunes(strings.TrimSpace(input.IP), inquiryIPMaxLength),
		UserAgent: truncateRunes(strings.TrimSpace(input.UserAgent), inquiryUserAgentMaxLength),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ApplyDetails replaces the editable fields. The message and creation time are never touched.
func (inquiry *Inquiry) ApplyDetails(input InquiryDetailsInput) error {
	email, emailErr := normalizeInquiryEmail(input.Email)
	if emailErr != nil {
		return emailErr
	}
	pageTitle := truncateRunes(sanitize.PlainText(input.PageTitle), inquiryPageTitleMaxLength)

	inquiry.Email = email
	inquiry.Phone = truncateRunes(sanitize.PlainText(input.Phone), inquiryPhoneMaxLength)
	inquiry.PageURL = sanitize.URL(input.PageURL)
	inquiry.PageTitle = pageTitle
	inquiry.Title = InquiryTitle(pageTitle)
	return nil
}

// Payload returns the webhook body for the inquiry.
func (inquiry Inquiry) Payload() InquiryPayload {
	return InquiryPayload{
		Email:     inquiry.Email,
		Phone:     inquiry.Phone,
		Message:   inquiry.Message,
		PageURL:   inquiry.PageURL,
		PageTitle: inquiry.PageTitle,
	}
}

// InquiryTitle derives the record title from the originating page title.
func InquiryTitle(pageTitle string) string {
	trimmed := strings.TrimSpace(pageTitle)
	if trimmed == "" {
		return InquiryTitleDefault
	}
	return truncateRunes(InquiryTitlePrefix+trimmed, inquiryTitleMaxLength)
}

// InquiryFieldForError maps a validation error to the form field it concerns.
func InquiryFieldForError(err error) string {
	switch {
	case errors.Is(err, ErrMissingInquiryEmail), errors.Is(err, ErrInvalidInquiryEmail):
		return InquiryFieldEmail
	case errors.Is(err, ErrMissingInquiryMessage):
		return InquiryFieldMessage
	default:
		return ""
	}
}

func normalizeInquiryEmail(rawEmail string) (string, error) {
	trimmed := strings.TrimSpace(rawEmail)
	if trimmed == "" {
		return "", ErrMissingInquiryEmail
	}
	email := sanitize.Email(trimmed)
	if email == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidInquiryEmail, trimmed)
	}
	return email, nil
}

func truncateRunes(value string, maxLength int) string {
	if utf8.RuneCountInString(value) <= maxLength {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:maxLength]))
}
