package notifications

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/sanitize"
)

const (
	emailSubjectFormat = "New inquiry for %s"
	emailIntroLine     = "A new inquiry has been submitted:"
)

// BuildEmailSubject returns the subject line for an inquiry notification.
func BuildEmailSubject(inquiry model.Inquiry) string {
	return fmt.Sprintf(emailSubjectFormat, inquiry.PageTitle)
}

// BuildEmailBody returns the fixed-order plain-text notification body.
func BuildEmailBody(inquiry model.Inquiry) string {
	lines := []string{
		emailIntroLine,
		"",
		fmt.Sprintf("Page Title: %s", inquiry.PageTitle),
		fmt.Sprintf("Page URL: %s", inquiry.PageURL),
		fmt.Sprintf("Email: %s", inquiry.Email),
		fmt.Sprintf("Phone: %s", inquiry.Phone),
		"Message:",
		sanitize.TextArea(inquiry.Message),
	}
	return strings.Join(lines, "\n")
}
