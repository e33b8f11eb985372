package model

import (
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/sanitize"
)

const (
	SettingsRecordID = 1

	DefaultMessageTemplate = `Send me a quote for this "{title}"`

	MessageTemplateTitlePlaceholder = "{title}"
	MessageTemplateURLPlaceholder   = "{url}"

	settingsTemplateMaxLength = 1000
)

// Settings is the single notification configuration record.
type Settings struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	Emails          []string  `gorm:"serializer:json;type:text" json:"emails"`
	Webhooks        []string  `gorm:"serializer:json;type:text" json:"webhooks"`
	MessageTemplate string    `gorm:"not null;size:1000" json:"message_template"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName keeps the settings table name stable.
func (Settings) TableName() string {
	return "inquiry_settings"
}

// SettingsInput holds an unsanitized settings payload.
type SettingsInput struct {
	Emails          []string
	Webhooks        []string
	MessageTemplate string
}

// DefaultSettings returns the configuration used before an administrator saves one.
func DefaultSettings() Settings {
	return Settings{
		ID:              SettingsRecordID,
		Emails:          []string{},
		Webhooks:        []string{},
		MessageTemplate: DefaultMessageTemplate,
	}
}

// NormalizeSettings drops malformed and duplicate entries, keeping the first occurrence of each,
// and sanitizes the message template. Emails, webhooks, and a markup-free template survive a
// second pass unchanged; a template holding entity-encoded markup does not, since the first pass
// decodes the entities into tags the second pass strips.
func NormalizeSettings(input SettingsInput) Settings {
	emails := make([]string, 0, len(input.Emails))
	seenEmails := make(map[string]struct{}, len(input.Emails))
	for _, rawEmail := range input.Emails {
		email := sanitize.Email(rawEmail)
		if email == "" {
			continue
		}
		key := strings.ToLower(email)
		if _, seen := seenEmails[key]; seen {
			continue
		}
		seenEmails[key] = struct{}{}
		emails = append(emails, email)
	}

	webhooks := make([]string, 0, len(input.Webhooks))
	seenWebhooks := make(map[string]struct{}, len(input.Webhooks))
	for _, rawWebhook := range input.Webhooks {
		webhook := sanitize.URL(rawWebhook)
		if webhook == "" {
			continue
		}
		if _, seen := seenWebhooks[webhook]; seen {
			continue
		}
		seenWebhooks[webhook] = struct{}{}
		webhooks = append(webhooks, webhook)
	}

	template := truncateRunes(sanitize.PlainText(input.MessageTemplate), settingsTemplateMaxLength)
	if template == "" {
		template = DefaultMessageTemplate
	}

	return Settings{
		ID:              SettingsRecordID,
		Emails:          emails,
		Webhooks:        webhooks,
		MessageTemplate: template,
	}
}

// Input converts the settings back into a payload accepted by NormalizeSettings.
func (settings Settings) Input() SettingsInput {
	return SettingsInput{
		Emails:          append([]string(nil), settings.Emails...),
		Webhooks:        append([]string(nil), settings.Webhooks...),
		MessageTemplate: settings.MessageTemplate,
	}
}

// Clone returns a copy that shares no slices with the receiver.
func (settings Settings) Clone() Settings {
	cloned := settings
	cloned.Emails = append(make([]string, 0, len(settings.Emails)), settings.Emails...)
	cloned.Webhooks = append(make([]string, 0, len(settings.Webhooks)), settings.Webhooks...)
	return cloned
}

// RenderMessage substitutes the page title and URL into the message template in a single pass.
func (settings Settings) RenderMessage(pageTitle string, pageURL string) string {
	template := settings.MessageTemplate
	if strings.TrimSpace(template) == "" {
		template = DefaultMessageTemplate
	}
	replacer := strings.NewReplacer(
		MessageTemplateTitlePlaceholder, pageTitle,
		MessageTemplateURLPlaceholder, pageURL,
	)
	return replacer.Replace(template)
}
