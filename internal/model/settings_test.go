package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(testingT *testing.T) {
	settings := DefaultSettings()
	require.Equal(testingT, uint(SettingsRecordID), settings.ID)
	require.Empty(testingT, settings.Emails)
	require.NotNil(testingT, settings.Emails)
	require.Empty(testingT, settings.Webhooks)
	require.NotNil(testingT, settings.Webhooks)
	require.Contains(testingT, settings.MessageTemplate, MessageTemplateTitlePlaceholder)
}

func TestNormalizeSettingsDropsMalformedAndDuplicateEntries(testingT *testing.T) {
	settings := NormalizeSettings(SettingsInput{
		Emails: []string{
			"sales@example.com",
			"not-an-email",
			"",
			" ops@example.com ",
			"SALES@example.com",
		},
		Webhooks: []string{
			"https://hooks.example.com/a",
			"ftp://hooks.example.com/b",
			"/relative",
			"https://hooks.example.com/a",
			"http://hooks.example.com/c",
		},
		MessageTemplate: "  Quote for {title} at {url}  ",
	})

	require.Equal(testingT, []string{"sales@example.com", "ops@example.com"}, settings.Emails)
	require.Equal(testingT, []string{"https://hooks.example.com/a", "http://hooks.example.com/c"}, settings.Webhooks)
	require.Equal(testingT, "Quote for {title} at {url}", settings.MessageTemplate)
}

func TestNormalizeSettingsFallsBackToDefaultTemplate(testingT *testing.T) {
	settings := NormalizeSettings(SettingsInput{MessageTemplate: "<script>alert(1)</script>"})
	require.Equal(testingT, DefaultMessageTemplate, settings.MessageTemplate)
	require.NotNil(testingT, settings.Emails)
	require.NotNil(testingT, settings.Webhooks)
}

func TestNormalizeSettingsIsStableForPlainValues(testingT *testing.T) {
	first := NormalizeSettings(SettingsInput{
		Emails:          []string{"a@example.com", "B@example.com", "a@example.com", "not-an-email"},
		Webhooks:        []string{"https://hooks.example.com/inquiry?token=abc", "https://hooks.example.com/inquiry?token=abc"},
		MessageTemplate: "Quote for {title} from {email}",
	})
	second := NormalizeSettings(first.Input())
	require.Equal(testingT, first, second)
	require.Equal(testingT, []string{"a@example.com", "B@example.com"}, second.Emails)
	require.Equal(testingT, "Quote for {title} from {email}", second.MessageTemplate)
}

func TestNormalizeSettingsDecodesEntitiesOnEachPass(testingT *testing.T) {
	first := NormalizeSettings(SettingsInput{MessageTemplate: "&lt;b&gt;Quote {title}"})
	require.Equal(testingT, "<b>Quote {title}", first.MessageTemplate)

	second := NormalizeSettings(first.Input())
	require.Equal(testingT, "Quote {title}", second.MessageTemplate)
}

func TestCloneDoesNotShareSlices(testingT *testing.T) {
	original := NormalizeSettings(SettingsInput{Emails: []string{"a@example.com"}})
	cloned := original.Clone()
	cloned.Emails[0] = "changed@example.com"
	require.Equal(testingT, "a@example.com", original.Emails[0])
}

func TestRenderMessageSubstitutesPlaceholders(testingT *testing.T) {
	settings := Settings{MessageTemplate: "Quote for {title} ({url})"}
	require.Equal(testingT, "Quote for Widget (https://site.test/product)", settings.RenderMessage("Widget", "https://site.test/product"))

	defaults := DefaultSettings()
	require.Equal(testingT, `Send me a quote for this "Widget"`, defaults.RenderMessage("Widget", ""))
}

func TestRenderMessageDoesNotExpandPlaceholdersInValues(testingT *testing.T) {
	settings := Settings{MessageTemplate: "{title} / {url}"}
	require.Equal(testingT, "{url} / https://site.test", settings.RenderMessage("{url}", "https://site.test"))
}
