// Package sanitize normalizes untrusted form input before it is validated or stored.
package sanitize

import (
	"html"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	emailMaxLength = 320
	urlMaxLength   = 2048

	urlSchemeHTTP  = "http"
	urlSchemeHTTPS = "https"
)

var (
	richTextPolicy  = bluemonday.UGCPolicy()
	plainTextPolicy = bluemonday.StrictPolicy()

	whitespaceRunExpression     = regexp.MustCompile(`\s+`)
	lineWhitespaceRunExpression = regexp.MustCompile(`[ \t\f\v\r]+`)
)

// RichText keeps a safe markup subset (paragraphs, emphasis, links, lists) and removes scripts,
// event handlers, and every other element the user-generated-content policy does not allow.
func RichText(rawValue string) string {
	return strings.TrimSpace(richTextPolicy.Sanitize(rawValue))
}

// PlainText strips all markup, decodes entities, and collapses whitespace (line breaks included)
// into single spaces.
func PlainText(rawValue string) string {
	stripped := html.UnescapeString(plainTextPolicy.Sanitize(rawValue))
	return strings.TrimSpace(whitespaceRunExpression.ReplaceAllString(stripped, " "))
}

// TextArea strips all markup like PlainText but preserves line breaks.
func TextArea(rawValue string) string {
	stripped := html.UnescapeString(plainTextPolicy.Sanitize(rawValue))
	stripped = strings.ReplaceAll(stripped, "\r\n", "\n")
	lines := strings.Split(stripped, "\n")
	for lineIndex, line := range lines {
		lines[lineIndex] = strings.TrimSpace(lineWhitespaceRunExpression.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Email returns the trimmed address when it is a bare, syntactically valid email address and an
// empty string otherwise. Display-name forms such as "Ada <ada@example.com>" are rejected.
func Email(rawValue string) string {
	trimmed := strings.TrimSpace(rawValue)
	if trimmed == "" || len(trimmed) > emailMaxLength {
		return ""
	}
	parsedAddress, parseErr := mail.ParseAddress(trimmed)
	if parseErr != nil || parsedAddress == nil {
		return ""
	}
	if parsedAddress.Address != trimmed || parsedAddress.Name != "" {
		return ""
	}
	return trimmed
}

// URL returns the normalized form of an absolute http(s) URL and an empty string for anything
// else, including relative references and javascript: or data: schemes.
func URL(rawValue string) string {
	trimmed := strings.TrimSpace(rawValue)
	if trimmed == "" || len(trimmed) > urlMaxLength || strings.ContainsAny(trimmed, " \t\r\n") {
		return ""
	}
	parsedURL, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsedURL == nil {
		return ""
	}
	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != urlSchemeHTTP && scheme != urlSchemeHTTPS {
		return ""
	}
	if strings.TrimSpace(parsedURL.Host) == "" {
		return ""
	}
	parsedURL.Scheme = scheme
	return parsedURL.String()
}
