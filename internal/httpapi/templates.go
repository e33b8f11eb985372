package httpapi

import (
	_ "embed"
	"html/template"
)

//go:embed templates/embed.tmpl
var embedTemplateHTML string

//go:embed templates/admin_inquiries.tmpl
var adminInquiriesTemplateHTML string

//go:embed assets/inquiry.js
var inquiryJavaScriptSource []byte

var embedTemplate = template.Must(template.New("embed").Parse(embedTemplateHTML))

var adminInquiriesTemplate = template.Must(template.New("admin_inquiries").Funcs(template.FuncMap{
	"formatDate": formatAdminDate,
}).Parse(adminInquiriesTemplateHTML))
