package httpapi

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/inquiry"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/sanitize"
)

const (
	PublicRouteSubmit = "/api/inquiries"
	PublicRouteEmbed  = "/embed"
	PublicRouteConfig = "/api/inquiry-config"
	PublicRouteScript = "/inquiry.js"

	queryParamButtonText = "button_text"
	queryParamPageURL    = "page_url"
	queryParamPageTitle  = "page_title"

	headerAntiForgeryToken = "X-CSRF-Token"
	formFieldAntiForgery   = "csrf_token"

	defaultButtonText      = "Send Inquiry"
	buttonTextMaxLength    = 100
	cacheControlNoStore    = "no-store"
	contentTypeHTML        = "text/html; charset=utf-8"
	contentTypeJavaScript  = "application/javascript; charset=utf-8"
	embedElementIDLength   = 8
	logEventRenderEmbed    = "render_inquiry_embed"
	logEventIssueToken     = "issue_anti_forgery_token"
	logEventLoadSettings   = "load_inquiry_settings"
	logEventSubmitRejected = "submit_inquiry_rejected"

	labelEmail   = "Email"
	labelPhone   = "Phone"
	labelMessage = "Message"
	labelSubmit  = "Submit"
	labelClose   = "Close"
	labelSending = "Sending..."
)

// InquirySubmitter accepts inquiry submissions.
type InquirySubmitter interface {
	Submit(ctx context.Context, submission inquiry.Submission) (model.Inquiry, error)
}

// SettingsLoader provides the current notification settings.
type SettingsLoader interface {
	Load(ctx context.Context) (model.Settings, error)
}

// FormLabels are the user-facing strings of the inquiry form.
type FormLabels struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Submit  string `json:"submit"`
	Close   string `json:"close"`
	Sending string `json:"sending"`
	Success string `json:"success"`
	Error   string `json:"error"`
}

// DefaultFormLabels returns the English form labels.
func DefaultFormLabels() FormLabels {
	return FormLabels{
		Email:   labelEmail,
		Phone:   labelPhone,
		Message: labelMessage,
		Submit:  labelSubmit,
		Close:   labelClose,
		Sending: labelSending,
		Success: inquiry.MessageSubmitted,
		Error:   inquiry.MessageGenericFailure,
	}
}

// WidgetConfig seeds the client script with the values the form needs.
type WidgetConfig struct {
	SubmitURL      string     `json:"submit_url"`
	CSRFToken      string     `json:"csrf_token"`
	CSRFField      string     `json:"csrf_field"`
	DefaultMessage string     `json:"default_message"`
	Email          string     `json:"email"`
	PageURL        string     `json:"page_url"`
	PageTitle      string     `json:"page_title"`
	Labels         FormLabels `json:"labels"`
}

type embedTemplateData struct {
	WidgetID   string
	ButtonText string
	ScriptURL  string
	Config     WidgetConfig
}

type submitInquiryRequest struct {
	Email     string `json:"email" form:"email"`
	Phone     string `json:"phone" form:"phone"`
	Message   string `json:"message" form:"message"`
	PageURL   string `json:"page_url" form:"page_url"`
	PageTitle string `json:"page_title" form:"page_title"`
	CSRFToken string `json:"csrf_token" form:"csrf_token"`
}

// PublicHandlers serves the embeddable form and accepts submissions.
type PublicHandlers struct {
	logger        *zap.Logger
	submitter     InquirySubmitter
	settings      SettingsLoader
	sessions      *SessionManager
	publicBaseURL string
	embedTemplate *template.Template
}

func NewPublicHandlers(logger *zap.Logger, submitter InquirySubmitter, settings SettingsLoader, sessionManager *SessionManager, publicBaseURL string) *PublicHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandlers{
		logger:        logger,
		submitter:     submitter,
		settings:      settings,
		sessions:      sessionManager,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		embedTemplate: embedTemplate,
	}
}

// SubmitInquiry accepts a JSON or form-encoded inquiry.
func (h *PublicHandlers) SubmitInquiry(context *gin.Context) {
	var payload submitInquiryRequest
	if bindErr := context.ShouldBind(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{
			jsonKeySuccess: false,
			jsonKeyError:   inquiry.ErrorCodeInvalidPayload,
			jsonKeyMessage: inquiry.MessageInvalidPayload,
		})
		return
	}

	token := strings.TrimSpace(payload.CSRFToken)
	if token == "" {
		token = strings.TrimSpace(context.GetHeader(headerAntiForgeryToken))
	}

	created, submitErr := h.submitter.Submit(context.Request.Context(), inquiry.Submission{
		Input: model.InquiryInput{
			Email:     payload.Email,
			Phone:     payload.Phone,
			Message:   payload.Message,
			PageURL:   payload.PageURL,
			PageTitle: payload.PageTitle,
			IP:        context.ClientIP(),
			UserAgent: context.Request.UserAgent(),
		},
		Token: token,
		Verifier: inquiry.TokenVerifierFunc(func(presented string) bool {
			return h.sessions.VerifyToken(context, AntiForgeryActionSubmit, presented)
		}),
	})
	if submitErr != nil {
		status := submissionErrorStatus(submitErr)
		if status != http.StatusInternalServerError {
			h.logger.Info(logEventSubmitRejected, zap.String("reason", inquiry.ErrorCode(submitErr)), zap.String("ip", context.ClientIP()))
		}
		context.JSON(status, gin.H{
			jsonKeySuccess: false,
			jsonKeyError:   inquiry.ErrorCode(submitErr),
			jsonKeyMessage: inquiry.PublicMessage(submitErr),
		})
		return
	}

	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyID:      created.ID,
		jsonKeyMessage: inquiry.MessageSubmitted,
	})
}

// RenderEmbed returns the trigger button, modal, and form as an HTML fragment.
func (h *PublicHandlers) RenderEmbed(context *gin.Context) {
	buttonText := sanitize.PlainText(context.Query(queryParamButtonText))
	if buttonText == "" {
		buttonText = defaultButtonText
	}
	if len([]rune(buttonText)) > buttonTextMaxLength {
		buttonText = string([]rune(buttonText)[:buttonTextMaxLength])
	}

	config, configErr := h.buildWidgetConfig(context)
	if configErr != nil {
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}

	data := embedTemplateData{
		WidgetID:   uuid.NewString()[:embedElementIDLength],
		ButtonText: buttonText,
		ScriptURL:  h.publicBaseURL + PublicRouteScript,
		Config:     config,
	}

	var buffer bytes.Buffer
	if executeErr := h.embedTemplate.Execute(&buffer, data); executeErr != nil {
		h.logger.Error(logEventRenderEmbed, zap.Error(executeErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}

	context.Header("Cache-Control", cacheControlNoStore)
	context.Data(http.StatusOK, contentTypeHTML, buffer.Bytes())
}

// WidgetConfig returns the client seed object as JSON.
func (h *PublicHandlers) WidgetConfig(context *gin.Context) {
	config, configErr := h.buildWidgetConfig(context)
	if configErr != nil {
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}
	context.Header("Cache-Control", cacheControlNoStore)
	context.JSON(http.StatusOK, config)
}

// InquiryJS serves the client script that drives the modal.
func (h *PublicHandlers) InquiryJS(context *gin.Context) {
	context.Data(http.StatusOK, contentTypeJavaScript, inquiryJavaScriptSource)
}

func (h *PublicHandlers) buildWidgetConfig(context *gin.Context) (WidgetConfig, error) {
	pageURL := sanitize.URL(context.Query(queryParamPageURL))
	if pageURL == "" {
		pageURL = sanitize.URL(context.GetHeader("Referer"))
	}
	pageTitle := sanitize.PlainText(context.Query(queryParamPageTitle))

	settings, settingsErr := h.settings.Load(context.Request.Context())
	if settingsErr != nil {
		h.logger.Warn(logEventLoadSettings, zap.Error(settingsErr))
		settings = model.DefaultSettings()
	}

	token, tokenErr := h.sessions.IssueToken(context, AntiForgeryActionSubmit)
	if tokenErr != nil {
		h.logger.Error(logEventIssueToken, zap.Error(tokenErr))
		return WidgetConfig{}, tokenErr
	}

	return WidgetConfig{
		SubmitURL:      h.publicBaseURL + PublicRouteSubmit,
		CSRFToken:      token,
		CSRFField:      formFieldAntiForgery,
		DefaultMessage: sanitize.TextArea(settings.RenderMessage(pageTitle, pageURL)),
		Email:          sanitize.Email(h.sessions.VisitorEmail(context)),
		PageURL:        pageURL,
		PageTitle:      pageTitle,
		Labels:         DefaultFormLabels(),
	}, nil
}

func submissionErrorStatus(err error) int {
	switch {
	case errors.Is(err, inquiry.ErrAuthentication):
		return http.StatusForbidden
	case errors.Is(err, inquiry.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
