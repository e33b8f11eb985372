package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
)

const (
	jsonKeyError     = "error"
	jsonKeySuccess   = "success"
	jsonKeyMessage   = "message"
	jsonKeyID        = "id"
	jsonKeyDetails   = "details"
	jsonKeyInquiry   = "inquiry"
	jsonKeyEditToken = "edit_token"

	errorValueInvalidJSON     = "invalid_json"
	errorValueInvalidSettings = "invalid_settings"
	errorValueInvalidToken    = "invalid_token"
	errorValueNotFound        = "not_found"
	errorValueQueryFailed     = "query_failed"
	errorValueSaveFailed      = "save_failed"
	errorValueDeleteFailed    = "delete_failed"
	errorValueRenderFailed    = "render_failed"

	AdminRouteInquiries     = "/api/admin/inquiries"
	AdminRouteInquiry       = "/api/admin/inquiries/:id"
	AdminRouteSettings      = "/api/admin/settings"
	AdminRouteInquiriesPage = "/admin/inquiries"

	queryParamOrderBy = "orderby"
	queryParamOrder   = "order"
	queryParamSearch  = "s"
	queryParamPage    = "page"
	queryParamPerPage = "per_page"

	pathParamInquiryID = "id"

	adminDateLayout       = "2006-01-02 15:04"
	settingsBodyMaxBytes  = 64 << 10
	logEventListInquiries = "list_inquiries"
	logEventFindInquiry   = "find_inquiry"
	logEventUpdateInquiry = "update_inquiry"
	logEventDeleteInquiry = "delete_inquiry"
	logEventSaveSettings  = "save_inquiry_settings"
	logEventRenderList    = "render_inquiry_list"
)

// InquiryStore is the persistence surface the admin views need.
type InquiryStore interface {
	List(ctx context.Context, query storage.InquiryQuery) (storage.InquiryPage, error)
	Find(ctx context.Context, inquiryID string) (model.Inquiry, error)
	UpdateDetails(ctx context.Context, inquiry *model.Inquiry) error
	Delete(ctx context.Context, inquiryID string) error
}

// SettingsStore loads and saves the notification settings.
type SettingsStore interface {
	SettingsLoader
	Save(ctx context.Context, input model.SettingsInput) (model.Settings, error)
}

type updateInquiryRequest struct {
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	PageURL   *string `json:"page_url"`
	PageTitle *string `json:"page_title"`
	EditToken string  `json:"edit_token"`
}

type listInquiriesResponse struct {
	Inquiries []model.Inquiry `json:"inquiries"`
	Total     int64           `json:"total"`
	Page      int             `json:"page"`
	PerPage   int             `json:"per_page"`
	OrderBy   string          `json:"orderby"`
	Order     string          `json:"order"`
	Search    string          `json:"s"`
}

type adminInquiryRow struct {
	ID        string
	Title     string
	Email     string
	Phone     string
	PageURL   string
	PageTitle string
	CreatedAt time.Time
}

type adminInquiryListData struct {
	Rows         []adminInquiryRow
	Total        int64
	Page         int
	Search       string
	EmailSortURL string
	DateSortURL  string
	PreviousURL  string
	NextURL      string
}

// AdminHandlers serves the inquiry list, record editing, and settings management.
type AdminHandlers struct {
	logger    *zap.Logger
	inquiries InquiryStore
	settings  SettingsStore
	sessions  *SessionManager
}

func NewAdminHandlers(logger *zap.Logger, inquiries InquiryStore, settings SettingsStore, sessionManager *SessionManager) *AdminHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandlers{
		logger:    logger,
		inquiries: inquiries,
		settings:  settings,
		sessions:  sessionManager,
	}
}

func (h *AdminHandlers) ListInquiries(context *gin.Context) {
	page, listErr := h.inquiries.List(context.Request.Context(), inquiryQueryFromRequest(context))
	if listErr != nil {
		h.logger.Error(logEventListInquiries, zap.Error(listErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, listInquiriesResponse{
		Inquiries: page.Inquiries,
		Total:     page.Total,
		Page:      page.Page,
		PerPage:   page.PerPage,
		OrderBy:   page.OrderBy,
		Order:     page.Order,
		Search:    page.Search,
	})
}

// RenderInquiryList renders the HTML list page with sortable email and date columns.
func (h *AdminHandlers) RenderInquiryList(context *gin.Context) {
	page, listErr := h.inquiries.List(context.Request.Context(), inquiryQueryFromRequest(context))
	if listErr != nil {
		h.logger.Error(logEventListInquiries, zap.Error(listErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}

	rows := make([]adminInquiryRow, 0, len(page.Inquiries))
	for _, record := range page.Inquiries {
		rows = append(rows, adminInquiryRow{
			ID:        record.ID,
			Title:     record.Title,
			Email:     record.Email,
			Phone:     record.Phone,
			PageURL:   record.PageURL,
			PageTitle: record.PageTitle,
			CreatedAt: record.CreatedAt,
		})
	}

	data := adminInquiryListData{
		Rows:         rows,
		Total:        page.Total,
		Page:         page.Page,
		Search:       page.Search,
		EmailSortURL: adminListURL(page, storage.InquiryOrderByEmail, toggledOrder(page, storage.InquiryOrderByEmail), 1),
		DateSortURL:  adminListURL(page, storage.InquiryOrderByCreatedAt, toggledOrder(page, storage.InquiryOrderByCreatedAt), 1),
	}
	if page.Page > 1 {
		data.PreviousURL = adminListURL(page, page.OrderBy, page.Order, page.Page-1)
	}
	if int64(page.Page*page.PerPage) < page.Total {
		data.NextURL = adminListURL(page, page.OrderBy, page.Order, page.Page+1)
	}

	var buffer bytes.Buffer
	if executeErr := adminInquiriesTemplate.Execute(&buffer, data); executeErr != nil {
		h.logger.Error(logEventRenderList, zap.Error(executeErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}
	context.Header("Cache-Control", cacheControlNoStore)
	context.Data(http.StatusOK, contentTypeHTML, buffer.Bytes())
}

// GetInquiry returns one record together with an edit token for the caller's session.
func (h *AdminHandlers) GetInquiry(context *gin.Context) {
	record, findErr := h.inquiries.Find(context.Request.Context(), context.Param(pathParamInquiryID))
	if findErr != nil {
		h.respondLookupError(context, findErr)
		return
	}
	editToken, tokenErr := h.sessions.IssueToken(context, AntiForgeryActionEdit)
	if tokenErr != nil {
		h.logger.Error(logEventIssueToken, zap.Error(tokenErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, gin.H{
		jsonKeyInquiry:   record,
		jsonKeyEditToken: editToken,
	})
}

// UpdateInquiry edits the contact and page fields. The message cannot be changed.
func (h *AdminHandlers) UpdateInquiry(context *gin.Context) {
	var payload updateInquiryRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}

	editToken := strings.TrimSpace(payload.EditToken)
	if editToken == "" {
		editToken = strings.TrimSpace(context.GetHeader(headerAntiForgeryToken))
	}
	if !h.sessions.VerifyToken(context, AntiForgeryActionEdit, editToken) {
		context.JSON(http.StatusForbidden, gin.H{jsonKeyError: errorValueInvalidToken})
		return
	}

	requestContext := context.Request.Context()
	inquiryID := context.Param(pathParamInquiryID)
	record, findErr := h.inquiries.Find(requestContext, inquiryID)
	if findErr != nil {
		h.respondLookupError(context, findErr)
		return
	}

	details := model.InquiryDetailsInput{
		Email:     valueOrDefault(payload.Email, record.Email),
		Phone:     valueOrDefault(payload.Phone, record.Phone),
		PageURL:   valueOrDefault(payload.PageURL, record.PageURL),
		PageTitle: valueOrDefault(payload.PageTitle, record.PageTitle),
	}
	if applyErr := record.ApplyDetails(details); applyErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: detailsErrorValue(applyErr)})
		return
	}

	if updateErr := h.inquiries.UpdateDetails(requestContext, &record); updateErr != nil {
		if errors.Is(updateErr, storage.ErrInquiryNotFound) {
			context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueNotFound})
			return
		}
		h.logger.Error(logEventUpdateInquiry, zap.String("inquiry_id", inquiryID), zap.Error(updateErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSaveFailed})
		return
	}

	updated, reloadErr := h.inquiries.Find(requestContext, inquiryID)
	if reloadErr != nil {
		h.respondLookupError(context, reloadErr)
		return
	}
	context.JSON(http.StatusOK, gin.H{jsonKeyInquiry: updated})
}

func (h *AdminHandlers) DeleteInquiry(context *gin.Context) {
	inquiryID := context.Param(pathParamInquiryID)
	if deleteErr := h.inquiries.Delete(context.Request.Context(), inquiryID); deleteErr != nil {
		if errors.Is(deleteErr, storage.ErrInquiryNotFound) {
			context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueNotFound})
			return
		}
		h.logger.Error(logEventDeleteInquiry, zap.String("inquiry_id", inquiryID), zap.Error(deleteErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueDeleteFailed})
		return
	}
	context.Status(http.StatusNoContent)
}

func (h *AdminHandlers) GetSettings(context *gin.Context) {
	settings, loadErr := h.settings.Load(context.Request.Context())
	if loadErr != nil {
		h.logger.Error(logEventLoadSettings, zap.Error(loadErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, settings)
}

// SaveSettings validates the payload against the settings schema, normalizes it, and stores it.
func (h *AdminHandlers) SaveSettings(context *gin.Context) {
	body, readErr := io.ReadAll(http.MaxBytesReader(context.Writer, context.Request.Body, settingsBodyMaxBytes))
	if readErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}

	input, decodeErr := decodeSettingsPayload(body)
	if decodeErr != nil {
		var validationErr *settingsValidationError
		details := []string{}
		if errors.As(decodeErr, &validationErr) {
			details = validationErr.Details
		}
		context.JSON(http.StatusBadRequest, gin.H{
			jsonKeyError:   errorValueInvalidSettings,
			jsonKeyDetails: details,
		})
		return
	}

	saved, saveErr := h.settings.Save(context.Request.Context(), input)
	if saveErr != nil {
		h.logger.Error(logEventSaveSettings, zap.Error(saveErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueSaveFailed})
		return
	}
	context.JSON(http.StatusOK, saved)
}

func (h *AdminHandlers) respondLookupError(context *gin.Context, lookupErr error) {
	if errors.Is(lookupErr, storage.ErrInquiryNotFound) {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueNotFound})
		return
	}
	h.logger.Error(logEventFindInquiry, zap.String("inquiry_id", context.Param(pathParamInquiryID)), zap.Error(lookupErr))
	context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
}

func inquiryQueryFromRequest(context *gin.Context) storage.InquiryQuery {
	page, _ := strconv.Atoi(context.Query(queryParamPage))
	perPage, _ := strconv.Atoi(context.Query(queryParamPerPage))
	return storage.InquiryQuery{
		OrderBy: context.Query(queryParamOrderBy),
		Order:   context.Query(queryParamOrder),
		Search:  context.Query(queryParamSearch),
		Page:    page,
		PerPage: perPage,
	}
}

func toggledOrder(page storage.InquiryPage, column string) string {
	if page.OrderBy == column && page.Order == storage.InquiryOrderAscending {
		return storage.InquiryOrderDescending
	}
	if page.OrderBy == column {
		return storage.InquiryOrderAscending
	}
	if column == storage.InquiryOrderByEmail {
		return storage.InquiryOrderAscending
	}
	return storage.InquiryOrderDescending
}

func adminListURL(page storage.InquiryPage, orderBy string, order string, pageNumber int) string {
	values := url.Values{}
	values.Set(queryParamOrderBy, orderBy)
	values.Set(queryParamOrder, order)
	if page.Search != "" {
		values.Set(queryParamSearch, page.Search)
	}
	values.Set(queryParamPage, strconv.Itoa(pageNumber))
	if page.PerPage != storage.DefaultInquiryPageSize {
		values.Set(queryParamPerPage, strconv.Itoa(page.PerPage))
	}
	return AdminRouteInquiriesPage + "?" + values.Encode()
}

func detailsErrorValue(applyErr error) string {
	switch {
	case errors.Is(applyErr, model.ErrMissingInquiryEmail):
		return model.ErrMissingInquiryEmail.Error()
	case errors.Is(applyErr, model.ErrInvalidInquiryEmail):
		return model.ErrInvalidInquiryEmail.Error()
	default:
		return errorValueInvalidJSON
	}
}

func formatAdminDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(adminDateLayout)
}

func valueOrDefault(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
