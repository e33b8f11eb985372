package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/inquiry"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/testutil"
)

const (
	testAdminBearerToken   = "admin-secret-token"
	testAdminEmail         = "owner@example.com"
	testSessionSecret      = "test-session-secret-with-enough-entropy"
	testPublicBaseURL      = "https://inquiries.example.com"
	testVisitorLoginRoute  = "/test/login"
	testVisitorEmailQuery  = "email"
	headerCookie           = "Cookie"
	headerAntiForgery      = "X-CSRF-Token"
	headerAuthorization    = "Authorization"
	bearerPrefix           = "Bearer "
	contentTypeFormEncoded = "application/x-www-form-urlencoded"
)

type recordingNotifier struct {
	mutex     sync.Mutex
	inquiries []model.Inquiry
	settings  []model.Settings
}

func (notifier *recordingNotifier) Notify(ctx context.Context, settings model.Settings, record model.Inquiry) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.inquiries = append(notifier.inquiries, record)
	notifier.settings = append(notifier.settings, settings)
}

func (notifier *recordingNotifier) calls() ([]model.Inquiry, []model.Settings) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]model.Inquiry(nil), notifier.inquiries...), append([]model.Settings(nil), notifier.settings...)
}

type apiHarness struct {
	router           *gin.Engine
	database         *gorm.DB
	notifier         *recordingNotifier
	settingsStore    *storage.SettingsStore
	repository       *storage.InquiryRepository
	adminBearerToken string
}

func buildAPIHarness(testingT *testing.T) apiHarness {
	testingT.Helper()
	return newAPIHarness(testingT, httpapi.NewRateLimiter(0, 1), testPublicBaseURL)
}

func buildAPIHarnessWithRateLimiter(testingT *testing.T, rateLimiter *httpapi.RateLimiter) apiHarness {
	testingT.Helper()
	return newAPIHarness(testingT, rateLimiter, testPublicBaseURL)
}

// buildSameOriginAPIHarness serves the widget with relative URLs so a browser can load it from the
// test server itself.
func buildSameOriginAPIHarness(testingT *testing.T) apiHarness {
	testingT.Helper()
	return newAPIHarness(testingT, httpapi.NewRateLimiter(0, 1), "")
}

func newAPIHarness(testingT *testing.T, rateLimiter *httpapi.RateLimiter, publicBaseURL string) apiHarness {
	testingT.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	database := testutil.NewMigratedDatabase(testingT)
	repository := storage.NewInquiryRepository(database)
	settingsStore := storage.NewSettingsStore(database)
	notifier := &recordingNotifier{}

	sessionManager, sessionErr := httpapi.NewSessionManager(logger, testSessionSecret, false)
	require.NoError(testingT, sessionErr)

	service := inquiry.NewService(logger, repository, settingsStore, notifier)
	publicHandlers := httpapi.NewPublicHandlers(logger, service, settingsStore, sessionManager, publicBaseURL)
	adminHandlers := httpapi.NewAdminHandlers(logger, repository, settingsStore, sessionManager)
	healthHandlers := httpapi.NewHealthHandlers(database, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	router.GET(httpapi.HealthRoute, healthHandlers.Healthz)
	router.GET(httpapi.PublicRouteEmbed, publicHandlers.RenderEmbed)
	router.GET(httpapi.PublicRouteConfig, publicHandlers.WidgetConfig)
	router.GET(httpapi.PublicRouteScript, publicHandlers.InquiryJS)
	router.POST(httpapi.PublicRouteSubmit, rateLimiter.Middleware(), publicHandlers.SubmitInquiry)
	router.GET(testVisitorLoginRoute, func(context *gin.Context) {
		require.NoError(testingT, sessionManager.SetVisitorEmail(context, context.Query(testVisitorEmailQuery)))
		context.Status(http.StatusNoContent)
	})

	adminGroup := router.Group("")
	adminGroup.Use(httpapi.NewAdminAuthorizer(testAdminBearerToken, sessionManager, []string{testAdminEmail}).Middleware())
	adminGroup.GET(httpapi.AdminRouteInquiriesPage, adminHandlers.RenderInquiryList)
	adminGroup.GET(httpapi.AdminRouteInquiries, adminHandlers.ListInquiries)
	adminGroup.GET(httpapi.AdminRouteInquiry, adminHandlers.GetInquiry)
	adminGroup.PATCH(httpapi.AdminRouteInquiry, adminHandlers.UpdateInquiry)
	adminGroup.DELETE(httpapi.AdminRouteInquiry, adminHandlers.DeleteInquiry)
	adminGroup.GET(httpapi.AdminRouteSettings, adminHandlers.GetSettings)
	adminGroup.PUT(httpapi.AdminRouteSettings, adminHandlers.SaveSettings)

	return apiHarness{
		router:           router,
		database:         database,
		notifier:         notifier,
		settingsStore:    settingsStore,
		repository:       repository,
		adminBearerToken: testAdminBearerToken,
	}
}

func (harness apiHarness) adminHeaders(extra map[string]string) map[string]string {
	headers := map[string]string{headerAuthorization: bearerPrefix + harness.adminBearerToken}
	for name, value := range extra {
		headers[name] = value
	}
	return headers
}

func performJSONRequest(testingT *testing.T, router *gin.Engine, method string, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	testingT.Helper()
	var requestBody io.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		require.NoError(testingT, encodeErr)
		requestBody = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, requestBody)
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func performRawRequest(testingT *testing.T, router *gin.Engine, method string, path string, contentType string, body string, headers map[string]string) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", contentType)
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func performFormRequest(testingT *testing.T, router *gin.Engine, path string, values url.Values, headers map[string]string) *httptest.ResponseRecorder {
	testingT.Helper()
	return performRawRequest(testingT, router, http.MethodPost, path, contentTypeFormEncoded, values.Encode(), headers)
}

// sessionCookieHeader folds the cookies set on a response into a Cookie request header value.
func sessionCookieHeader(recorder *httptest.ResponseRecorder) string {
	cookies := recorder.Result().Cookies()
	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(pairs, "; ")
}

func decodeJSONBody(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()
	var payload map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

// issueSubmitToken loads the widget configuration and returns its anti-forgery token with the
// session cookie that backs it.
func issueSubmitToken(testingT *testing.T, router *gin.Engine, query string) (httpapi.WidgetConfig, string) {
	testingT.Helper()
	path := httpapi.PublicRouteConfig
	if query != "" {
		path += "?" + query
	}
	recorder := performJSONRequest(testingT, router, http.MethodGet, path, nil, nil)
	require.Equal(testingT, http.StatusOK, recorder.Code)

	var config httpapi.WidgetConfig
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &config))
	require.NotEmpty(testingT, config.CSRFToken)

	cookie := sessionCookieHeader(recorder)
	require.NotEmpty(testingT, cookie)
	return config, cookie
}

func countInquiries(testingT *testing.T, database *gorm.DB) int64 {
	testingT.Helper()
	var count int64
	require.NoError(testingT, database.Model(&model.Inquiry{}).Count(&count).Error)
	return count
}
