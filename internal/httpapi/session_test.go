package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/httpapi"
)

func newSessionTestContext(cookie string) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	context, _ := gin.CreateTestContext(recorder)
	context.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != "" {
		context.Request.Header.Set(headerCookie, cookie)
	}
	return context, recorder
}

func TestNewSessionManagerRequiresSecret(testingT *testing.T) {
	manager, managerErr := httpapi.NewSessionManager(zap.NewNop(), "   ", false)
	require.ErrorIs(testingT, managerErr, httpapi.ErrMissingSessionSecret)
	require.Nil(testingT, manager)
}

func TestSessionManagerTokensAreScopedByAction(testingT *testing.T) {
	gin.SetMode(gin.TestMode)
	manager, managerErr := httpapi.NewSessionManager(zap.NewNop(), testSessionSecret, false)
	require.NoError(testingT, managerErr)

	issueContext, issueRecorder := newSessionTestContext("")
	submitToken, issueErr := manager.IssueToken(issueContext, httpapi.AntiForgeryActionSubmit)
	require.NoError(testingT, issueErr)
	require.NotEmpty(testingT, submitToken)

	cookie := sessionCookieHeader(issueRecorder)
	require.NotEmpty(testingT, cookie)
	setCookie := issueRecorder.Result().Cookies()[0]
	require.True(testingT, setCookie.HttpOnly)
	require.Equal(testingT, http.SameSiteLaxMode, setCookie.SameSite)

	verifyContext, _ := newSessionTestContext(cookie)
	require.True(testingT, manager.VerifyToken(verifyContext, httpapi.AntiForgeryActionSubmit, submitToken))
	require.False(testingT, manager.VerifyToken(verifyContext, httpapi.AntiForgeryActionEdit, submitToken))
	require.False(testingT, manager.VerifyToken(verifyContext, httpapi.AntiForgeryActionSubmit, submitToken+"x"))
	require.False(testingT, manager.VerifyToken(verifyContext, httpapi.AntiForgeryActionSubmit, ""))

	reuseContext, _ := newSessionTestContext(cookie)
	reused, reuseErr := manager.IssueToken(reuseContext, httpapi.AntiForgeryActionSubmit)
	require.NoError(testingT, reuseErr)
	require.Equal(testingT, submitToken, reused)
}

func TestSessionManagerRejectsCookieSignedWithAnotherSecret(testingT *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer, issuerErr := httpapi.NewSessionManager(zap.NewNop(), "first-secret", false)
	require.NoError(testingT, issuerErr)
	verifier, verifierErr := httpapi.NewSessionManager(zap.NewNop(), "second-secret", false)
	require.NoError(testingT, verifierErr)

	issueContext, issueRecorder := newSessionTestContext("")
	token, issueErr := issuer.IssueToken(issueContext, httpapi.AntiForgeryActionSubmit)
	require.NoError(testingT, issueErr)

	verifyContext, _ := newSessionTestContext(sessionCookieHeader(issueRecorder))
	require.False(testingT, verifier.VerifyToken(verifyContext, httpapi.AntiForgeryActionSubmit, token))
}

func TestSessionManagerVisitorEmail(testingT *testing.T) {
	gin.SetMode(gin.TestMode)
	manager, managerErr := httpapi.NewSessionManager(zap.NewNop(), testSessionSecret, true)
	require.NoError(testingT, managerErr)

	anonymousContext, _ := newSessionTestContext("")
	require.Empty(testingT, manager.VisitorEmail(anonymousContext))

	loginContext, loginRecorder := newSessionTestContext("")
	require.NoError(testingT, manager.SetVisitorEmail(loginContext, " "+testVisitorEmail+" "))
	loginCookie := loginRecorder.Result().Cookies()[0]
	require.True(testingT, loginCookie.Secure)
	require.Equal(testingT, http.SameSiteNoneMode, loginCookie.SameSite)

	readContext, _ := newSessionTestContext(sessionCookieHeader(loginRecorder))
	require.Equal(testingT, testVisitorEmail, manager.VisitorEmail(readContext))
}
