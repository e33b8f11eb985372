package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/gauss"
	"github.com/temirov/GAuss/pkg/session"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/auth"
)

const (
	testGoogleClientID     = "test-client-id"
	testGoogleClientSecret = "test-client-secret"
	testSessionSecret      = "test-session-secret-with-enough-bytes"
	testRedirectPath       = "/admin/inquiries"
	headerLocation         = "Location"
	queryRedirectURI       = "redirect_uri"
)

func newSignInRouter(testingT *testing.T, publicBaseURL string) *gin.Engine {
	testingT.Helper()
	gin.SetMode(gin.TestMode)
	session.NewSession([]byte(testSessionSecret))

	handlers, handlersErr := auth.NewHandlers(auth.Config{
		GoogleClientID:     testGoogleClientID,
		GoogleClientSecret: testGoogleClientSecret,
		PublicBaseURL:      publicBaseURL,
		LocalRedirectPath:  testRedirectPath,
		Scopes:             gauss.ScopeStrings(gauss.DefaultScopes),
	})
	require.NoError(testingT, handlersErr)

	router := gin.New()
	handlers.Register(router)
	return router
}

func googleRedirectURI(testingT *testing.T, recorder *httptest.ResponseRecorder) string {
	testingT.Helper()
	require.Equal(testingT, http.StatusFound, recorder.Code)
	location := recorder.Header().Get(headerLocation)
	require.NotEmpty(testingT, location)
	parsed, parseErr := url.Parse(location)
	require.NoError(testingT, parseErr)
	return parsed.Query().Get(queryRedirectURI)
}

func TestGoogleAuthRedirectUsesConfiguredBaseURL(testingT *testing.T) {
	router := newSignInRouter(testingT, "https://inquiries.example.com")

	request := httptest.NewRequest(http.MethodGet, constants.GoogleAuthPath, nil)
	request.Host = "attacker.example.net"
	request.Header.Set("X-Forwarded-Host", "attacker.example.net")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(testingT, "https://inquiries.example.com"+constants.CallbackPath, googleRedirectURI(testingT, recorder))
}

func TestGoogleAuthRedirectHonorsForwardedProtocolWithoutBaseURL(testingT *testing.T) {
	router := newSignInRouter(testingT, "")

	request := httptest.NewRequest(http.MethodGet, constants.GoogleAuthPath, nil)
	request.Host = "inquiries.example.com"
	request.Header.Set("X-Forwarded-Proto", "https")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(testingT, "https://inquiries.example.com"+constants.CallbackPath, googleRedirectURI(testingT, recorder))
}

func TestNewHandlersRequiresCredentials(testingT *testing.T) {
	_, handlersErr := auth.NewHandlers(auth.Config{GoogleClientID: testGoogleClientID})
	require.ErrorIs(testingT, handlersErr, auth.ErrMissingCredentials)
}
