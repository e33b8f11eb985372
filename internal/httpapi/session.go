package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/session"
	"go.uber.org/zap"
)

const (
	// AntiForgeryActionSubmit scopes tokens accepted by the public submission endpoint.
	AntiForgeryActionSubmit = "inquiry_submit"
	// AntiForgeryActionEdit scopes tokens accepted by the admin edit endpoint.
	AntiForgeryActionEdit = "inquiry_edit"

	// SessionKeyUserEmail holds the signed-in visitor's address, written by the Google login callback.
	SessionKeyUserEmail = constants.SessionKeyUserEmail

	sessionKeyTokenPrefix   = "anti_forgery_"
	antiForgeryTokenBytes   = 32
	sessionMaxAgeSeconds    = 12 * 60 * 60
	logEventLoadSession     = "load_session"
	logEventSaveSession     = "save_session"
	errorMessageSaveSession = "httpapi: save session"
)

// ErrMissingSessionSecret indicates the session signing secret was not configured.
var ErrMissingSessionSecret = errors.New("httpapi: missing session secret")

// SessionManager keeps per-visitor anti-forgery tokens in the signed session cookie that the
// Google login also writes the visitor's identity into.
type SessionManager struct {
	logger       *zap.Logger
	sessionStore *sessions.CookieStore
	sessionName  string
}

// NewSessionManager initializes the shared GAuss cookie store with the secret and manages sessions
// through it. Secure cookies are issued with SameSite=None so the form keeps its session when
// embedded on another origin.
func NewSessionManager(logger *zap.Logger, secret string, secureCookies bool) (*SessionManager, error) {
	trimmedSecret := strings.TrimSpace(secret)
	if trimmedSecret == "" {
		return nil, ErrMissingSessionSecret
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sameSite := http.SameSiteLaxMode
	if secureCookies {
		sameSite = http.SameSiteNoneMode
	}
	session.NewSession([]byte(trimmedSecret))
	store := session.Store()
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeSeconds,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: sameSite,
	}
	return &SessionManager{
		logger:       logger,
		sessionStore: store,
		sessionName:  constants.SessionName,
	}, nil
}

// IssueToken returns the visitor's token for the action, creating and storing one when absent.
// It writes the session cookie, so it must run before the response body.
func (manager *SessionManager) IssueToken(context *gin.Context, action string) (string, error) {
	sessionInstance := manager.loadSession(context)
	key := sessionKeyTokenPrefix + action
	if existing, ok := sessionInstance.Values[key].(string); ok && existing != "" {
		return existing, nil
	}

	token, tokenErr := generateAntiForgeryToken()
	if tokenErr != nil {
		return "", tokenErr
	}
	sessionInstance.Values[key] = token
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		manager.logger.Warn(logEventSaveSession, zap.Error(saveErr))
		return "", fmt.Errorf("%s: %w", errorMessageSaveSession, saveErr)
	}
	return token, nil
}

// VerifyToken reports whether the presented token matches the visitor's token for the action.
func (manager *SessionManager) VerifyToken(context *gin.Context, action string, presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	sessionInstance := manager.loadSession(context)
	stored, ok := sessionInstance.Values[sessionKeyTokenPrefix+action].(string)
	if !ok || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// VisitorEmail returns the signed-in visitor's address, or an empty string.
func (manager *SessionManager) VisitorEmail(context *gin.Context) string {
	sessionInstance := manager.loadSession(context)
	email, _ := sessionInstance.Values[SessionKeyUserEmail].(string)
	return strings.TrimSpace(email)
}

// SetVisitorEmail records the signed-in visitor's address in the session.
func (manager *SessionManager) SetVisitorEmail(context *gin.Context, email string) error {
	sessionInstance := manager.loadSession(context)
	sessionInstance.Values[SessionKeyUserEmail] = strings.TrimSpace(email)
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		return fmt.Errorf("%s: %w", errorMessageSaveSession, saveErr)
	}
	return nil
}

func (manager *SessionManager) loadSession(context *gin.Context) *sessions.Session {
	sessionInstance, loadErr := manager.sessionStore.Get(context.Request, manager.sessionName)
	if loadErr != nil {
		manager.logger.Debug(logEventLoadSession, zap.Error(loadErr))
	}
	if sessionInstance == nil {
		sessionInstance = sessions.NewSession(manager.sessionStore, manager.sessionName)
		options := *manager.sessionStore.Options
		sessionInstance.Options = &options
		sessionInstance.IsNew = true
	}
	if sessionInstance.Values == nil {
		sessionInstance.Values = map[interface{}]interface{}{}
	}
	return sessionInstance
}

func generateAntiForgeryToken() (string, error) {
	buffer := make([]byte, antiForgeryTokenBytes)
	if _, readErr := rand.Read(buffer); readErr != nil {
		return "", fmt.Errorf("httpapi: generate token: %w", readErr)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
