// Package auth mounts the Google sign-in flow. A completed sign-in stores the visitor's email in
// the shared session cookie, where the inquiry form picks it up for prefill.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/temirov/GAuss/pkg/constants"
	"github.com/temirov/GAuss/pkg/gauss"
	"go.uber.org/zap"
)

const (
	headerForwardedProto     = "X-Forwarded-Proto"
	headerForwardedHost      = "X-Forwarded-Host"
	headerValueSeparator     = ","
	urlSchemeHTTP            = "http"
	urlSchemeHTTPS           = "https"
	logEventResolveHandlers  = "google_login_resolve_failed"
	createServiceErrorText   = "create google login service"
	createHandlersErrorText  = "create google login handlers"
	parseBaseURLErrorText    = "parse public base url"
	resolveBaseURLErrorText  = "resolve request base url"
	missingCredentialsText   = "google client id and secret are required"
	defaultLocalRedirectPath = "/"
)

var (
	ErrMissingCredentials = errors.New(missingCredentialsText)
	errEmptyRequestHost   = errors.New("empty host")
)

// Config carries the Google client credentials and where to land after sign-in.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	// PublicBaseURL pins the callback origin. When empty the origin is derived per request.
	PublicBaseURL     string
	LocalRedirectPath string
	Scopes            []string
	LoginTemplate     string
	Logger            *zap.Logger
}

// Handlers serves the login, callback and logout routes.
type Handlers struct {
	configuration Config
	pinnedBaseURL string
	fallback      *gauss.Handlers
	fallbackMux   *http.ServeMux
	cacheMutex    sync.RWMutex
	cache         map[string]*gauss.Handlers
	logger        *zap.Logger
}

// NewHandlers validates the configuration and prepares the sign-in handlers.
func NewHandlers(configuration Config) (*Handlers, error) {
	if strings.TrimSpace(configuration.GoogleClientID) == "" || strings.TrimSpace(configuration.GoogleClientSecret) == "" {
		return nil, ErrMissingCredentials
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(configuration.LocalRedirectPath) == "" {
		configuration.LocalRedirectPath = defaultLocalRedirectPath
	}
	if len(configuration.Scopes) == 0 {
		configuration.Scopes = gauss.ScopeStrings(gauss.DefaultScopes)
	}

	pinnedBaseURL := strings.TrimRight(strings.TrimSpace(configuration.PublicBaseURL), "/")
	if pinnedBaseURL != "" {
		if _, parseErr := url.ParseRequestURI(pinnedBaseURL); parseErr != nil {
			return nil, fmt.Errorf("%s: %w", parseBaseURLErrorText, parseErr)
		}
	}

	handlers := &Handlers{
		configuration: configuration,
		pinnedBaseURL: pinnedBaseURL,
		cache:         make(map[string]*gauss.Handlers),
		logger:        logger,
	}

	fallbackBase := pinnedBaseURL
	if fallbackBase == "" {
		fallbackBase = urlSchemeHTTP + "://localhost"
	}
	fallback, buildErr := handlers.build(fallbackBase)
	if buildErr != nil {
		return nil, buildErr
	}
	handlers.fallback = fallback
	handlers.fallbackMux = http.NewServeMux()
	fallback.RegisterRoutes(handlers.fallbackMux)
	if pinnedBaseURL != "" {
		handlers.cache[pinnedBaseURL] = fallback
	}
	return handlers, nil
}

// Register mounts the sign-in routes on the router.
func (handlers *Handlers) Register(router gin.IRoutes) {
	router.GET(constants.LoginPath, gin.WrapH(handlers.fallbackMux))
	router.GET(constants.GoogleAuthPath, gin.WrapF(handlers.handleGoogleAuth))
	router.GET(constants.CallbackPath, gin.WrapF(handlers.handleCallback))
	router.GET(constants.LogoutPath, gin.WrapF(handlers.fallback.Logout))
}

func (handlers *Handlers) handleGoogleAuth(responseWriter http.ResponseWriter, request *http.Request) {
	resolved, resolveErr := handlers.handlersForRequest(request)
	if resolveErr != nil {
		handlers.logger.Warn(logEventResolveHandlers, zap.Error(resolveErr))
		http.Error(responseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	resolved.Login(responseWriter, request)
}

func (handlers *Handlers) handleCallback(responseWriter http.ResponseWriter, request *http.Request) {
	resolved, resolveErr := handlers.handlersForRequest(request)
	if resolveErr != nil {
		handlers.logger.Warn(logEventResolveHandlers, zap.Error(resolveErr))
		http.Error(responseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	resolved.Callback(responseWriter, request)
}

func (handlers *Handlers) handlersForRequest(request *http.Request) (*gauss.Handlers, error) {
	if handlers.pinnedBaseURL != "" {
		return handlers.fallback, nil
	}
	baseURL, baseErr := requestBaseURL(request)
	if baseErr != nil {
		return nil, baseErr
	}

	handlers.cacheMutex.RLock()
	cached := handlers.cache[baseURL]
	handlers.cacheMutex.RUnlock()
	if cached != nil {
		return cached, nil
	}

	handlers.cacheMutex.Lock()
	defer handlers.cacheMutex.Unlock()
	if cached = handlers.cache[baseURL]; cached != nil {
		return cached, nil
	}
	built, buildErr := handlers.build(baseURL)
	if buildErr != nil {
		return nil, buildErr
	}
	handlers.cache[baseURL] = built
	return built, nil
}

func (handlers *Handlers) build(baseURL string) (*gauss.Handlers, error) {
	service, serviceErr := gauss.NewService(
		handlers.configuration.GoogleClientID,
		handlers.configuration.GoogleClientSecret,
		baseURL,
		handlers.configuration.LocalRedirectPath,
		handlers.configuration.Scopes,
		handlers.configuration.LoginTemplate,
	)
	if serviceErr != nil {
		return nil, fmt.Errorf("%s: %w", createServiceErrorText, serviceErr)
	}
	built, handlersErr := gauss.NewHandlers(service)
	if handlersErr != nil {
		return nil, fmt.Errorf("%s: %w", createHandlersErrorText, handlersErr)
	}
	return built, nil
}

func requestBaseURL(request *http.Request) (string, error) {
	host := firstHeaderValue(request.Header.Get(headerForwardedHost))
	if host == "" {
		host = request.Host
	}
	if host == "" {
		return "", fmt.Errorf("%s: %w", resolveBaseURLErrorText, errEmptyRequestHost)
	}

	scheme := strings.ToLower(firstHeaderValue(request.Header.Get(headerForwardedProto)))
	switch {
	case scheme == urlSchemeHTTP || scheme == urlSchemeHTTPS:
	case request.TLS != nil:
		scheme = urlSchemeHTTPS
	default:
		scheme = urlSchemeHTTP
	}
	return scheme + "://" + host, nil
}

func firstHeaderValue(rawValue string) string {
	for _, segment := range strings.Split(rawValue, headerValueSeparator) {
		if trimmed := strings.TrimSpace(segment); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
