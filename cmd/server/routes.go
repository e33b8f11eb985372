package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/auth"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/inquiry"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/notifications"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
)

const (
	metricsRoute              = "/metrics"
	corsHeaderContentType     = "Content-Type"
	corsHeaderAntiForgery     = "X-CSRF-Token"
	corsHeaderAccept          = "Accept"
	corsPreflightMaxAge       = 12 * time.Hour
	httpMethodGet             = http.MethodGet
	httpMethodPost            = http.MethodPost
	httpMethodOptions         = http.MethodOptions
	routeFamilyPublicInquiry  = "public"
	routeFamilyAdminInquiries = "admin"
	trustedProxiesErrorText   = "configure trusted proxies"
	googleLoginErrorText      = "configure google login"
	logEventGoogleLoginOff    = "google_login_disabled"
)

var (
	corsAllowedMethods = []string{httpMethodGet, httpMethodPost, httpMethodOptions}
	corsAllowedHeaders = []string{corsHeaderContentType, corsHeaderAntiForgery, corsHeaderAccept}
	corsExposedHeaders = []string{corsHeaderContentType}
	publicRoutes       = []string{httpapi.PublicRouteSubmit, httpapi.PublicRouteEmbed, httpapi.PublicRouteConfig, httpapi.PublicRouteScript}
)

type routerDependencies struct {
	logger       *zap.Logger
	database     *gorm.DB
	serverConfig ServerConfig
	emailSender  notifications.EmailSender
	httpClient   notifications.HTTPClient
	rateLimiter  *httpapi.RateLimiter
}

func buildRouter(dependencies routerDependencies) (*gin.Engine, error) {
	logger := dependencies.logger
	configuration := dependencies.serverConfig

	sessionManager, sessionErr := httpapi.NewSessionManager(logger, configuration.SessionSecret, configuration.SecureCookies)
	if sessionErr != nil {
		return nil, sessionErr
	}

	inquiryRepository := storage.NewInquiryRepository(dependencies.database)
	settingsStore := storage.NewSettingsStore(dependencies.database)
	dispatcher := notifications.NewDispatcher(
		logger,
		dependencies.emailSender,
		notifications.NewWebhookPoster(dependencies.httpClient, configuration.WebhookTimeout),
	)
	inquiryService := inquiry.NewService(logger, inquiryRepository, settingsStore, dispatcher)

	publicHandlers := httpapi.NewPublicHandlers(logger, inquiryService, settingsStore, sessionManager, configuration.PublicBaseURL)
	adminHandlers := httpapi.NewAdminHandlers(logger, inquiryRepository, settingsStore, sessionManager)
	healthHandlers := httpapi.NewHealthHandlers(dependencies.database, logger)
	rateLimiter := dependencies.rateLimiter
	if rateLimiter == nil {
		rateLimiter = httpapi.NewRateLimiter(configuration.RateLimitRPS, configuration.RateLimitBurst)
	}

	router := gin.New()
	if proxiesErr := router.SetTrustedProxies(configuration.TrustedProxies); proxiesErr != nil {
		return nil, fmt.Errorf("%s: %w", trustedProxiesErrorText, proxiesErr)
	}
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	registerPublicRoutes(router, publicHandlers, rateLimiter, configuration.AllowedOrigins)
	if loginErr := registerGoogleLoginRoutes(router, logger, configuration); loginErr != nil {
		return nil, loginErr
	}
	adminAuthorizer := httpapi.NewAdminAuthorizer(configuration.AdminBearerToken, sessionManager, configuration.AdminEmails)
	registerAdminRoutes(router, adminHandlers, adminAuthorizer)
	router.GET(httpapi.HealthRoute, healthHandlers.Healthz)
	router.GET(metricsRoute, gin.WrapH(promhttp.Handler()))

	logger.Debug("routes_registered",
		zap.Strings(routeFamilyPublicInquiry, publicRoutes),
		zap.String(routeFamilyAdminInquiries, httpapi.AdminRouteInquiries),
	)
	return router, nil
}

func registerPublicRoutes(router *gin.Engine, publicHandlers *httpapi.PublicHandlers, rateLimiter *httpapi.RateLimiter, allowedOrigins []string) {
	publicGroup := router.Group("/")
	if len(allowedOrigins) > 0 {
		publicGroup.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     corsAllowedMethods,
			AllowHeaders:     corsAllowedHeaders,
			ExposeHeaders:    corsExposedHeaders,
			AllowCredentials: true,
			MaxAge:           corsPreflightMaxAge,
		}))
		registerPublicPreflightRoutes(publicGroup)
	}

	publicGroup.GET(httpapi.PublicRouteEmbed, publicHandlers.RenderEmbed)
	publicGroup.GET(httpapi.PublicRouteConfig, publicHandlers.WidgetConfig)
	publicGroup.GET(httpapi.PublicRouteScript, publicHandlers.InquiryJS)
	publicGroup.POST(httpapi.PublicRouteSubmit, rateLimiter.Middleware(), publicHandlers.SubmitInquiry)
}

// registerPublicPreflightRoutes gives OPTIONS requests a matching route so the group CORS
// middleware can answer them.
func registerPublicPreflightRoutes(publicGroup *gin.RouterGroup) {
	for _, route := range publicRoutes {
		publicGroup.OPTIONS(route, func(context *gin.Context) {
			context.Status(http.StatusNoContent)
		})
	}
}

// registerGoogleLoginRoutes mounts Google sign-in when client credentials are configured. The
// callback writes the visitor's email into the session cookie the inquiry form reads.
func registerGoogleLoginRoutes(router *gin.Engine, logger *zap.Logger, configuration ServerConfig) error {
	if configuration.GoogleClientID == "" || configuration.GoogleClientSecret == "" {
		logger.Info(logEventGoogleLoginOff)
		return nil
	}
	loginHandlers, handlersErr := auth.NewHandlers(auth.Config{
		GoogleClientID:     configuration.GoogleClientID,
		GoogleClientSecret: configuration.GoogleClientSecret,
		PublicBaseURL:      configuration.PublicBaseURL,
		LocalRedirectPath:  configuration.LoginRedirectPath,
		Logger:             logger,
	})
	if handlersErr != nil {
		return fmt.Errorf("%s: %w", googleLoginErrorText, handlersErr)
	}
	loginHandlers.Register(router)
	return nil
}

func registerAdminRoutes(router *gin.Engine, adminHandlers *httpapi.AdminHandlers, adminAuthorizer *httpapi.AdminAuthorizer) {
	adminGroup := router.Group("/")
	adminGroup.Use(adminAuthorizer.Middleware())
	adminGroup.GET(httpapi.AdminRouteInquiriesPage, adminHandlers.RenderInquiryList)
	adminGroup.GET(httpapi.AdminRouteInquiries, adminHandlers.ListInquiries)
	adminGroup.GET(httpapi.AdminRouteInquiry, adminHandlers.GetInquiry)
	adminGroup.PATCH(httpapi.AdminRouteInquiry, adminHandlers.UpdateInquiry)
	adminGroup.DELETE(httpapi.AdminRouteInquiry, adminHandlers.DeleteInquiry)
	adminGroup.GET(httpapi.AdminRouteSettings, adminHandlers.GetSettings)
	adminGroup.PUT(httpapi.AdminRouteSettings, adminHandlers.SaveSettings)
}
