package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/notifications"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/task"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the inquiry server"
	commandLongDescription        = "Launch the HTTP server that renders the inquiry form, stores submissions, and notifies recipients"
	missingConfigurationMessage   = "missing required configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logFieldAddress               = "addr"
	loggerContextOpenDatabase     = "open_db"
	loggerContextAutoMigrate      = "migrate"
	loggerContextEmailSender      = "email_sender"
	loggerContextRouter           = "router"
	loggerContextServer           = "server"
	readHeaderTimeoutSeconds      = 5
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	environmentFileLoadFailure    = "failed to load environment file"
	defaultEnvironmentFile        = ".env"
	listValueSeparator            = ","
	rateLimiterSweepJobName       = "rate_limiter_sweep"
	logEventRateLimiterSwept      = "rate_limiter_swept"
	logFieldRemovedClients        = "removed_clients"

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyDatabaseDriver     = "DB_DRIVER"
	environmentKeyDatabaseDataSource = "DB_DSN"
	environmentKeyAdminBearerToken   = "ADMIN_BEARER_TOKEN"
	environmentKeySessionSecret      = "SESSION_SECRET"
	environmentKeySecureCookies      = "SECURE_COOKIES"
	environmentKeyPublicBaseURL      = "PUBLIC_BASE_URL"
	environmentKeyAllowedOrigins     = "ALLOWED_ORIGINS"
	environmentKeyEmailProvider      = "EMAIL_PROVIDER"
	environmentKeySMTPHost           = "SMTP_HOST"
	environmentKeySMTPPort           = "SMTP_PORT"
	environmentKeySMTPUsername       = "SMTP_USERNAME"
	environmentKeySMTPPassword       = "SMTP_PASSWORD"
	environmentKeySMTPFrom           = "SMTP_FROM"
	environmentKeySMTPUseTLS         = "SMTP_USE_TLS"
	environmentKeySESRegion          = "SES_REGION"
	environmentKeySESFrom            = "SES_FROM"
	environmentKeyWebhookTimeout     = "WEBHOOK_TIMEOUT"
	environmentKeyRateLimitRPS       = "RATE_LIMIT_RPS"
	environmentKeyRateLimitBurst     = "RATE_LIMIT_BURST"
	environmentKeyTrustedProxies     = "TRUSTED_PROXIES"
	environmentKeyGoogleClientID     = "GOOGLE_CLIENT_ID"
	environmentKeyGoogleClientSecret = "GOOGLE_CLIENT_SECRET"
	environmentKeyAdminEmails        = "ADMIN_EMAILS"
	environmentKeyLoginRedirectPath  = "LOGIN_REDIRECT_PATH"

	flagNameApplicationAddress     = "app-addr"
	flagNameDatabaseDriver         = "db-driver"
	flagNameDatabaseDataSourceName = "db-dsn"
	flagNameAdminBearerToken       = "admin-bearer-token"
	flagNameSessionSecret          = "session-secret"
	flagNameSecureCookies          = "secure-cookies"
	flagNamePublicBaseURL          = "public-base-url"
	flagNameAllowedOrigins         = "allowed-origins"
	flagNameEmailProvider          = "email-provider"
	flagNameSMTPHost               = "smtp-host"
	flagNameSMTPPort               = "smtp-port"
	flagNameSMTPUsername           = "smtp-username"
	flagNameSMTPPassword           = "smtp-password"
	flagNameSMTPFrom               = "smtp-from"
	flagNameSMTPUseTLS             = "smtp-use-tls"
	flagNameSESRegion              = "ses-region"
	flagNameSESFrom                = "ses-from"
	flagNameWebhookTimeout         = "webhook-timeout"
	flagNameRateLimitRPS           = "rate-limit-rps"
	flagNameRateLimitBurst         = "rate-limit-burst"
	flagNameTrustedProxies         = "trusted-proxies"
	flagNameGoogleClientID         = "google-client-id"
	flagNameGoogleClientSecret     = "google-client-secret"
	flagNameAdminEmails            = "admin-emails"
	flagNameLoginRedirectPath      = "login-redirect-path"

	defaultApplicationAddress = ":8080"
	defaultSMTPPort           = 587
	defaultRateLimitRPS       = 0.2
	defaultRateLimitBurst     = 5
	defaultLoginRedirectPath  = "/admin/inquiries"
)

// configurationFlag ties a command-line flag to the environment key viper reads it under.
type configurationFlag struct {
	environmentKey string
	flagName       string
	usage          string
	defaultValue   any
	required       bool
}

var configurationFlags = []configurationFlag{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, "address for the HTTP server to listen on", defaultApplicationAddress, false},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver, "database driver (sqlite or postgres)", storage.DriverNameSQLite, false},
	{environmentKeyDatabaseDataSource, flagNameDatabaseDataSourceName, "database connection string", "", true},
	{environmentKeyAdminBearerToken, flagNameAdminBearerToken, "bearer token required for admin API access", "", true},
	{environmentKeySessionSecret, flagNameSessionSecret, "secret used to sign visitor session cookies", "", true},
	{environmentKeySecureCookies, flagNameSecureCookies, "issue session cookies with the Secure attribute", false, false},
	{environmentKeyPublicBaseURL, flagNamePublicBaseURL, "absolute base URL used in embed snippets", "", false},
	{environmentKeyAllowedOrigins, flagNameAllowedOrigins, "comma-separated origins allowed to embed the form cross-origin", "", false},
	{environmentKeyEmailProvider, flagNameEmailProvider, "email transport (smtp, ses, or none)", notifications.EmailProviderNone, false},
	{environmentKeySMTPHost, flagNameSMTPHost, "SMTP relay host", "", false},
	{environmentKeySMTPPort, flagNameSMTPPort, "SMTP relay port", defaultSMTPPort, false},
	{environmentKeySMTPUsername, flagNameSMTPUsername, "SMTP username", "", false},
	{environmentKeySMTPPassword, flagNameSMTPPassword, "SMTP password", "", false},
	{environmentKeySMTPFrom, flagNameSMTPFrom, "sender address for SMTP email", "", false},
	{environmentKeySMTPUseTLS, flagNameSMTPUseTLS, "use implicit TLS for the SMTP connection", false, false},
	{environmentKeySESRegion, flagNameSESRegion, "AWS region for SES", "", false},
	{environmentKeySESFrom, flagNameSESFrom, "sender address for SES email", "", false},
	{environmentKeyWebhookTimeout, flagNameWebhookTimeout, "timeout for each webhook request", notifications.DefaultWebhookTimeout, false},
	{environmentKeyRateLimitRPS, flagNameRateLimitRPS, "submissions per second allowed per client IP (0 disables)", defaultRateLimitRPS, false},
	{environmentKeyRateLimitBurst, flagNameRateLimitBurst, "submission burst allowed per client IP", defaultRateLimitBurst, false},
	{environmentKeyTrustedProxies, flagNameTrustedProxies, "comma-separated proxy IPs or CIDRs whose forwarding headers are trusted", "", false},
	{environmentKeyGoogleClientID, flagNameGoogleClientID, "Google OAuth client ID for visitor sign-in", "", false},
	{environmentKeyGoogleClientSecret, flagNameGoogleClientSecret, "Google OAuth client secret for visitor sign-in", "", false},
	{environmentKeyAdminEmails, flagNameAdminEmails, "comma-separated signed-in emails allowed to read the admin views", "", false},
	{environmentKeyLoginRedirectPath, flagNameLoginRedirectPath, "path to land on after Google sign-in", defaultLoginRedirectPath, false},
}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress     string
	DatabaseDriverName     string
	DatabaseDataSourceName string
	AdminBearerToken       string
	SessionSecret          string
	SecureCookies          bool
	PublicBaseURL          string
	AllowedOrigins         []string
	Email                  notifications.EmailConfig
	WebhookTimeout         time.Duration
	RateLimitRPS           float64
	RateLimitBurst         int
	TrustedProxies         []string
	GoogleClientID         string
	GoogleClientSecret     string
	AdminEmails            []string
	LoginRedirectPath      string
}

// DatabaseOpener opens a database connection using the provided configuration.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, flagDefinition := range configurationFlags {
		application.configurationLoader.SetDefault(flagDefinition.environmentKey, flagDefinition.defaultValue)
		if defineErr := defineFlag(commandFlags, flagDefinition); defineErr != nil {
			return defineErr
		}
	}
	application.configurationLoader.AutomaticEnv()

	for _, flagDefinition := range configurationFlags {
		if bindErr := application.bindFlag(commandFlags, flagDefinition.environmentKey, flagDefinition.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, flagDefinition.environmentKey, flagDefinition.flagName); environmentErr != nil {
			return environmentErr
		}
		if !flagDefinition.required {
			continue
		}
		if markErr := command.MarkFlagRequired(flagDefinition.flagName); markErr != nil {
			return markErr
		}
	}

	return nil
}

func defineFlag(flagSet *pflag.FlagSet, flagDefinition configurationFlag) error {
	switch defaultValue := flagDefinition.defaultValue.(type) {
	case string:
		flagSet.String(flagDefinition.flagName, defaultValue, flagDefinition.usage)
	case bool:
		flagSet.Bool(flagDefinition.flagName, defaultValue, flagDefinition.usage)
	case int:
		flagSet.Int(flagDefinition.flagName, defaultValue, flagDefinition.usage)
	case float64:
		flagSet.Float64(flagDefinition.flagName, defaultValue, flagDefinition.usage)
	case time.Duration:
		flagSet.Duration(flagDefinition.flagName, defaultValue, flagDefinition.usage)
	default:
		return fmt.Errorf("unsupported default for flag %s: %T", flagDefinition.flagName, flagDefinition.defaultValue)
	}
	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() ServerConfig {
	loader := application.configurationLoader
	return ServerConfig{
		ApplicationAddress:     loader.GetString(environmentKeyApplicationAddress),
		DatabaseDriverName:     strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyDatabaseDataSource)),
		AdminBearerToken:       strings.TrimSpace(loader.GetString(environmentKeyAdminBearerToken)),
		SessionSecret:          strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		SecureCookies:          loader.GetBool(environmentKeySecureCookies),
		PublicBaseURL:          strings.TrimSpace(loader.GetString(environmentKeyPublicBaseURL)),
		AllowedOrigins:         parseAllowedOrigins(loader.GetString(environmentKeyAllowedOrigins)),
		Email: notifications.EmailConfig{
			Provider: loader.GetString(environmentKeyEmailProvider),
			SMTP: notifications.SMTPConfig{
				Host:     loader.GetString(environmentKeySMTPHost),
				Port:     loader.GetInt(environmentKeySMTPPort),
				Username: loader.GetString(environmentKeySMTPUsername),
				Password: loader.GetString(environmentKeySMTPPassword),
				From:     loader.GetString(environmentKeySMTPFrom),
				UseTLS:   loader.GetBool(environmentKeySMTPUseTLS),
			},
			SESRegion: loader.GetString(environmentKeySESRegion),
			SESFrom:   loader.GetString(environmentKeySESFrom),
		},
		WebhookTimeout:     loader.GetDuration(environmentKeyWebhookTimeout),
		RateLimitRPS:       loader.GetFloat64(environmentKeyRateLimitRPS),
		RateLimitBurst:     loader.GetInt(environmentKeyRateLimitBurst),
		TrustedProxies:     parseListValue(loader.GetString(environmentKeyTrustedProxies)),
		GoogleClientID:     strings.TrimSpace(loader.GetString(environmentKeyGoogleClientID)),
		GoogleClientSecret: strings.TrimSpace(loader.GetString(environmentKeyGoogleClientSecret)),
		AdminEmails:        parseListValue(loader.GetString(environmentKeyAdminEmails)),
		LoginRedirectPath:  strings.TrimSpace(loader.GetString(environmentKeyLoginRedirectPath)),
	}
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig := application.loadServerConfig()
	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     serverConfig.DatabaseDriverName,
		DataSourceName: serverConfig.DatabaseDataSourceName,
	})
	if databaseErr != nil {
		logger.Fatal(loggerContextOpenDatabase, zap.Error(databaseErr))
	}

	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Fatal(loggerContextAutoMigrate, zap.Error(migrateErr))
	}

	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}
	emailSender, emailSenderErr := notifications.NewEmailSender(commandContext, logger, serverConfig.Email)
	if emailSenderErr != nil {
		logger.Fatal(loggerContextEmailSender, zap.Error(emailSenderErr))
	}

	rateLimiter := httpapi.NewRateLimiter(serverConfig.RateLimitRPS, serverConfig.RateLimitBurst)
	sweepRunner := task.NewPeriodicRunner(logger, rateLimiterSweepJobName, httpapi.RateLimiterSweepInterval, func(context.Context) {
		if removed := rateLimiter.Sweep(); removed > 0 {
			logger.Debug(logEventRateLimiterSwept, zap.Int(logFieldRemovedClients, removed))
		}
	})
	sweepRunner.Start(commandContext)
	defer sweepRunner.Stop()

	router, routerErr := buildRouter(routerDependencies{
		logger:       logger,
		database:     database,
		serverConfig: serverConfig,
		emailSender:  emailSender,
		rateLimiter:  rateLimiter,
	})
	if routerErr != nil {
		logger.Fatal(loggerContextRouter, zap.Error(routerErr))
	}

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress))
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Fatal(loggerContextServer, zap.Error(serveErr))
	}

	return nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDataSourceName)
	}

	if configuration.AdminBearerToken == "" {
		missingParameters = append(missingParameters, flagNameAdminBearerToken)
	}

	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func parseAllowedOrigins(rawOrigins string) []string {
	origins := make([]string, 0)
	for _, origin := range parseListValue(rawOrigins) {
		if trimmed := strings.TrimRight(origin, "/"); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func parseListValue(rawValue string) []string {
	values := make([]string, 0)
	for _, value := range strings.Split(rawValue, listValueSeparator) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// loadEnvironmentFile reads the optional .env file into the process environment. Values already
// present in the environment win.
func loadEnvironmentFile(path string) error {
	if loadErr := godotenv.Load(path); loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
		return loadErr
	}
	return nil
}

func main() {
	if environmentErr := loadEnvironmentFile(defaultEnvironmentFile); environmentErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", environmentFileLoadFailure, environmentErr)
		os.Exit(1)
	}

	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
