package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/metrics"
)

const (
	authorizationHeaderName = "Authorization"
	bearerTokenPrefix       = "Bearer "

	errorValueAdminDisabled = "admin disabled"
	errorValueMissingBearer = "missing bearer"
	errorValueForbidden     = "forbidden"
	errorValueRateLimited   = "rate_limited"

	messageRateLimited = "Too many inquiries. Please wait a moment and try again."

	rateLimiterIdleTTL = 10 * time.Minute

	// RateLimiterSweepInterval is how often idle client buckets should be swept.
	RateLimiterSweepInterval = time.Minute
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		fields := []zap.Field{
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		}
		if len(context.Errors) > 0 {
			fields = append(fields, zap.String("errors", context.Errors.String()))
		}
		logger.Info("http", fields...)
	}
}

// AdminAuthorizer admits admin requests that carry the bearer token. A visitor signed in with
// Google whose address is on the admin allowlist may also read the admin views; changes still
// require the bearer token.
type AdminAuthorizer struct {
	bearerToken []byte
	sessions    *SessionManager
	adminEmails map[string]struct{}
}

// NewAdminAuthorizer builds an authorizer. A nil session manager or an empty allowlist disables
// session access.
func NewAdminAuthorizer(adminBearerToken string, sessionManager *SessionManager, adminEmails []string) *AdminAuthorizer {
	allowlist := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized == "" {
			continue
		}
		allowlist[normalized] = struct{}{}
	}
	return &AdminAuthorizer{
		bearerToken: []byte(strings.TrimSpace(adminBearerToken)),
		sessions:    sessionManager,
		adminEmails: allowlist,
	}
}

// AdminAuthMiddleware admits only requests carrying the bearer token.
func AdminAuthMiddleware(adminBearerToken string) gin.HandlerFunc {
	return NewAdminAuthorizer(adminBearerToken, nil, nil).Middleware()
}

func (authorizer *AdminAuthorizer) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		if len(authorizer.bearerToken) == 0 && !authorizer.sessionAccessEnabled() {
			context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueAdminDisabled})
			return
		}

		authorizationHeader := strings.TrimSpace(context.GetHeader(authorizationHeaderName))
		if strings.HasPrefix(authorizationHeader, bearerTokenPrefix) {
			provided := []byte(strings.TrimSpace(strings.TrimPrefix(authorizationHeader, bearerTokenPrefix)))
			if len(authorizer.bearerToken) == 0 || subtle.ConstantTimeCompare(provided, authorizer.bearerToken) != 1 {
				context.AbortWithStatusJSON(http.StatusForbidden, gin.H{jsonKeyError: errorValueForbidden})
				return
			}
			context.Next()
			return
		}

		sessionEmail := authorizer.sessionEmail(context)
		if sessionEmail == "" || !isReadOnlyMethod(context.Request.Method) {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: errorValueMissingBearer})
			return
		}
		if _, allowed := authorizer.adminEmails[strings.ToLower(sessionEmail)]; !allowed {
			context.AbortWithStatusJSON(http.StatusForbidden, gin.H{jsonKeyError: errorValueForbidden})
			return
		}
		context.Next()
	}
}

func (authorizer *AdminAuthorizer) sessionAccessEnabled() bool {
	return authorizer.sessions != nil && len(authorizer.adminEmails) > 0
}

func (authorizer *AdminAuthorizer) sessionEmail(context *gin.Context) string {
	if !authorizer.sessionAccessEnabled() {
		return ""
	}
	return authorizer.sessions.VisitorEmail(context)
}

func isReadOnlyMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mutex    sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst. A non-positive rps
// disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  rateLimiterIdleTTL,
		now:      time.Now,
	}
}

// Allow consumes one token for the key and reports whether the request may proceed.
func (limiter *RateLimiter) Allow(key string) bool {
	if limiter == nil || limiter.rps <= 0 {
		return true
	}
	now := limiter.now()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	entry, exists := limiter.limiters[key]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(limiter.rps, limiter.burst)}
		limiter.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than the idle TTL and returns how many were removed.
func (limiter *RateLimiter) Sweep() int {
	if limiter == nil {
		return 0
	}
	now := limiter.now()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	removed := 0
	for key, entry := range limiter.limiters {
		if now.Sub(entry.lastSeen) > limiter.idleTTL {
			delete(limiter.limiters, key)
			removed++
		}
	}
	return removed
}

// Tracked reports how many clients currently hold a bucket.
func (limiter *RateLimiter) Tracked() int {
	if limiter == nil {
		return 0
	}
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.limiters)
}

// Middleware rejects requests over the limit with 429 and the public error body.
func (limiter *RateLimiter) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		if !limiter.Allow(context.ClientIP()) {
			metrics.RecordSubmission(metrics.SubmissionResultRateLimited)
			context.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				jsonKeySuccess: false,
				jsonKeyError:   errorValueRateLimited,
				jsonKeyMessage: messageRateLimited,
			})
			return
		}
		context.Next()
	}
}
