package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
)

const (
	HealthRoute = "/healthz"

	jsonKeyStatus        = "status"
	healthStatusOK       = "ok"
	healthStatusDegraded = "database_unavailable"
	logEventHealthCheck  = "health_check"
)

type HealthHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

func NewHealthHandlers(database *gorm.DB, logger *zap.Logger) *HealthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandlers{database: database, logger: logger}
}

// Healthz reports 200 when the database answers a ping.
func (h *HealthHandlers) Healthz(context *gin.Context) {
	if pingErr := storage.Ping(h.database); pingErr != nil {
		h.logger.Warn(logEventHealthCheck, zap.Error(pingErr))
		context.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyStatus: healthStatusDegraded})
		return
	}
	context.JSON(http.StatusOK, gin.H{jsonKeyStatus: healthStatusOK})
}
