package controllers

import (
	"net/http"
	"time"

	"storefront-service/apperrors"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

const serviceName = "storefront-service"

type HealthController struct {
	health services.HealthService
}

func NewHealthController(svc services.HealthService) *HealthController {
	return &HealthController{health: svc}
}

// Health handles GET /api/health. It needs the shared bearer secret because
// it touches the database.
func (hc *HealthController) Health(ctx *gin.Context) {
	if !hc.health.Authorized(ctx.GetHeader("Authorization")) {
		_ = ctx.Error(apperrors.ErrUnauthorized)
		return
	}
	if appErr := hc.health.Check(ctx.Request.Context()); appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(isoMillis)})
}

// Liveness handles GET /healthz
func Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}
