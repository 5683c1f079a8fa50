package controllers

import (
	"net/http"

	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

// PaymentController serves read-only payment data to the storefront.
type PaymentController struct {
	paymentInfo services.PaymentInfoService
}

func NewPaymentController(svc services.PaymentInfoService) *PaymentController {
	return &PaymentController{paymentInfo: svc}
}

// PublishableKey handles GET /api/stripe-publishable-key
func (pc *PaymentController) PublishableKey(ctx *gin.Context) {
	key, appErr := pc.paymentInfo.PublishableKey()
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"publishableKey": key})
}

// SessionDetails handles GET /api/get-session-details?session_id=
func (pc *PaymentController) SessionDetails(ctx *gin.Context) {
	details, appErr := pc.paymentInfo.SessionDetails(ctx.Request.Context(), ctx.Query("session_id"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, details)
}
