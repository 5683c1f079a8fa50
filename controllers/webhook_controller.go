package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"storefront-service/apperrors"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

// MaxWebhookBody caps what the webhook endpoint will read. Stripe events are
// well under this.
const MaxWebhookBody int64 = 256 << 10

// WebhookController receives payment-provider callbacks.
type WebhookController struct {
	webhookService services.WebhookService
	maxBody        int64
}

func NewWebhookController(svc services.WebhookService) *WebhookController {
	return &WebhookController{webhookService: svc, maxBody: MaxWebhookBody}
}

// StripeWebhook handles POST /api/stripe-webhook. The body is read raw: the
// signature covers the exact bytes sent.
func (wc *WebhookController) StripeWebhook(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, wc.maxBody)
	payload, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = ctx.Error(apperrors.New(apperrors.KindValidation, http.StatusRequestEntityTooLarge, "Payload too large", err))
			return
		}
		_ = ctx.Error(apperrors.Validation("Webhook signature verification failed: could not read body"))
		return
	}

	event, appErr := wc.webhookService.VerifyEvent(payload, ctx.GetHeader("Stripe-Signature"))
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}

	wc.webhookService.HandleEvent(ctx.Request.Context(), event)

	ctx.JSON(http.StatusOK, gin.H{
		"received":  true,
		"eventType": event.Type,
		"timestamp": time.Now().UTC().Format(isoMillis),
	})
}
