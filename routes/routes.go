package routes

import (
	"net/http"

	"storefront-service/apperrors"
	"storefront-service/controllers"

	"github.com/gin-gonic/gin"
)

const (
	CheckoutPath       = "/api/create-checkout-session"
	WebhookPath        = "/api/stripe-webhook"
	PublishableKeyPath = "/api/stripe-publishable-key"
	HealthPath         = "/api/health"
)

// AllowListPaths answer only to configured origins.
var AllowListPaths = []string{CheckoutPath, PublishableKeyPath, HealthPath}

// NoCORSPaths are server-to-server only.
var NoCORSPaths = []string{WebhookPath}

// Controllers groups the handlers the router needs.
type Controllers struct {
	Checkout    *controllers.CheckoutController
	Webhook     *controllers.WebhookController
	Payment     *controllers.PaymentController
	Fulfillment *controllers.FulfillmentController
	Music       *controllers.MusicController
	Health      *controllers.HealthController
}

// RegisterRoutes sets up every storefront route plus JSON 404/405 answers.
func RegisterRoutes(r *gin.Engine, c Controllers) {
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, apperrors.ErrNotFound.Body())
	})
	r.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, apperrors.ErrMethodNotAllowed.Body())
	})

	r.GET("/healthz", controllers.Liveness)

	api := r.Group("/api")

	// Payments
	api.POST("/create-checkout-session", c.Checkout.CreateCheckoutSession)
	api.POST("/stripe-webhook", c.Webhook.StripeWebhook)
	api.GET("/stripe-publishable-key", c.Payment.PublishableKey)
	api.GET("/get-session-details", c.Payment.SessionDetails)

	// Print-on-demand
	api.GET("/printful-products", c.Fulfillment.Products)
	api.POST("/printful-mockup", c.Fulfillment.CreateMockup)
	api.GET("/printful-mockup", c.Fulfillment.GetMockup)
	api.POST("/printful-order", c.Fulfillment.SubmitOrder)
	api.GET("/printful-order", c.Fulfillment.GetOrder)
	api.POST("/printful-designer-nonce", c.Fulfillment.CreateDesignerNonce)
	api.GET("/printful-designer-nonce", c.Fulfillment.GetDesign)

	// Music
	api.GET("/spotify-discography", c.Music.Discography)
	api.GET("/spotify-latest", c.Music.LatestRelease)
	api.GET("/spotify-random-track", c.Music.RandomTrack)

	api.GET("/health", c.Health.Health)
}
