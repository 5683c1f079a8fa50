package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/apperrors"
	"storefront-service/cache"
	"storefront-service/config"
	"storefront-service/controllers"
	"storefront-service/database"
	"storefront-service/logger"
	"storefront-service/middleware"
	"storefront-service/notifier"
	aws_pkg "storefront-service/pkg/aws"
	"storefront-service/providers"
	"storefront-service/repository"
	"storefront-service/routes"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Reconciliation work gets this long after the webhook is acknowledged.
const backgroundTaskTimeout = 60 * time.Second

func main() {
	log := logger.Initialize(os.Getenv("APP_ENV"))
	defer log.Sync() //nolint:errcheck

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// AWS clients
	var snsClient aws_pkg.SNSPublisher
	var metricsClient *aws_pkg.MetricsClient
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(context.Background())
	if awsErr != nil {
		log.Warn("AWS config unavailable, SNS, Secrets Manager and CloudWatch disabled", zap.Error(awsErr))
	} else {
		if cfg.UseAWSSecrets {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
				log.Warn("Failed to load secrets from AWS, using environment", zap.String("secret_id", cfg.SecretID), zap.Error(err))
			}
			cancel()
		}
		if cfg.OrderSNSTopicARN != "" {
			snsClient = aws_pkg.NewSNSClient(awsCfg)
		}
		metricsClient = aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.MetricsEnabled)
	}
	logConfigSummary(log, cfg)

	// Storage
	db := database.NewLazyPostgres(cfg.DatabaseURL, true, log)
	defer db.Close() //nolint:errcheck
	orderRepo := repository.NewGormOrderRepository(db)

	// Cache
	var store cache.Store = cache.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Warn("Invalid REDIS_URL, using in-process cache", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			store = cache.NewRedisStore(client, 24*time.Hour)
		}
	}
	loader := cache.NewLoader(store, log)

	// Providers
	payments := providers.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	printful := providers.NewPrintfulProvider(cfg.PrintfulToken, cfg.PrintfulStoreID, cfg.PrintfulBaseURL)
	spotify := providers.NewSpotifyProvider(providers.SpotifyOptions{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		ArtistID:     cfg.SpotifyArtistID,
		TokenURL:     cfg.SpotifyTokenURL,
		APIBaseURL:   cfg.SpotifyAPIBaseURL,
	})

	var sender notifier.EmailSender
	if cfg.SMTP.Enabled() {
		smtpSender, err := notifier.NewSMTPSender(cfg.SMTP)
		if err != nil {
			log.Warn("SMTP disabled", zap.Error(err))
		} else {
			sender = smtpSender
		}
	}
	merchantNotifier := notifier.NewMerchantNotifier(sender, cfg.SMTP.From, cfg.SMTP.MerchantEmail, log)

	// Services
	runner := services.NewBackgroundRunner(backgroundTaskTimeout, log)
	checkoutService := services.NewCheckoutService(payments, orderRepo, snsClient, cfg.OrderSNSTopicARN, services.CheckoutOptions{
		BaseURL:  cfg.PublicBaseURL,
		Limits:   cfg.Checkout,
		Merchant: cfg.Merchant,
	}, log)
	webhookService := services.NewWebhookService(payments, orderRepo, merchantNotifier, runner, snsClient, cfg.OrderSNSTopicARN, log)
	paymentInfoService := services.NewPaymentInfoService(payments, services.StripeKeys{
		Secret:          cfg.StripeSecretKey,
		Publishable:     cfg.StripePublishableKey,
		PublishableTest: cfg.StripePublishableKeyTest,
	}, log)
	fulfillmentService := services.NewFulfillmentService(printful, log)
	musicService := services.NewMusicService(spotify, loader, cfg.SpotifyCacheTTL, log)
	healthService := services.NewHealthService(orderRepo, cfg.HealthCheckSecret, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(metricsClient, "storefront-service"))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(middleware.CORSPolicy{
		AllowedOrigins: cfg.AllowedOrigins,
		Restricted:     routes.AllowListPaths,
		Skip:           routes.NoCORSPaths,
	}))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, cfg.RateLimitBurst, routes.WebhookPath))
	r.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	r.Use(apperrors.ErrorMiddleware())

	routes.RegisterRoutes(r, routes.Controllers{
		Checkout:    controllers.NewCheckoutController(checkoutService),
		Webhook:     controllers.NewWebhookController(webhookService),
		Payment:     controllers.NewPaymentController(paymentInfoService),
		Fulfillment: controllers.NewFulfillmentController(fulfillmentService),
		Music:       controllers.NewMusicController(musicService),
		Health:      controllers.NewHealthController(healthService),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Storefront service started", zap.String("port", cfg.Port), zap.String("base_url", cfg.PublicBaseURL))
	<-quit
	log.Info("Shutting down storefront service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := runner.Wait(ctx); err != nil {
		log.Warn("Background tasks did not finish", zap.Error(err))
	}
	log.Info("Server exited cleanly")
}

// logConfigSummary reports which integrations are live. Keys appear only as
// short prefixes.
func logConfigSummary(log *zap.Logger, cfg *config.Config) {
	log.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("stripe_secret_key", keyPrefix(cfg.StripeSecretKey)),
		zap.Bool("webhook_secret_set", cfg.StripeWebhookSecret != ""),
		zap.Bool("database_configured", cfg.DatabaseURL != ""),
		zap.Bool("printful_configured", cfg.PrintfulToken != ""),
		zap.Bool("spotify_configured", cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != ""),
		zap.Bool("smtp_configured", cfg.SMTP.Enabled()),
		zap.Bool("merchant_email_set", cfg.SMTP.MerchantEmail != ""),
		zap.Bool("redis_configured", cfg.RedisURL != ""),
		zap.Bool("sns_configured", cfg.OrderSNSTopicARN != ""),
		zap.Bool("cloudwatch_enabled", cfg.MetricsEnabled),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)
}

func keyPrefix(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) > 8 {
		return key[:8] + "..."
	}
	return key
}
