package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "APP_ENV", "VERCEL_URL", "PUBLIC_BASE_URL", "ALLOWED_ORIGINS",
		"STRIPE_SECRET_KEY", "STRIPE_PUBLISHABLE_KEY", "STRIPE_PUBLISHABLE_KEY_TEST", "STRIPE_WEBHOOK_SECRET",
		"SUPABASE_DB_URL", "DATABASE_URL", "POSTGRES_URL", "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_DB",
		"POSTGRES_PASSWORD", "POSTGRES_PORT", "POSTGRES_SSLMODE",
		"PRINTFUL_OAUTH_TOKEN", "PRINTFUL_API_KEY", "PRINTFUL_STORE_ID", "PRINTFUL_API_URL",
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_ARTIST_ID", "SPOTIFY_CACHE_TTL",
		"REDIS_URL", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "MERCHANT_EMAIL",
		"HEALTH_CHECK_SECRET", "ORDER_SNS_TOPIC_ARN", "AWS_USE_SECRETS", "STOREFRONT_SECRET_ID",
		"STOREFRONT_CONFIG_FILE", "RATE_LIMIT_PER_MINUTE", "CHECKOUT_MAX_ITEMS", "REQUEST_TIMEOUT",
		"MERCHANT_ARTIST", "MERCHANT_WEBSITE", "CLOUDWATCH_ENABLED", "CLOUDWATCH_NAMESPACE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.PublicBaseURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, CheckoutLimits{MaxPrice: 10000, MaxQuantity: 10, MaxItems: 20}, cfg.Checkout)
	assert.Equal(t, "0tA6AExzlXn8NLMfKNxdws", cfg.SpotifyArtistID)
	assert.Equal(t, time.Hour, cfg.SpotifyCacheTTL)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "Storefront", cfg.MetricsNamespace)
}

func TestLoadConfig_EnvAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERCEL_URL", "shop.example.com")
	t.Setenv("ALLOWED_ORIGINS", "https://byj.example.com/, https://shop.example.com")
	t.Setenv("DATABASE_URL", "postgres://db/two")
	t.Setenv("POSTGRES_URL", "postgres://db/three")
	t.Setenv("PRINTFUL_API_KEY", "Bearer pf_abc")
	t.Setenv("SMTP_USER", "shop@example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
	assert.Equal(t, []string{"https://shop.example.com", "http://localhost:3000", "https://byj.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://db/two", cfg.DatabaseURL)
	assert.Equal(t, "pf_abc", cfg.PrintfulToken)
	assert.Equal(t, "shop@example.com", cfg.SMTP.From)
}

func TestLoadConfig_PostgresParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_USER", "store")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "orders")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal user=store password=pw dbname=orders port=5432 sslmode=require", cfg.DatabaseURL)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
checkout:
  max_price: 250
  max_quantity: 3
  max_items: 5
merchant:
  artist: Someone
spotify:
  cache_ttl: 10m
`), 0o600))
	t.Setenv("STOREFRONT_CONFIG_FILE", path)
	t.Setenv("CHECKOUT_MAX_ITEMS", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 250.0, cfg.Checkout.MaxPrice)
	assert.Equal(t, 3, cfg.Checkout.MaxQuantity)
	assert.Equal(t, 7, cfg.Checkout.MaxItems)
	assert.Equal(t, "Someone", cfg.Merchant.Artist)
	assert.Equal(t, "byJ. Sound Recycler", cfg.Merchant.Website)
	assert.Equal(t, 10*time.Minute, cfg.SpotifyCacheTTL)
}

func TestLoadConfig_BadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_PORT", "not-a-port")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "SMTP_PORT")
}

type stubSecrets struct {
	m   map[string]string
	err error
}

func (s stubSecrets) GetSecretMap(context.Context, string) (map[string]string, error) {
	return s.m, s.err
}

func TestApplySecrets(t *testing.T) {
	cfg := defaults()
	cfg.StripeSecretKey = "sk_test_env"
	cfg.SMTP.Password = "env-pass"

	err := cfg.ApplySecrets(context.Background(), stubSecrets{m: map[string]string{
		"STRIPE_SECRET_KEY":    "sk_live_secret",
		"PRINTFUL_OAUTH_TOKEN": "bearer pf_live",
		"SMTP_PASSWORD":        " ",
	}})
	require.NoError(t, err)

	assert.Equal(t, "sk_live_secret", cfg.StripeSecretKey)
	assert.Equal(t, "pf_live", cfg.PrintfulToken)
	assert.Equal(t, "env-pass", cfg.SMTP.Password)

	assert.Error(t, cfg.ApplySecrets(context.Background(), stubSecrets{err: errors.New("denied")}))
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("BEARER   abc"))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "", StripBearer(""))
}
