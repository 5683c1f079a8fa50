package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	AllowedOrigins []string
	RequestTimeout time.Duration

	StripeSecretKey          string
	StripePublishableKey     string
	StripePublishableKeyTest string
	StripeWebhookSecret      string

	Checkout CheckoutLimits
	Merchant MerchantInfo

	DatabaseURL string

	PrintfulToken   string
	PrintfulStoreID string
	PrintfulBaseURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyArtistID     string
	SpotifyTokenURL     string
	SpotifyAPIBaseURL   string
	SpotifyCacheTTL     time.Duration

	RedisURL string

	SMTP SMTPConfig

	HealthCheckSecret string
	OrderSNSTopicARN  string

	RateLimitPerMinute int
	RateLimitBurst     int

	UseAWSSecrets bool
	SecretID      string

	MetricsEnabled   bool
	MetricsNamespace string
}

// CheckoutLimits bound what a client may put in a cart.
type CheckoutLimits struct {
	MaxPrice    float64
	MaxQuantity int
	MaxItems    int
}

// MerchantInfo is stamped into checkout session metadata.
type MerchantInfo struct {
	Artist  string
	Website string
}

// SMTPConfig configures merchant notification delivery.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	MerchantEmail string
}

// Enabled reports whether merchant email can be sent at all.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.User != "" && s.Password != ""
}

// configFile mirrors the optional YAML file. Secrets never live here.
type configFile struct {
	Port           string   `yaml:"port"`
	PublicBaseURL  string   `yaml:"public_base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RequestTimeout string   `yaml:"request_timeout"`
	Checkout       struct {
		MaxPrice    float64 `yaml:"max_price"`
		MaxQuantity int     `yaml:"max_quantity"`
		MaxItems    int     `yaml:"max_items"`
	} `yaml:"checkout"`
	Merchant struct {
		Artist  string `yaml:"artist"`
		Website string `yaml:"website"`
	} `yaml:"merchant"`
	Spotify struct {
		ArtistID string `yaml:"artist_id"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"spotify"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rate_limit"`
}

const (
	defaultPort            = "3000"
	defaultLocalOrigin     = "http://localhost:3000"
	defaultSpotifyArtistID = "0tA6AExzlXn8NLMfKNxdws"
	defaultSecretID        = "storefront/credentials"
)

func defaults() *Config {
	return &Config{
		Port:           defaultPort,
		Env:            "development",
		RequestTimeout: 30 * time.Second,
		Checkout: CheckoutLimits{
			MaxPrice:    10000,
			MaxQuantity: 10,
			MaxItems:    20,
		},
		Merchant: MerchantInfo{
			Artist:  "byJ.",
			Website: "byJ. Sound Recycler",
		},
		PrintfulBaseURL:    "https://api.printful.com",
		SpotifyArtistID:    defaultSpotifyArtistID,
		SpotifyTokenURL:    "https://accounts.spotify.com/api/token",
		SpotifyAPIBaseURL:  "https://api.spotify.com/v1",
		SpotifyCacheTTL:    time.Hour,
		SMTP:               SMTPConfig{Port: 587},
		RateLimitPerMinute: 100,
		RateLimitBurst:     50,
		SecretID:           defaultSecretID,
		MetricsNamespace:   "Storefront",
	}
}

// SecretSource resolves a named secret into a flat key/value map.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads defaults, then the optional YAML file named by
// STOREFRONT_CONFIG_FILE, then the environment (and a .env file when present).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("STOREFRONT_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.finalize()
	return cfg, cfg.validate()
}

// ApplySecrets overrides credentials from a secret store. Keys are the
// environment variable names they replace.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	m, err := src.GetSecretMap(ctx, c.SecretID)
	if err != nil {
		return fmt.Errorf("load secrets %s: %w", c.SecretID, err)
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(m[key]); v != "" {
			*dst = v
		}
	}
	set(&c.StripeSecretKey, "STRIPE_SECRET_KEY")
	set(&c.StripePublishableKey, "STRIPE_PUBLISHABLE_KEY")
	set(&c.StripePublishableKeyTest, "STRIPE_PUBLISHABLE_KEY_TEST")
	set(&c.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	set(&c.DatabaseURL, "DATABASE_URL")
	set(&c.PrintfulToken, "PRINTFUL_OAUTH_TOKEN")
	set(&c.SpotifyClientID, "SPOTIFY_CLIENT_ID")
	set(&c.SpotifyClientSecret, "SPOTIFY_CLIENT_SECRET")
	set(&c.SMTP.Password, "SMTP_PASSWORD")
	set(&c.HealthCheckSecret, "HEALTH_CHECK_SECRET")
	c.PrintfulToken = StripBearer(c.PrintfulToken)
	return nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Port != "" {
		c.Port = f.Port
	}
	if f.PublicBaseURL != "" {
		c.PublicBaseURL = f.PublicBaseURL
	}
	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if f.RequestTimeout != "" {
		d, err := time.ParseDuration(f.RequestTimeout)
		if err != nil {
			return fmt.Errorf("config file request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if f.Checkout.MaxPrice > 0 {
		c.Checkout.MaxPrice = f.Checkout.MaxPrice
	}
	if f.Checkout.MaxQuantity > 0 {
		c.Checkout.MaxQuantity = f.Checkout.MaxQuantity
	}
	if f.Checkout.MaxItems > 0 {
		c.Checkout.MaxItems = f.Checkout.MaxItems
	}
	if f.Merchant.Artist != "" {
		c.Merchant.Artist = f.Merchant.Artist
	}
	if f.Merchant.Website != "" {
		c.Merchant.Website = f.Merchant.Website
	}
	if f.Spotify.ArtistID != "" {
		c.SpotifyArtistID = f.Spotify.ArtistID
	}
	if f.Spotify.CacheTTL != "" {
		d, err := time.ParseDuration(f.Spotify.CacheTTL)
		if err != nil {
			return fmt.Errorf("config file spotify.cache_ttl: %w", err)
		}
		c.SpotifyCacheTTL = d
	}
	if f.RateLimit.PerMinute > 0 {
		c.RateLimitPerMinute = f.RateLimit.PerMinute
	}
	if f.RateLimit.Burst > 0 {
		c.RateLimitBurst = f.RateLimit.Burst
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("APP_ENV", c.Env)

	if v := os.Getenv("VERCEL_URL"); v != "" {
		c.PublicBaseURL = "https://" + v
	} else {
		c.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.PublicBaseURL)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	c.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	c.StripePublishableKey = os.Getenv("STRIPE_PUBLISHABLE_KEY")
	c.StripePublishableKeyTest = os.Getenv("STRIPE_PUBLISHABLE_KEY_TEST")
	c.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	c.Merchant.Artist = getEnv("MERCHANT_ARTIST", c.Merchant.Artist)
	c.Merchant.Website = getEnv("MERCHANT_WEBSITE", c.Merchant.Website)

	c.DatabaseURL = firstEnv("SUPABASE_DB_URL", "DATABASE_URL", "POSTGRES_URL")
	if c.DatabaseURL == "" {
		c.DatabaseURL = postgresDSNFromParts()
	}

	c.PrintfulToken = StripBearer(firstEnv("PRINTFUL_OAUTH_TOKEN", "PRINTFUL_API_KEY"))
	c.PrintfulStoreID = os.Getenv("PRINTFUL_STORE_ID")
	c.PrintfulBaseURL = strings.TrimSuffix(getEnv("PRINTFUL_API_URL", c.PrintfulBaseURL), "/")

	c.SpotifyClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	c.SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	c.SpotifyArtistID = getEnv("SPOTIFY_ARTIST_ID", c.SpotifyArtistID)

	c.RedisURL = os.Getenv("REDIS_URL")

	c.SMTP.Host = os.Getenv("SMTP_HOST")
	c.SMTP.User = os.Getenv("SMTP_USER")
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.User)
	c.SMTP.MerchantEmail = os.Getenv("MERCHANT_EMAIL")

	c.HealthCheckSecret = os.Getenv("HEALTH_CHECK_SECRET")
	c.OrderSNSTopicARN = os.Getenv("ORDER_SNS_TOPIC_ARN")
	c.UseAWSSecrets = os.Getenv("AWS_USE_SECRETS") == "true"
	c.SecretID = getEnv("STOREFRONT_SECRET_ID", c.SecretID)
	c.MetricsEnabled = os.Getenv("CLOUDWATCH_ENABLED") == "true"
	c.MetricsNamespace = getEnv("CLOUDWATCH_NAMESPACE", c.MetricsNamespace)

	var err error
	if c.SMTP.Port, err = envInt("SMTP_PORT", c.SMTP.Port); err != nil {
		return err
	}
	if c.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute); err != nil {
		return err
	}
	if c.Checkout.MaxItems, err = envInt("CHECKOUT_MAX_ITEMS", c.Checkout.MaxItems); err != nil {
		return err
	}
	if c.SpotifyCacheTTL, err = envDuration("SPOTIFY_CACHE_TTL", c.SpotifyCacheTTL); err != nil {
		return err
	}
	if c.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) finalize() {
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = defaultLocalOrigin
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")

	seen := map[string]bool{}
	origins := make([]string, 0, len(c.AllowedOrigins)+2)
	for _, o := range append([]string{c.PublicBaseURL, defaultLocalOrigin}, c.AllowedOrigins...) {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		origins = append(origins, o)
	}
	c.AllowedOrigins = origins
}

func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid public base url %q: %w", c.PublicBaseURL, err)
	}
	if c.Checkout.MaxItems <= 0 || c.Checkout.MaxQuantity <= 0 || c.Checkout.MaxPrice <= 0 {
		return fmt.Errorf("checkout limits must be positive")
	}
	return nil
}

// StripBearer removes a leading "Bearer " (any case) from a token.
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func postgresDSNFromParts() string {
	host := os.Getenv("POSTGRES_HOST")
	user := os.Getenv("POSTGRES_USER")
	db := os.Getenv("POSTGRES_DB")
	if host == "" || user == "" || db == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, os.Getenv("POSTGRES_PASSWORD"), db,
		getEnv("POSTGRES_PORT", "5432"), getEnv("POSTGRES_SSLMODE", "require"),
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
