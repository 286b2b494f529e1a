package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/database"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	// StoreBackend is "postgres" or "memory".
	StoreBackend string
	DB           database.Config

	Currency            string
	StripeSecretKey     string
	StripeWebhookSecret string

	RedisAddr          string
	DownloadRateLimit  int
	DownloadRateWindow time.Duration
	DownloadDir        string

	KafkaBrokers    []string
	KafkaOrderTopic string

	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration
}

// Load reads the environment and rejects settings the rate limiter or the
// reconciliation ticker cannot run with.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:       getEnv("APP_ENV", "dev"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		StoreBackend: getEnv("STORE_BACKEND", "postgres"),
		DB: database.Config{
			Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
			Port:     getEnv("BLUEPRINT_DB_PORT", "5432"),
			Database: getEnv("BLUEPRINT_DB_DATABASE", "storefront"),
			Username: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
			Password: os.Getenv("BLUEPRINT_DB_PASSWORD"),
			Schema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		},
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		DownloadRateLimit:   getEnvInt("DOWNLOAD_RATE_LIMIT", 20),
		DownloadRateWindow:  getEnvDuration("DOWNLOAD_RATE_WINDOW", time.Minute),
		DownloadDir:         getEnv("DOWNLOAD_DIR", "./data/downloads"),
		KafkaBrokers:        getEnvList("KAFKA_BROKERS"),
		KafkaOrderTopic:     getEnv("KAFKA_ORDER_TOPIC", "storefront.orders"),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileAfter:      getEnvDuration("RECONCILE_AFTER", 15*time.Minute),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.DownloadRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_RATE_LIMIT must be positive, got %d", c.DownloadRateLimit))
	}
	if c.DownloadRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_RATE_WINDOW must be positive, got %s", c.DownloadRateWindow))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval))
	}
	if c.ReconcileAfter < 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_AFTER must not be negative, got %s", c.ReconcileAfter))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
