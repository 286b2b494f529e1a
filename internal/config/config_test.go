package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("DOWNLOAD_RATE_WINDOW", "")
	t.Setenv("CURRENCY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, time.Minute, cfg.DownloadRateWindow)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CURRENCY", "EUR")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DOWNLOAD_RATE_LIMIT", "5")
	t.Setenv("RECONCILE_AFTER", "90s")
	t.Setenv("BLUEPRINT_DB_HOST", "db.internal")
	t.Setenv("BLUEPRINT_DB_PORT", "5432")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.DownloadRateLimit)
	assert.Equal(t, 90*time.Second, cfg.ReconcileAfter)
	assert.Contains(t, cfg.DB.DSN(), "@db.internal:5432/")
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DOWNLOAD_RATE_LIMIT", "lots")
	t.Setenv("RECONCILE_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.DownloadRateLimit)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
}

func TestLoadRejectsNonPositiveTimings(t *testing.T) {
	cases := map[string]string{
		"DOWNLOAD_RATE_WINDOW": "0s",
		"DOWNLOAD_RATE_LIMIT":  "0",
		"RECONCILE_INTERVAL":   "0s",
		"RECONCILE_AFTER":      "-1m",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
