package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

// clearEnv 屏蔽宿主机上可能存在的同名变量。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REDIS_ADDR", "KAFKA_BROKERS", "DB_DRIVER", "DB_DSN", "HTTP_ADDR",
		"TOKEN_TTL_MIN", "AUTH_REQUIRED", "TX_TIMEOUT_SEC", "BULK_MAX_RETRIES", "OTEL_SAMPLING_RATIO"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "order_track.db", cfg.DBDSN)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.AuthRequired)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 3, cfg.BulkMaxRetries)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.EventsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "host=db user=app")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TOKEN_TTL_MIN", "30")
	t.Setenv("AUTH_REQUIRED", "false")
	t.Setenv("TX_TIMEOUT_SEC", "2")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.False(t, cfg.AuthRequired)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.InDelta(t, 0.25, cfg.OtelSamplingRatio, 1e-9)
	assert.True(t, cfg.EventsEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"bad driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"bad ttl", map[string]string{"TOKEN_TTL_MIN": "0"}},
		{"non numeric retries", map[string]string{"BULK_MAX_RETRIES": "many"}},
		{"negative retries", map[string]string{"BULK_MAX_RETRIES": "-1"}},
		{"bad rate window", map[string]string{"WRITE_RATE_WINDOW_SEC": "0"}},
		{"ratio out of range", map[string]string{"OTEL_SAMPLING_RATIO": "1.5"}},
		{"kafka without redis", map[string]string{"KAFKA_BROKERS": "k:9092"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", testSecret)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
