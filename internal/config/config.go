package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	// DBDriver 取值 sqlite / postgres；DBDSN 对 sqlite 是文件路径。
	DBDriver string
	DBDSN    string

	// RedisAddr 为空时关闭 Redis（幂等键走内存、事件走 no-op、不限流）
	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组；为空则不启动 relay/consumer
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// JWT 签发参数
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	TokenTTL     time.Duration
	AuthRequired bool

	// 登录失败锁定
	LoginMaxFailures int
	LoginLockout     time.Duration

	// 事务超时与批量下单重试
	TxTimeout      time.Duration
	BulkMaxRetries int
	IdempotencyTTL time.Duration

	// 写接口限流
	WriteRateLimit  int
	WriteRateWindow time.Duration

	LogLevel  string
	LogFormat string

	// OTLP gRPC 地址，为空关闭 tracing
	OtelEndpoint      string
	OtelSamplingRatio float64
	OtelInsecure      bool
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:              getEnv("DB_DSN", "order_track.db"),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "order-track-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "order-track-audit"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "order_track:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "order-track-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "order-track-relay-1"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getEnv("JWT_ISSUER", "order-track"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "order-track-clients"),
		TokenTTL:           time.Hour,
		AuthRequired:       true,
		LoginMaxFailures:   5,
		LoginLockout:       15 * time.Minute,
		TxTimeout:          5 * time.Second,
		BulkMaxRetries:     3,
		IdempotencyTTL:     24 * time.Hour,
		WriteRateLimit:     100,
		WriteRateWindow:    time.Second,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		OtelEndpoint:       strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")),
		OtelSamplingRatio:  1.0,
		OtelInsecure:       true,
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	if len(cfg.JWTSecret) < 16 {
		return AppConfig{}, fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}

	ttlMin, err := getEnvInt("TOKEN_TTL_MIN", int(cfg.TokenTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TOKEN_TTL_MIN: %w", err)
	}
	if ttlMin <= 0 {
		return AppConfig{}, fmt.Errorf("TOKEN_TTL_MIN must be > 0")
	}
	cfg.TokenTTL = time.Duration(ttlMin) * time.Minute

	authRequired, err := getEnvBool("AUTH_REQUIRED", cfg.AuthRequired)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid AUTH_REQUIRED: %w", err)
	}
	cfg.AuthRequired = authRequired

	maxFailures, err := getEnvInt("LOGIN_MAX_FAILURES", cfg.LoginMaxFailures)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOGIN_MAX_FAILURES: %w", err)
	}
	if maxFailures <= 0 {
		return AppConfig{}, fmt.Errorf("LOGIN_MAX_FAILURES must be > 0")
	}
	cfg.LoginMaxFailures = maxFailures

	lockoutMin, err := getEnvInt("LOGIN_LOCKOUT_MIN", int(cfg.LoginLockout.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOGIN_LOCKOUT_MIN: %w", err)
	}
	if lockoutMin <= 0 {
		return AppConfig{}, fmt.Errorf("LOGIN_LOCKOUT_MIN must be > 0")
	}
	cfg.LoginLockout = time.Duration(lockoutMin) * time.Minute

	txSec, err := getEnvInt("TX_TIMEOUT_SEC", int(cfg.TxTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TX_TIMEOUT_SEC: %w", err)
	}
	if txSec <= 0 {
		return AppConfig{}, fmt.Errorf("TX_TIMEOUT_SEC must be > 0")
	}
	cfg.TxTimeout = time.Duration(txSec) * time.Second

	retries, err := getEnvInt("BULK_MAX_RETRIES", cfg.BulkMaxRetries)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BULK_MAX_RETRIES: %w", err)
	}
	if retries < 0 {
		return AppConfig{}, fmt.Errorf("BULK_MAX_RETRIES must be >= 0")
	}
	cfg.BulkMaxRetries = retries

	idemHour, err := getEnvInt("IDEMPOTENCY_TTL_HOUR", int(cfg.IdempotencyTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid IDEMPOTENCY_TTL_HOUR: %w", err)
	}
	if idemHour <= 0 {
		return AppConfig{}, fmt.Errorf("IDEMPOTENCY_TTL_HOUR must be > 0")
	}
	cfg.IdempotencyTTL = time.Duration(idemHour) * time.Hour

	rateLimit, err := getEnvInt("WRITE_RATE_LIMIT", cfg.WriteRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	cfg.WriteRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("WRITE_RATE_WINDOW_SEC", int(cfg.WriteRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.WriteRateWindow = time.Duration(rateWindowSec) * time.Second

	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return AppConfig{}, fmt.Errorf("invalid OTEL_SAMPLING_RATIO: %w", err)
		}
		if ratio < 0 || ratio > 1 {
			return AppConfig{}, fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0, 1]")
		}
		cfg.OtelSamplingRatio = ratio
	}

	insecure, err := getEnvBool("OTEL_INSECURE", cfg.OtelInsecure)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid OTEL_INSECURE: %w", err)
	}
	cfg.OtelInsecure = insecure

	if len(cfg.KafkaBrokers) > 0 {
		if cfg.RedisAddr == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS requires REDIS_ADDR (events are relayed from the redis stream)")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// EventsEnabled 表示是否启用 Redis Stream → Kafka 事件链路。
func (c AppConfig) EventsEnabled() bool {
	return c.RedisAddr != "" && len(c.KafkaBrokers) > 0
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
