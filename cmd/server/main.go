package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"order_track/internal/auth"
	"order_track/internal/config"
	"order_track/internal/database"
	"order_track/internal/logger"
	"order_track/internal/queue"
	"order_track/internal/router"
	"order_track/internal/service"
	"order_track/internal/telemetry"
	rediskey "order_track/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 还没建好，直接退出
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. tracing
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Endpoint:      cfg.OtelEndpoint,
		SamplingRatio: cfg.OtelSamplingRatio,
		Insecure:      cfg.OtelInsecure,
	}, log)
	if err != nil {
		log.Fatal("init tracing", zap.Error(err))
	}

	// 2. 数据库，自动建表
	db, err := database.Open(database.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DBDSN,
		Logger: logger.NewGormLogger(log, logger.GormLevel(cfg.LogLevel)),
	})
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	if cfg.OtelEndpoint != "" {
		if err := telemetry.InstrumentDB(db, cfg.DBDriver); err != nil {
			log.Fatal("db tracing", zap.Error(err))
		}
	}

	// 3. Redis（可选）：幂等键、限流、事件 Stream
	var (
		rdb       *rd.Client
		idem      service.IdempotencyStore = service.NewMemoryIdempotencyStore()
		publisher service.EventPublisher   = service.NopPublisher{}
	)
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		idem = service.RedisIdempotency{Store: rediskey.NewRequestStore(rdb)}
		publisher = queue.NewStreamPublisher(rdb, cfg.OrderEventStream)
		log.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	}

	// 4. Relay（Stream → Kafka）与审计消费者
	var (
		wg       sync.WaitGroup
		producer *queue.Producer
		consumer *queue.Consumer
	)
	if cfg.EventsEnabled() {
		producer = queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, log)
		consumer = queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db, log)

		wg.Add(2)
		go func() { defer wg.Done(); relay.Run(ctx) }()
		go func() { defer wg.Done(); consumer.Run(ctx) }()
		log.Info("event pipeline enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// 5. 业务服务
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	deps := router.Deps{
		Orders: service.NewOrderService(db, service.OrderOptions{
			TxTimeout:      cfg.TxTimeout,
			MaxRetries:     cfg.BulkMaxRetries,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Publisher:      publisher,
			Idempotency:    idem,
			Logger:         log,
		}),
		Reports:  service.NewReportService(db),
		Products: service.NewProductService(db, log),
		Accounts: service.NewAuthService(db, tokens, service.AuthOptions{
			MaxFailures: cfg.LoginMaxFailures,
			Lockout:     cfg.LoginLockout,
			BcryptCost:  auth.DefaultCost,
			Logger:      log,
		}),
		Tokens: tokens,
		Redis:  rdb,
		Config: cfg,
	}

	// 6. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if cfg.OtelEndpoint != "" {
		r.Use(telemetry.GinMiddleware())
	}
	r.Use(logger.RequestID(), logger.GinMiddleware(log), logger.Recovery(log))
	router.Setup(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	wg.Wait()
	if consumer != nil {
		_ = consumer.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		log.Warn("db close", zap.Error(err))
	}
}
