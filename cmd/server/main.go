package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	webAdapter "accounting-core/internal/adapters/web"
	"accounting-core/internal/app"
	"accounting-core/internal/config"
	"accounting-core/internal/db"
	"accounting-core/internal/dlock"
	"accounting-core/internal/logging"
	"accounting-core/internal/outbox"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	// Redis is optional. Without it locks are skipped and events wait for
	// the outbox poller; the database alone keeps commands correct.
	var locks *dlock.Service
	var publisher *outbox.Publisher
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it", zap.Error(err))
		}
		locks = dlock.New(rdb, logger)
		publisher = outbox.NewPublisher(pool, rdb, logger)
	} else {
		locks = dlock.New(nil, logger)
		publisher = outbox.NewPublisher(pool, nil, logger)
	}

	svc := app.NewAppService(pool, locks, publisher, cfg.LockTTL, cfg.MaxRetries, logger)

	handler := webAdapter.NewHandler(svc, os.Getenv("ALLOWED_ORIGINS"), logger)

	logger.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, handler); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
