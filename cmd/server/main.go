package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/database"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.Log)
	logging.BridgeStdlog(logger)
	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
	} else {
		logger.Warn().Msg("REDIS_URL is not set, token blacklist disabled")
	}

	srv := server.NewServer(ctx, cfg, server.Deps{DB: db, Redis: rdb, Logger: logger})
	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}
