package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/sendables/config"
	"github.com/d60-Lab/sendables/internal/api"
	"github.com/d60-Lab/sendables/internal/entities"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/service"
	"github.com/d60-Lab/sendables/pkg/database"
	"github.com/d60-Lab/sendables/pkg/logger"
	"github.com/d60-Lab/sendables/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(context.Background(), "sendables", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		return
	}
	if err := database.Migrate(db,
		&model.User{},
		&model.ReceivedSendable{},
		&model.RecipientSendableAssociation{},
		&model.Message{},
		&model.Notice{},
	); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	}
	unread := service.NewUnreadCache(rdb, 5*time.Minute)

	reg := registry.New(cfg.Viper())
	if err := entities.RegisterBuiltin(reg); err != nil {
		logger.Error("entity registration failed", zap.Error(err))
		return
	}

	svcs := api.Services{
		Auth:    service.NewAuthService(db, cfg.JWT.Secret, time.Duration(cfg.JWT.TTLMinutes)*time.Minute),
		Send:    service.NewSendService(db, unread),
		Mark:    service.NewMarkService(db, unread),
		Retract: service.NewRetractService(db, unread),
		List:    service.NewListService(db, unread),
	}

	r := api.NewRouter(cfg, reg, svcs)
	logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
	if err := r.Run(cfg.Server.Addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
