package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/api"
	"github.com/campuskit/notifier/internal/app"
	"github.com/campuskit/notifier/internal/cache"
	"github.com/campuskit/notifier/internal/database"
	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/realtime"
	"github.com/campuskit/notifier/internal/transport"
	"github.com/campuskit/notifier/pkg/logger"
	"github.com/campuskit/notifier/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB     *gorm.DB
	Redis  cache.Store
	Hub    *realtime.Hub
	Engine *engine.Engine
	Worker *engine.Worker
	Router *gin.Engine
}

// bootstrapRuntime initialises the database, cache, transport sinks, engine,
// background worker and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	cacheStore := cache.Store(cache.NewDatabaseStore(stack.DB))
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			cacheStore = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Hub = realtime.NewHub()

	sinks, err := buildSinks(cfg, stack.Hub, log)
	if err != nil {
		return nil, err
	}

	stack.Engine, err = engine.New(stack.DB, cacheStore, transport.NewRegistry(sinks...), cfg.Engine.EngineSettings(cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("initialise engine: %w", err)
	}

	stack.Worker, err = engine.NewWorker(stack.Engine, stack.DB, cfg.Engine.WorkerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise worker: %w", err)
	}
	if err := stack.Worker.Start(); err != nil {
		return nil, fmt.Errorf("start background jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, stack.Engine, stack.Hub, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildSinks wires one transport sink per configured channel. The in-app sink
// is always present; the others follow their config toggles.
func buildSinks(cfg *app.Config, hub *realtime.Hub, log *zap.Logger) ([]transport.Sink, error) {
	sinks := []transport.Sink{transport.NewInAppSink(hub)}

	if cfg.Email.SMTP.Enabled {
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
		emailSink, err := transport.NewEmailSink(mailer, cfg.Email.AddressResolver())
		if err != nil {
			return nil, fmt.Errorf("initialise email sink: %w", err)
		}
		sinks = append(sinks, emailSink)
	} else {
		log.Info("email channel disabled")
	}

	if cfg.Webhooks.Push.Enabled {
		pushSink, err := transport.NewWebhookSink(transport.ChannelPush, cfg.Webhooks.Push.TransportConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise push sink: %w", err)
		}
		sinks = append(sinks, pushSink)
	}

	if cfg.Webhooks.SMS.Enabled {
		smsSink, err := transport.NewWebhookSink(transport.ChannelSMS, cfg.Webhooks.SMS.TransportConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise sms sink: %w", err)
		}
		sinks = append(sinks, smsSink)
	}

	return sinks, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Worker != nil {
		stopCtx := s.Worker.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		// Drain whatever the periodic jobs would have picked up next.
		if err := s.Worker.RunOnce(ctx); err != nil {
			log.Warn("shutdown drain failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
