package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/get2knowme/internal/api"
	"github.com/charlesng35/get2knowme/internal/app"
	"github.com/charlesng35/get2knowme/internal/app/maintenance"
	iauth "github.com/charlesng35/get2knowme/internal/auth"
	"github.com/charlesng35/get2knowme/internal/cache"
	"github.com/charlesng35/get2knowme/internal/database"
	"github.com/charlesng35/get2knowme/internal/fieldcrypt"
	"github.com/charlesng35/get2knowme/internal/handlers"
	"github.com/charlesng35/get2knowme/internal/middleware"
	"github.com/charlesng35/get2knowme/internal/notifications"
	"github.com/charlesng35/get2knowme/internal/security"
	"github.com/charlesng35/get2knowme/internal/services"
	"github.com/charlesng35/get2knowme/internal/store"
)

const finalSweepTimeout = 10 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB           *gorm.DB
	Mongo        *mongo.Client
	Store        store.Store
	Redis        *cache.RedisClient
	RateStore    middleware.RateStore
	Registration *services.RegistrationService
	Reset        *services.PasswordResetService
	Cleaner      *maintenance.Cleaner
	Router       *gin.Engine
	Audit        security.Result

	memoryRates *middleware.MemoryRateStore
}

// bootstrapRuntime initialises storage, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
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

	cipher, err := cfg.Security.NewFieldCipher()
	if err != nil {
		return nil, fmt.Errorf("initialise field cipher: %w", err)
	}

	if err := stack.initialiseStore(ctx, cfg, cipher, log); err != nil {
		return nil, err
	}

	mailer, err := cfg.Email.NewMailer()
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	notifier, err := notifications.NewService(mailer, cfg.Email.NotificationConfig())
	switch {
	case errors.Is(err, notifications.ErrNotConfigured):
		log.Warn("email delivery is not configured; registrations will fail until a provider is set")
	case err != nil:
		return nil, fmt.Errorf("initialise notifications: %w", err)
	default:
		log.Info("email delivery configured", zap.String("provider", cfg.Email.ResolvedProvider()))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	regOpts := append(cfg.Registration.RegistrationOptions(), services.WithAccessTokens(jwtSvc))
	stack.Registration, err = services.NewRegistrationService(stack.Store, notifier, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise registration service: %w", err)
	}

	stack.Reset, err = services.NewPasswordResetService(stack.Store, notifier, cfg.Registration.PasswordResetOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise password reset service: %w", err)
	}

	if cfg.Maintenance.SweepEnabled {
		stack.Cleaner = maintenance.NewCleaner(
			maintenance.WithSweeper(stack.Registration),
			maintenance.WithSchedule(cfg.Maintenance.SweepSchedule),
			maintenance.WithTimeout(cfg.Maintenance.SweepTimeout),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if redisCfg, enabled := cfg.Cache.RedisClientConfig(); enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, redisCfg); err != nil {
			log.Warn("redis unavailable; falling back to in-memory rate limiting", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", redisCfg.Address))
		}
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.memoryRates = middleware.NewMemoryRateStore()
		stack.RateStore = stack.memoryRates
	}

	checks := map[string]handlers.Pinger{"database": stack.Store}
	if stack.Redis != nil {
		checks["redis"] = stack.Redis
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		Registration:  stack.Registration,
		PasswordReset: stack.Reset,
		HealthChecks:  checks,
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	stack.Audit = security.NewAuditService(stack.Store, jwtSvc, cfg, generated).Run(ctx)
	logAudit(stack.Audit, log)

	success = true
	return stack, nil
}

func logAudit(result security.Result, log *zap.Logger) {
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
	log.Info("security audit complete",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

func (s *runtimeStack) initialiseStore(ctx context.Context, cfg *app.Config, cipher *fieldcrypt.Cipher, log *zap.Logger) error {
	if cfg.Database.UsesMongo() {
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo.ConnectionConfig())
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		s.Mongo = client

		mongoStore, err := store.NewMongoStore(db, cipher)
		if err != nil {
			return fmt.Errorf("initialise mongo store: %w", err)
		}
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}
		s.Store = mongoStore

		log.Info("database connected", zap.String("driver", "mongo"), zap.String("database", cfg.Mongo.Database))
		return nil
	}

	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.DB = db

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto-migrate database: %w", err)
	}

	gormStore, err := store.NewGormStore(db, cipher)
	if err != nil {
		return fmt.Errorf("initialise gorm store: %w", err)
	}
	s.Store = gormStore

	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()

		sweepCtx, cancel := context.WithTimeout(ctx, finalSweepTimeout)
		if err := s.Cleaner.RunOnce(sweepCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		cancel()
	}

	if s.memoryRates != nil {
		s.memoryRates.Stop()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("failed to close redis client", zap.Error(err))
		}
	}

	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			log.Warn("failed to disconnect mongo", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}
