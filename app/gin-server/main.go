package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/launchkit/config"
	"github.com/yoockh/launchkit/internal/api/handlers"
	"github.com/yoockh/launchkit/internal/api/middleware"
	"github.com/yoockh/launchkit/internal/api/routes"
	"github.com/yoockh/launchkit/internal/billing"
	"github.com/yoockh/launchkit/internal/cache"
	"github.com/yoockh/launchkit/internal/identity/gotrue"
	"github.com/yoockh/launchkit/internal/logger"
	mongorepo "github.com/yoockh/launchkit/internal/repositories/mongo"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/services"
	"github.com/yoockh/launchkit/internal/workers"
)

func main() {
	_ = godotenv.Load()

	settings := config.Load()
	log := logger.New(settings.LogLevel)

	warnings, err := settings.Validate()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	if err := config.InitPostgres(settings); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.MigratePostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	if err := config.InitRedis(settings); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	if err := config.InitMongo(settings); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Warn("MongoDB index setup failed")
	}
	log.Info("MongoDB connected")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// repositories
	profiles := pgrepo.NewProfileRepo(config.PostgresDB)
	whitelist := pgrepo.NewWhitelistRepo(config.PostgresDB)
	billingEvents := pgrepo.NewBillingEventRepo(config.PostgresDB)
	activityRepo := mongorepo.NewActivityRepo(config.MongoDatabase())

	// provider clients
	userAPI := gotrue.NewAPI(settings.SupabaseURL, settings.SupabaseAnonKey)
	adminAPI := gotrue.NewAPI(settings.SupabaseURL, settings.SupabaseServiceKey)

	// services
	activity := services.NewActivityService(activityRepo, log)
	authSvc := services.NewAuthService(services.AuthConfig{
		AppURL:        settings.AppURL,
		AdminEmail:    settings.AdminEmail,
		WhitelistMode: settings.WhitelistMode,
	}, userAPI, profiles, whitelist, activity, log)
	userSvc := services.NewUserService(settings.AdminEmail, profiles, adminAPI, activity)
	statsSvc := services.NewStatsService(profiles, cache.NewRedisCache(config.RedisClient, "launchkit:"), log)
	adminSvc := services.NewAdminService(profiles, adminAPI, activity)

	seedCtx, cancelSeed := context.WithTimeout(ctx, 30*time.Second)
	if err := services.SeedAdmin(seedCtx, adminAPI, profiles, settings.AdminEmail, log); err != nil {
		log.WithError(err).Warn("admin seeding failed")
	}
	cancelSeed()

	var billingHandler *handlers.BillingHandler
	if settings.StripeEnabled {
		queue := &workers.BillingQueue{Redis: config.RedisClient}
		billingSvc := services.NewBillingService(services.BillingConfig{
			Enabled:      true,
			AppURL:       settings.AppURL,
			PriceMonthly: settings.StripePriceMonthly,
			PriceYearly:  settings.StripePriceYearly,
		}, billing.NewStripeGateway(settings.StripeSecretKey, settings.StripeWebhookSecret),
			profiles, billingEvents, queue, activity, log)

		pool := &workers.BillingWorkerPool{Redis: config.RedisClient, Processor: billingSvc, Logger: log}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("billing worker init error")
		}
		billingHandler = handlers.NewBillingHandler(billingSvc)
	}

	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(log, "/api/health", "/metrics"),
		middleware.Metrics(),
		middleware.CORS(corsOrigins(settings)),
	)

	perSecond, burst, _ := config.ParseRateLimit(settings.RateLimit)
	routes.RegisterRoutes(r, routes.Deps{
		JWT: middleware.JWTConfig{
			Secret:   settings.SupabaseJWTSecret,
			Issuer:   settings.SupabaseJWTIssuer,
			Audience: settings.SupabaseJWTAudience,
		},
		AdminChecker: userSvc,
		RateLimiter:  middleware.NewIPRateLimiter(perSecond, burst),
		Health: handlers.NewHealthHandler(settings.AppName, map[string]handlers.Pinger{
			"postgres": func(ctx context.Context) error {
				sqlDB, err := config.PostgresDB.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return config.RedisClient.Ping(ctx).Err() },
			"mongo": func(ctx context.Context) error { return config.MongoClient.Ping(ctx, nil) },
		}),
		Auth:    handlers.NewAuthHandler(authSvc),
		Users:   handlers.NewUserHandler(userSvc, statsSvc),
		Admin:   handlers.NewAdminHandler(adminSvc, statsSvc),
		Billing: billingHandler,
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{"port": settings.Port, "environment": settings.Environment}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = config.MongoClient.Disconnect(shutdownCtx)
	_ = config.RedisClient.Close()
}

// corsOrigins falls back to the frontend URL, or any origin outside
// production.
func corsOrigins(s config.Settings) []string {
	if len(s.CORSOrigins) > 0 {
		return s.CORSOrigins
	}
	if s.IsProduction() {
		return []string{s.AppURL}
	}
	return []string{"*"}
}
