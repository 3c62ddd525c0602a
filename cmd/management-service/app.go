package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"sieve/internal/broker"
	"sieve/internal/config"
	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/internal/management"
	"sieve/pkg/bootstrap"
	"sieve/pkg/health"
	"sieve/pkg/metrics"
	"sieve/pkg/middleware"
	"sieve/pkg/ratelimit"
	"sieve/pkg/tracing"
)

const serviceName = "management-service"

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	storage        *bootstrap.Storage
	producer       broker.Producer
	rateLimits     *ratelimit.Store
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterManagementMetrics()

	tp, err := tracing.Init(a.config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	storage, err := a.dbConnector.OpenStorage(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = storage

	svc, err := a.newService(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	a.initRouter(svc)
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}

	return nil
}

func (a *App) newService(ctx context.Context) (management.Service, error) {
	var repo management.Repository
	if a.storage.Mongo != nil {
		repo = management.NewMongoRepository(a.storage.Mongo)
	} else {
		repo = management.NewRepository(a.storage.Postgres)
	}

	opts := []management.ServiceOption{management.WithLogger(a.logger)}

	if a.storage.Postgres != nil {
		opts = append(opts, management.WithVersioning(management.NewVersioningRepository(a.storage.Postgres)))
	} else {
		a.logger.WarnwCtx(ctx, "PostgreSQL not configured, versioning and audit disabled")
	}

	if topic := a.config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create config event producer, config events will be disabled", "error", err)
		} else {
			a.producer = producer
			opts = append(opts, management.WithConfigEvents(management.NewConfigEventProducer(producer, topic)))
			a.logger.InfowCtx(ctx, "Config event producer initialized", "topic", topic)
		}
	}

	return management.NewService(repo, opts...)
}

func (a *App) initRouter(svc management.Service) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName, "/health", "/metrics"))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.logger, "/health", "/metrics"))
	router.Use(middleware.RecoveryMiddleware(a.logger))

	healthRegistry := health.NewCheckerRegistry()
	a.storage.HealthCheckers(healthRegistry)
	router.GET("/health", gin.WrapH(healthRegistry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("")
	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.config.Management.RateLimit)
		a.rateLimits = ratelimit.NewStore(rateLimitConfig)
		api.Use(ratelimit.Middleware(a.rateLimits))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	management.NewHandler(svc, a.logger).RegisterRoutes(api)

	a.router = router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.rateLimits != nil {
		g.Go(func() error {
			a.rateLimits.RunCleanup(gCtx)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down management service")

	var errs []error

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.Shutdown(ctx, a.storage)...)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
