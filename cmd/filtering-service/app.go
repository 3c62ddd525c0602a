package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sieve/internal/broker"
	"sieve/internal/config"
	"sieve/internal/constants"
	"sieve/internal/filtering"
	"sieve/internal/logger"
	"sieve/pkg/bootstrap"
	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/health"
	"sieve/pkg/logging"
	"sieve/pkg/metrics"
	"sieve/pkg/models"
	"sieve/pkg/tracing"
)

const serviceName = "filtering-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	storage        *bootstrap.Storage
	service        *filtering.Service
	cache          *filtering.CachedRepository
	breaker        *filtering.CircuitBreakerRepository
	configConsumer broker.Consumer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	now            func() time.Time
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		now:         time.Now,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterFilteringMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	storage, err := a.dbConnector.OpenStorage(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = storage

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		consumer, err := broker.NewConsumer(a.Config.Broker, a.Logger, broker.WithGroupID(a.Config.Broker.Kafka.ConfigGroupID))
		if err != nil {
			a.Logger.WarnwCtx(logging.WithServiceName(ctx, serviceName), "Failed to create config event consumer, event-driven reload disabled",
				"error", err,
			)
		} else {
			consumer.SetServiceName(serviceName)
			a.configConsumer = consumer
		}
	}

	a.initHTTPServer()
	return nil
}

// repository builds the read path: backend, then circuit breaker, then the
// optional Redis cache in front.
func (a *App) repository() filtering.Repository {
	var repo filtering.Repository
	if a.storage.Mongo != nil {
		repo = filtering.NewMongoRepository(a.storage.Mongo, a.Logger)
	} else {
		repo = filtering.NewRepository(a.storage.Postgres, a.Logger)
	}

	a.breaker = filtering.NewCircuitBreakerRepository("filter-set-store", repo, a.Config.CircuitBreaker)
	repo = a.breaker

	if a.storage.Redis != nil {
		ttl := time.Duration(a.Config.Database.Redis.TTLSeconds) * time.Second
		a.cache = filtering.NewCachedRepository(repo, a.storage.Redis, ttl, a.Logger)
		repo = a.cache
	}

	return repo
}

func (a *App) initService(ctx context.Context) error {
	svc, err := filtering.NewService(a.repository(), a.Config.Filtering, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create filtering service: %w", err)
	}

	if err := svc.ReloadFilterSets(ctx, true); err != nil {
		a.Logger.WarnwCtx(logging.WithServiceName(ctx, serviceName), "Failed to load initial filter sets",
			"error", err,
		)
	}

	a.service = svc
	return nil
}

func (a *App) initHTTPServer() {
	healthRegistry := health.NewCheckerRegistry()
	a.storage.HealthCheckers(healthRegistry)
	healthRegistry.RegisterOptional(health.CheckFunc("filter-set-store-breaker", func(context.Context) error {
		if a.breaker.IsOpen() {
			return errors.New("circuit breaker open")
		}
		return nil
	}))

	mux := http.NewServeMux()
	mux.Handle("/health", healthRegistry)
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.configConsumer != nil {
		configEventHandler := filtering.NewHandler(a.service, a.cache, a.Logger)
		topic := a.Config.Broker.Kafka.ConfigUpdateTopic
		g.Go(func() error {
			a.Logger.InfowCtx(logging.WithServiceName(gCtx, serviceName), "Starting config update event consumer",
				"topic", topic,
			)
			return a.configConsumer.Consume(gCtx, topic, configEventHandler.HandleConfigUpdateEvent)
		})
	}

	g.Go(func() error {
		return a.service.StartReloader(gCtx)
	})

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}
	g.Go(func() error {
		return a.Consumer.Consume(gCtx, inputTopic, a.handleMessage)
	})

	return g.Wait()
}

func (a *App) outputTopic() string {
	if t := a.Config.Broker.Kafka.OutputTopic; t != "" {
		return t
	}
	return constants.DefaultOutputTopic
}

// handleMessage forwards a passing message with metadata.filters_applied
// stamped. Rejected messages are dropped. Malformed envelopes fail as fatal
// and skip straight to the DLQ; other errors go back to the consumer for retry.
func (a *App) handleMessage(ctx context.Context, msg models.MessageEnvelope) error {
	if err := models.ValidateMessageEnvelope(&msg); err != nil {
		a.Logger.WarnwCtx(ctx, "Invalid message envelope", "error", err)
		return pkgerrors.ErrValidation.WithCause(err)
	}

	passed, appliedSets, err := a.service.Filter(ctx, msg)
	if err != nil {
		a.Logger.ErrorwCtx(ctx, "Filter error",
			"error", err,
		)
		return err
	}

	if !passed {
		a.Logger.DebugwCtx(ctx, "Message filtered out",
			"filter_sets_passed", len(appliedSets),
		)
		return nil
	}

	msg.Metadata.FiltersApplied = &models.FiltersApplied{
		PassedAt:     a.now().UTC(),
		FilterSetIDs: appliedSets,
	}

	outputTopic := a.outputTopic()
	if err := a.Producer.Publish(ctx, outputTopic, msg); err != nil {
		a.Logger.ErrorwCtx(ctx, "Failed to publish message",
			"error", err,
			"output_topic", outputTopic,
		)
		return err
	}

	a.Logger.DebugwCtx(ctx, "Message passed filtering",
		"filter_sets_applied", len(appliedSets),
	)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down filtering service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.configConsumer != nil {
			if err := a.configConsumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.Shutdown(ctx, a.storage)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
