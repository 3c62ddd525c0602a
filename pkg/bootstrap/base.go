// Package bootstrap holds the wiring shared by the service binaries: broker
// clients, storage backends and ordered shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"sieve/internal/broker"
	"sieve/internal/config"
	"sieve/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the producer and the input consumer for serviceName.
func (b *Base) InitBroker(serviceName string, opts ...broker.ConsumerOption) error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	if named, ok := producer.(interface{ SetServiceName(string) }); ok {
		named.SetServiceName(serviceName)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger, opts...)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	consumer.SetServiceName(serviceName)

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

// Shutdown stops the broker first so no message is handled against closed
// storage, then runs additionalShutdown.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Stopping broker clients")

	errs := b.ShutdownBroker()
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	b.Logger.InfowCtx(ctx, "Shutdown complete")
	return nil
}
