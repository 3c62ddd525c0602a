//go:build integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/broker"
	"sieve/internal/config"
	"sieve/internal/logger"
	"sieve/internal/management"
	"sieve/internal/testinfra"
	"sieve/pkg/bootstrap"
	"sieve/pkg/models"
)

// TestPipeline creates a filter set through the management service and
// checks the running filtering service picks it up from the config event
// and forwards only matching messages.
func TestPipeline(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true, Kafka: true})
	suffix := uuid.NewString()[:8]
	input, output, configTopic := "in-"+suffix, "out-"+suffix, "config-"+suffix
	infra.CreateTopics(t, input, output, configTopic)

	log := logger.NopLogger()
	cfg := &config.Config{
		Server: config.ServerConfig{ReadTimeoutSeconds: 5 * time.Second, WriteTimeoutSeconds: 5 * time.Second},
		Broker: config.BrokerConfig{
			Type: broker.TypeKafka,
			Kafka: config.KafkaConfig{
				Brokers:           infra.KafkaBrokers,
				GroupID:           "filtering-" + suffix,
				InputTopic:        input,
				OutputTopic:       output,
				ConfigUpdateTopic: configTopic,
				Retry:             config.RetryConfig{MaxAttempts: 1},
			},
		},
		Filtering: config.FilteringConfig{
			Reload:   config.ReloadConfig{IntervalSeconds: 3600},
			Fallback: config.FallbackConfig{OnError: "deny"},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app := NewApp(cfg, log)
	app.storage = &bootstrap.Storage{Postgres: infra.PostgresDB}
	require.NoError(t, app.initService(ctx))
	require.NoError(t, app.InitBroker(serviceName))
	configConsumer, err := broker.NewConsumer(cfg.Broker, log, broker.WithGroupID(""))
	require.NoError(t, err)
	app.configConsumer = configConsumer
	app.initHTTPServer()

	runCtx, stop := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(runCtx) }()
	t.Cleanup(func() {
		stop()
		err := <-runErr
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run: %v", err)
		}
		_ = app.Shutdown(context.Background())
	})

	// The config consumer starts at the latest offset; give it time to attach.
	time.Sleep(3 * time.Second)

	producer := broker.NewKafkaProducer(cfg.Broker.Kafka, log)
	t.Cleanup(func() { producer.Close() })

	svc, err := management.NewService(management.NewRepository(infra.PostgresDB),
		management.WithConfigEvents(management.NewConfigEventProducer(producer, configTopic)),
	)
	require.NoError(t, err)
	set, err := svc.CreateFilterSet(ctx, management.CreateFilterSetRequest{
		Name: "hot-prod",
		Filters: models.FilterList{
			models.NewStringFilter("env", "prod", false),
			models.NewMetricFilter("cpu", 80, models.ComparisonMore),
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ids := app.service.ActiveFilterSetIDs()
		return len(ids) == 1 && ids[0] == set.ID
	}, 30*time.Second, 200*time.Millisecond, "filter set was not loaded from the config event")

	hot := models.MessageEnvelope{
		ID:        "hot-" + suffix,
		Source:    "it",
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"env":     "prod-eu",
			"metrics": map[string]interface{}{"cpu": 93.0},
		},
	}
	cold := hot
	cold.ID = "cold-" + suffix
	cold.Payload = map[string]interface{}{
		"env":     "prod-eu",
		"metrics": map[string]interface{}{"cpu": 12.0},
	}
	require.NoError(t, producer.Publish(ctx, input, cold))
	require.NoError(t, producer.Publish(ctx, input, hot))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     infra.KafkaBrokers,
		Topic:       output,
		Partition:   0,
		StartOffset: kafka.FirstOffset,
		MaxWait:     200 * time.Millisecond,
	})
	defer reader.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
	defer fetchCancel()
	m, err := reader.ReadMessage(fetchCtx)
	require.NoError(t, err)

	var got models.MessageEnvelope
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, hot.ID, got.ID)
	require.NotNil(t, got.Metadata.FiltersApplied)
	assert.Equal(t, []string{set.ID}, got.Metadata.FiltersApplied.FilterSetIDs)

	quietCtx, quietCancel := context.WithTimeout(ctx, 3*time.Second)
	defer quietCancel()
	_, err = reader.ReadMessage(quietCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "rejected message reached the output topic")
}
