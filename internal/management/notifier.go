package management

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sieve/internal/broker"
	"sieve/pkg/models"
)

const eventSource = "management-service"

type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *ConfigEventProducer) PublishFilterSetEvent(ctx context.Context, action, filterSetID, changedBy string) error {
	event := models.ConfigUpdateEvent{
		EventType:   models.EventTypeFilterSetUpdated,
		ServiceType: models.ServiceTypeFiltering,
		FilterSetID: filterSetID,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		ChangedBy:   changedBy,
	}
	return p.publishEvent(ctx, event)
}

func (p *ConfigEventProducer) publishEvent(ctx context.Context, event models.ConfigUpdateEvent) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}

	envelope, err := event.Envelope(uuid.New().String(), eventSource)
	if err != nil {
		return err
	}

	return p.producer.Publish(ctx, p.topic, envelope)
}
