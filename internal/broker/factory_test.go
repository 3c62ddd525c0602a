package broker

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/config"
	"sieve/internal/logger"
	"sieve/pkg/errors"
)

func TestFactory(t *testing.T) {
	cfg := config.BrokerConfig{
		Type:  TypeKafka,
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g", DLQTopic: "dlq"},
	}

	producer, err := NewProducer(cfg, logger.NopLogger())
	require.NoError(t, err)
	assert.IsType(t, &KafkaProducer{}, producer)

	consumer, err := NewConsumer(cfg, logger.NopLogger(), WithGroupID(""))
	require.NoError(t, err)
	kc, ok := consumer.(*KafkaConsumer)
	require.True(t, ok)
	assert.Equal(t, "", kc.groupID)
	assert.NotNil(t, kc.dlqProducer)

	_, err = NewProducer(config.BrokerConfig{Type: "rabbitmq"}, logger.NopLogger())
	assert.Error(t, err)
	_, err = NewConsumer(config.BrokerConfig{Type: "rabbitmq"}, logger.NopLogger())
	assert.Error(t, err)
}

func TestDLQReason(t *testing.T) {
	assert.Equal(t, "fatal", dlqReason(errors.ErrValidation.WithCause(stderrors.New("bad"))))
	assert.Equal(t, "max_retries_exceeded", dlqReason(stderrors.New("timeout")))
}

func TestNewKafkaConsumer_DLQProducer(t *testing.T) {
	c := NewKafkaConsumer(config.KafkaConfig{GroupID: "g"}, logger.NopLogger())
	assert.Nil(t, c.dlqProducer)
	assert.Equal(t, "g", c.groupID)
}
