package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/messaging/kafka"
)

func stubKafkaProducer(t *testing.T, fn func(brokers []string, opts ...kafka.ProducerOption) (*kafka.Producer, error)) {
	t.Helper()
	prev := newKafkaProducer
	newKafkaProducer = fn
	t.Cleanup(func() { newKafkaProducer = prev })
}

func TestInitOrderEventsWithoutBrokersIsDisabled(t *testing.T) {
	stubKafkaProducer(t, func([]string, ...kafka.ProducerOption) (*kafka.Producer, error) {
		t.Fatal("producer must not be created without brokers")
		return nil, nil
	})

	cfg := DefaultServerConfig()
	cfg.KafkaBrokers = " , "
	events := initOrderEvents(cfg, testEntry())

	assert.Nil(t, events.publisher)
	assert.NotPanics(t, func() { events.close(testEntry()) })
}

func TestInitOrderEventsKeepsServingWhenKafkaIsDown(t *testing.T) {
	var gotBrokers []string
	stubKafkaProducer(t, func(brokers []string, _ ...kafka.ProducerOption) (*kafka.Producer, error) {
		gotBrokers = brokers
		return nil, errors.New("kafka: client has run out of available brokers")
	})

	cfg := DefaultServerConfig()
	cfg.KafkaBrokers = "broker1:9092, broker2:9092"
	events := initOrderEvents(cfg, testEntry())

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, gotBrokers)
	assert.Nil(t, events.publisher, "a typed nil publisher would make the orders handler publish into nothing")
}

func TestInitOrderEventsPublishesReceivedOrdersToConfiguredTopic(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "foodies.test.orders" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		value, _ := msg.Value.Encode()
		var event kafka.OrderReceivedEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.OrderID != "order-7" || event.IdempotencyKey != "ref-7" {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})
	stubKafkaProducer(t, func(_ []string, opts ...kafka.ProducerOption) (*kafka.Producer, error) {
		return kafka.NewProducerFrom(mockProducer, opts...), nil
	})

	cfg := DefaultServerConfig()
	cfg.KafkaBrokers = "localhost:9092"
	cfg.KafkaTopic = "foodies.test.orders"
	events := initOrderEvents(cfg, testEntry())
	require.NotNil(t, events.publisher)

	err := events.publisher.PublishOrderReceived(domain.ReceivedOrder{
		ID:             "order-7",
		IdempotencyKey: "ref-7",
		Payload:        json.RawMessage(`{"item":"pho"}`),
		ReceivedAt:     time.Now(),
	})
	require.NoError(t, err)
	events.close(testEntry())
}

func TestSplitBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ,", nil},
		{"broker1:9092", []string{"broker1:9092"}},
		{"broker1:9092, broker2:9092 ,,broker3:9092", []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitBrokers(tt.in), "splitBrokers(%q)", tt.in)
	}
}
