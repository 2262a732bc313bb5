package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultProducerClientID = "foodies-order-api"

// Producer синхронно пишет JSON-события order-api и DLQ-конверты.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

type producerOptions struct {
	clientID string
	logger   *log.Entry
}

// ProducerOption настраивает Producer.
type ProducerOption func(*producerOptions)

// WithClientID задаёт client.id, под которым продюсер виден брокеру.
func WithClientID(id string) ProducerOption {
	return func(o *producerOptions) {
		if id != "" {
			o.clientID = id
		}
	}
}

// WithProducerLogger подменяет логгер продюсера.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(o *producerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildProducerOptions(opts []ProducerOption) producerOptions {
	o := producerOptions{
		clientID: defaultProducerClientID,
		logger:   log.WithField("component", "kafka-producer"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewProducer подключается к брокерам. Доставка идемпотентна: acks=all, одна
// in-flight пачка на соединение.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	o := buildProducerOptions(opts)

	config := sarama.NewConfig()
	config.ClientID = o.clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer for %v: %w", brokers, err)
	}
	return NewProducerFrom(producer, opts...), nil
}

// NewProducerFrom оборачивает готовый sarama.SyncProducer, например mocks.SyncProducer.
func NewProducerFrom(producer sarama.SyncProducer, opts ...ProducerOption) *Producer {
	o := buildProducerOptions(opts)
	return &Producer{producer: producer, logger: o.logger, now: time.Now}
}

// PublishEvent сериализует event в JSON и отправляет с ключом key.
func (p *Producer) PublishEvent(topic, key string, event any, headers ...sarama.RecordHeader) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %T for %s: %w", event, topic, err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.now(),
	})
	fields := log.Fields{"topic": topic, "key": key}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka publish failed")
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka event published")
	return nil
}

// Close дожидается отправки буфера и закрывает соединения.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}
