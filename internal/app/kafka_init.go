package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/messaging/kafka"
)

var newKafkaProducer = kafka.NewProducer

// orderEvents — публикация order.received; нулевое значение означает "Kafka выключена".
type orderEvents struct {
	publisher domain.OrderEventPublisher
	producer  *kafka.Producer
}

// splitBrokers разбирает список брокеров через запятую.
func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// initOrderEvents подключает продюсер, если заданы брокеры. Недоступная Kafka
// не останавливает order-api: заказы принимаются, события не публикуются.
func initOrderEvents(cfg ServerConfig, logger *log.Entry) orderEvents {
	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Debug("kafka brokers are not set, order events disabled")
		return orderEvents{}
	}

	producer, err := newKafkaProducer(brokers,
		kafka.WithClientID("foodies-order-api"),
		kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")),
	)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka is unavailable, order events disabled")
		return orderEvents{}
	}

	logger.WithFields(log.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("order events are published to kafka")
	return orderEvents{
		publisher: kafka.NewOrderReceivedPublisher(producer, cfg.KafkaTopic),
		producer:  producer,
	}
}

func (e orderEvents) close(logger *log.Entry) {
	if e.producer == nil {
		return
	}
	if err := e.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
