package kafka

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// OrderReceivedPublisher публикует order.received в заданный topic.
type OrderReceivedPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOrderReceivedPublisher создаёт паблишер. Пустой topic заменяется на TopicOrderEvents.
func NewOrderReceivedPublisher(producer *Producer, topic string) *OrderReceivedPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderReceivedPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// PublishOrderReceived публикует событие с ключом = id заказа.
func (p *OrderReceivedPublisher) PublishOrderReceived(order domain.ReceivedOrder) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka order publisher is not initialized")
	}

	event := NewOrderReceivedEvent(order, p.now())
	return p.producer.PublishEvent(p.topic, order.ID, event, header(HeaderEventType, string(EventTypeOrderReceived)))
}

var _ domain.OrderEventPublisher = (*OrderReceivedPublisher)(nil)
