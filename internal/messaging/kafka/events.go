package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// EventType определяет тип события
type EventType string

// EventTypeOrderReceived публикуется, когда order-api принял заказ.
const EventTypeOrderReceived EventType = "order.received"

// Topics для Kafka
const (
	TopicOrderEvents     = "foodies.order.events"
	TopicDeadLetterQueue = "foodies.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderReceivedEvent публикуется после сохранения принятого заказа.
type OrderReceivedEvent struct {
	EventType      EventType       `json:"event_type"`
	OrderID        string          `json:"order_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ClientOrderID  int64           `json:"client_order_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	ReceivedAt     time.Time       `json:"received_at"`
	PublishedAt    time.Time       `json:"published_at"`
}

// DeadLetter оборачивает сообщение, отправленное в DLQ после исчерпания попыток.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key,omitempty"`
	OriginalValue     string `json:"original_value"`
}

// NewOrderReceivedEvent создаёт событие по принятому заказу.
func NewOrderReceivedEvent(order domain.ReceivedOrder, now time.Time) *OrderReceivedEvent {
	payload := order.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &OrderReceivedEvent{
		EventType:      EventTypeOrderReceived,
		OrderID:        order.ID,
		IdempotencyKey: order.IdempotencyKey,
		ClientOrderID:  order.ClientOrderID,
		Payload:        payload,
		ReceivedAt:     order.ReceivedAt.UTC(),
		PublishedAt:    now.UTC(),
	}
}
