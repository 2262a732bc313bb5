package domain

import (
	"context"
	"time"
)

// ReceivedOrderRepository хранит заказы, принятые удалённым эндпоинтом.
type ReceivedOrderRepository interface {
	// Save сохраняет заказ. Если IdempotencyKey уже встречался, возвращает
	// ранее сохранённый заказ и created=false.
	Save(ctx context.Context, order ReceivedOrder) (saved ReceivedOrder, created bool, err error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (ReceivedOrder, error)
	// ListRecent возвращает последние принятые заказы, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]ReceivedOrder, error)
	// DeleteReceivedBefore удаляет до limit заказов, принятых раньше before,
	// вместе с их ключами идемпотентности. Возвращает число удалённых.
	DeleteReceivedBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// OrderEventPublisher публикует события о принятых заказах.
type OrderEventPublisher interface {
	PublishOrderReceived(order ReceivedOrder) error
}
