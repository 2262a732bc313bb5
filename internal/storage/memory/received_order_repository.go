package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// receivedOrderRepositoryInMemory хранит принятые заказы в памяти.
type receivedOrderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ReceivedOrder
	byKey map[string]string
}

// NewReceivedOrderRepository возвращает in-memory репозиторий принятых заказов.
func NewReceivedOrderRepository() domain.ReceivedOrderRepository {
	return &receivedOrderRepositoryInMemory{
		items: make(map[string]domain.ReceivedOrder),
		byKey: make(map[string]string),
	}
}

func (r *receivedOrderRepositoryInMemory) Save(_ context.Context, order domain.ReceivedOrder) (domain.ReceivedOrder, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[order.IdempotencyKey]; ok {
		return cloneReceived(r.items[id]), false, nil
	}
	r.items[order.ID] = cloneReceived(order)
	r.byKey[order.IdempotencyKey] = order.ID
	return cloneReceived(order), true, nil
}

func (r *receivedOrderRepositoryInMemory) Get(_ context.Context, id string) (domain.ReceivedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ReceivedOrder{}, domain.ErrOrderNotFound
	}
	return cloneReceived(order), nil
}

func (r *receivedOrderRepositoryInMemory) ListRecent(_ context.Context, limit int) ([]domain.ReceivedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReceivedOrder, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, cloneReceived(order))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ReceivedAt.After(result[j].ReceivedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *receivedOrderRepositoryInMemory) DeleteReceivedBefore(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.ReceivedOrder, 0)
	for _, order := range r.items {
		if order.ReceivedAt.Before(before) {
			expired = append(expired, order)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ReceivedAt.Before(expired[j].ReceivedAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, order := range expired {
		delete(r.items, order.ID)
		delete(r.byKey, order.IdempotencyKey)
	}
	return len(expired), nil
}

func cloneReceived(order domain.ReceivedOrder) domain.ReceivedOrder {
	if order.Payload != nil {
		order.Payload = append([]byte(nil), order.Payload...)
	}
	return order
}

var _ domain.ReceivedOrderRepository = (*receivedOrderRepositoryInMemory)(nil)
