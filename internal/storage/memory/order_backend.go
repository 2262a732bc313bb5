// Package memory содержит in-memory реализации хранилищ для локальной разработки и тестов.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// OrderBackend реализует domain.OrderBackend в памяти.
type OrderBackend struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.OrderRecord
	failOn map[string]error
	closed bool
}

// NewOrderBackend создаёт пустое хранилище заказов.
func NewOrderBackend() *OrderBackend {
	return &OrderBackend{
		items:  make(map[int64]domain.OrderRecord),
		failOn: make(map[string]error),
	}
}

// FailOn заставляет операцию op ("add", "list", "mark_synced", "clear") завершаться ошибкой
// до внесения изменений. err == nil снимает сбой.
func (b *OrderBackend) FailOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.failOn, op)
		return
	}
	b.failOn[op] = err
}

// Add сохраняет копию записи под следующим id.
func (b *OrderBackend) Add(_ context.Context, record domain.OrderRecord) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check("add", domain.ErrWrite); err != nil {
		return 0, err
	}

	b.nextID++
	record = record.Clone()
	record.ID = b.nextID
	b.items[record.ID] = record
	return record.ID, nil
}

// List возвращает копии всех записей по возрастанию id.
func (b *OrderBackend) List(_ context.Context) ([]domain.OrderRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.check("list", domain.ErrRead); err != nil {
		return nil, err
	}
	return b.snapshot(func(domain.OrderRecord) bool { return true }), nil
}

// ListByStatus возвращает записи с указанным статусом.
func (b *OrderBackend) ListByStatus(_ context.Context, status domain.OrderStatus) ([]domain.OrderRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.check("list", domain.ErrRead); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrRead, domain.ErrInvalidStatus, status)
	}
	return b.snapshot(func(r domain.OrderRecord) bool { return r.Status == status }), nil
}

// MarkSynced переводит запись в synced.
func (b *OrderBackend) MarkSynced(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check("mark_synced", domain.ErrWrite); err != nil {
		return err
	}

	record, ok := b.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if err := record.MarkSynced(); err != nil {
		return err
	}
	b.items[id] = record
	return nil
}

// Clear удаляет все записи; id продолжают расти.
func (b *OrderBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check("clear", domain.ErrWrite); err != nil {
		return err
	}
	b.items = make(map[int64]domain.OrderRecord)
	return nil
}

// Close помечает хранилище закрытым.
func (b *OrderBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}

func (b *OrderBackend) check(op string, kind error) error {
	if b.closed {
		return errors.Join(kind, errors.New("order backend is closed"))
	}
	if err, ok := b.failOn[op]; ok {
		return errors.Join(kind, err)
	}
	return nil
}

func (b *OrderBackend) snapshot(keep func(domain.OrderRecord) bool) []domain.OrderRecord {
	result := make([]domain.OrderRecord, 0, len(b.items))
	for _, record := range b.items {
		if keep(record) {
			result = append(result, record.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

var _ domain.OrderBackend = (*OrderBackend)(nil)
