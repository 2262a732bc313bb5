package domain

import "context"

// OrderBackend хранит записи заказов транзакционно.
// Каждая операция выполняется в собственной транзакции; при ошибке изменений не остаётся.
type OrderBackend interface {
	// Add назначает новый id, сохраняет запись и возвращает id.
	Add(ctx context.Context, record OrderRecord) (int64, error)
	// List возвращает снимок всех записей по возрастанию id.
	List(ctx context.Context) ([]OrderRecord, error)
	// ListByStatus читает записи через вторичный индекс по статусу.
	ListByStatus(ctx context.Context, status OrderStatus) ([]OrderRecord, error)
	// MarkSynced переводит запись в synced отдельной транзакцией.
	MarkSynced(ctx context.Context, id int64) error
	// Clear атомарно удаляет все записи.
	Clear(ctx context.Context) error
	Close() error
}

// OrderSender доставляет заказ на удалённый эндпоинт.
type OrderSender interface {
	// Deliver возвращает nil только при подтверждённом приёме (2xx).
	Deliver(ctx context.Context, record OrderRecord) error
}

// CacheStorage хранит именованные поколения кеша (request-key -> response).
type CacheStorage interface {
	// Names возвращает имена поколений в порядке создания.
	Names(ctx context.Context) ([]string, error)
	// Delete удаляет поколение целиком; false, если его не было.
	Delete(ctx context.Context, name string) (bool, error)
	// Match ищет ключ во всех поколениях в порядке их создания.
	Match(ctx context.Context, key string) (CachedResponse, bool, error)
	// MatchIn ищет ключ в конкретном поколении.
	MatchIn(ctx context.Context, name, key string) (CachedResponse, bool, error)
	// Put сохраняет одну запись, создавая поколение при первой записи.
	Put(ctx context.Context, name, key string, resp CachedResponse) error
	// PutAll атомарно сохраняет весь набор: либо все записи, либо ни одной.
	PutAll(ctx context.Context, name string, entries map[string]CachedResponse) error
}
