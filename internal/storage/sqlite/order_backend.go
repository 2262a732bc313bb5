package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// OrderBackend хранит записи заказов в таблице orders с индексом по status.
type OrderBackend struct {
	store *Store
	// beforeCommit вызывается перед фиксацией пишущей транзакции (тесты имитируют abort).
	beforeCommit func(op string) error
}

// NewOrderBackend создаёт domain.OrderBackend поверх открытого Store.
func NewOrderBackend(store *Store) *OrderBackend {
	return &OrderBackend{store: store}
}

// Add сохраняет запись в статусе, переданном вызывающим, и возвращает назначенный id.
func (b *OrderBackend) Add(ctx context.Context, record domain.OrderRecord) (int64, error) {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return 0, fmt.Errorf("%w: encode payload: %w", domain.ErrWrite, err)
	}

	var id int64
	err = b.withTx(ctx, "add", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders (client_ref, payload, created_at_ms, status, synced)
			VALUES (?, ?, ?, ?, ?)
		`, record.ClientRef, string(payload), record.Timestamp, string(record.Status), record.Synced)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// List возвращает снимок всех записей по возрастанию id.
func (b *OrderBackend) List(ctx context.Context) ([]domain.OrderRecord, error) {
	return b.query(ctx, `
		SELECT id, client_ref, payload, created_at_ms, status, synced
		FROM orders
		ORDER BY id
	`)
}

// ListByStatus читает записи через idx_orders_status.
func (b *OrderBackend) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.OrderRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrRead, domain.ErrInvalidStatus, status)
	}
	return b.query(ctx, `
		SELECT id, client_ref, payload, created_at_ms, status, synced
		FROM orders INDEXED BY idx_orders_status
		WHERE status = ?
		ORDER BY id
	`, string(status))
}

// MarkSynced переводит запись в synced; synced-записи не возвращаются в pending.
func (b *OrderBackend) MarkSynced(ctx context.Context, id int64) error {
	return b.withTx(ctx, "mark_synced", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = ?, synced = 1
			WHERE id = ?
		`, string(domain.OrderStatusSynced), id)
		if err != nil {
			return fmt.Errorf("update order %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for order %d: %w", id, err)
		}
		if affected == 0 {
			return domain.ErrOrderNotFound
		}
		return nil
	})
}

// Clear удаляет все записи одной транзакцией. Счётчик id не сбрасывается.
func (b *OrderBackend) Clear(ctx context.Context) error {
	return b.withTx(ctx, "clear", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		return nil
	})
}

// Close закрывает базу.
func (b *OrderBackend) Close() error {
	return b.store.Close()
}

func (b *OrderBackend) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := b.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin %s tx: %w", domain.ErrWrite, op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	if b.beforeCommit != nil {
		if err = b.beforeCommit(op); err != nil {
			return fmt.Errorf("%w: %s aborted: %w", domain.ErrWrite, op, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", domain.ErrWrite, op, err)
	}
	return nil
}

func (b *OrderBackend) query(ctx context.Context, query string, args ...any) ([]domain.OrderRecord, error) {
	tx, err := b.store.DB().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: begin read tx: %w", domain.ErrRead, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query orders: %w", domain.ErrRead, err)
	}
	defer rows.Close()

	result := make([]domain.OrderRecord, 0)
	for rows.Next() {
		var (
			rec     domain.OrderRecord
			payload string
			status  string
		)
		if err := rows.Scan(&rec.ID, &rec.ClientRef, &payload, &rec.Timestamp, &status, &rec.Synced); err != nil {
			return nil, fmt.Errorf("%w: scan order: %w", domain.ErrRead, err)
		}
		rec.Status = domain.OrderStatus(status)
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("%w: order %d: %w: %q", domain.ErrRead, rec.ID, domain.ErrInvalidStatus, status)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("%w: decode payload of order %d: %w", domain.ErrRead, rec.ID, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate orders: %w", domain.ErrRead, err)
	}

	return result, nil
}

var _ domain.OrderBackend = (*OrderBackend)(nil)
