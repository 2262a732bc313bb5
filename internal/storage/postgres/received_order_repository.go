package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type receivedOrderRepository struct {
	db *sql.DB
}

// NewReceivedOrderRepository создаёт PostgreSQL-реализацию ReceivedOrderRepository.
func NewReceivedOrderRepository(store *Store) domain.ReceivedOrderRepository {
	return &receivedOrderRepository{db: store.DB()}
}

// Save вставляет заказ; при повторе ключа идемпотентности возвращает ранее сохранённый.
func (r *receivedOrderRepository) Save(ctx context.Context, order domain.ReceivedOrder) (domain.ReceivedOrder, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO received_orders (id, idempotency_key, client_order_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, order.ID, order.IdempotencyKey, order.ClientOrderID, []byte(order.Payload), order.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return r.byKey(ctx, order.IdempotencyKey)
		}
		return domain.ReceivedOrder{}, false, fmt.Errorf("insert received order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ReceivedOrder{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.byKey(ctx, order.IdempotencyKey)
	}

	return order, true, nil
}

func (r *receivedOrderRepository) byKey(ctx context.Context, key string) (domain.ReceivedOrder, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, client_order_id, payload, received_at
		FROM received_orders
		WHERE idempotency_key = $1
	`, key)
	order, err := scanReceivedOrder(row)
	if err != nil {
		return domain.ReceivedOrder{}, false, err
	}
	return order, false, nil
}

// Get возвращает заказ по id или ErrOrderNotFound.
func (r *receivedOrderRepository) Get(ctx context.Context, id string) (domain.ReceivedOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, client_order_id, payload, received_at
		FROM received_orders
		WHERE id = $1
	`, id)
	return scanReceivedOrder(row)
}

// ListRecent возвращает последние заказы, новые первыми.
func (r *receivedOrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.ReceivedOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, idempotency_key, client_order_id, payload, received_at
		FROM received_orders
		ORDER BY received_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list received orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.ReceivedOrder, 0)
	for rows.Next() {
		order, err := scanReceivedOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate received orders: %w", err)
	}

	return orders, nil
}

// DeleteReceivedBefore удаляет самые старые заказы порцией не больше limit.
func (r *receivedOrderRepository) DeleteReceivedBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, errors.New("delete limit must be > 0")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM received_orders
		WHERE id IN (
			SELECT id FROM received_orders
			WHERE received_at < $1
			ORDER BY received_at
			LIMIT $2
		)
	`, before.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired received orders: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceivedOrder(row rowScanner) (domain.ReceivedOrder, error) {
	var (
		order   domain.ReceivedOrder
		payload []byte
	)
	if err := row.Scan(&order.ID, &order.IdempotencyKey, &order.ClientOrderID, &payload, &order.ReceivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReceivedOrder{}, domain.ErrOrderNotFound
		}
		return domain.ReceivedOrder{}, fmt.Errorf("scan received order: %w", err)
	}
	order.Payload = payload
	order.ReceivedAt = order.ReceivedAt.UTC()
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ReceivedOrderRepository = (*receivedOrderRepository)(nil)
