package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderStatus описывает состояние доставки локального заказа на сервер.
type OrderStatus string

const (
	// OrderStatusPending — заказ сохранён локально, сервер его ещё не подтвердил.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusSynced — сервер подтвердил приём заказа.
	OrderStatusSynced OrderStatus = "synced"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusSynced:
		return true
	default:
		return false
	}
}

// Зарезервированные поля записи; одноимённые ключи payload перекрываются ими.
const (
	fieldID        = "id"
	fieldTimestamp = "timestamp"
	fieldStatus    = "status"
	fieldSynced    = "synced"
	fieldClientRef = "client_ref"
)

// OrderPayload содержит произвольные данные заказа от страницы.
type OrderPayload map[string]any

// Clone возвращает глубокую копию payload, чтобы снимки не разделяли вложенные map/slice.
func (p OrderPayload) Clone() OrderPayload {
	if p == nil {
		return nil
	}
	out := make(OrderPayload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, nested := range typed {
			out[k] = cloneValue(nested)
		}
		return out
	case OrderPayload:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i, nested := range typed {
			out[i] = cloneValue(nested)
		}
		return out
	default:
		return v
	}
}

// OrderRecord описывает заказ в локальном хранилище.
type OrderRecord struct {
	// ID назначается хранилищем, монотонно растёт и не меняется после записи.
	ID int64
	// ClientRef — UUID записи, используется сервером как Idempotency-Key.
	ClientRef string
	Payload   OrderPayload
	// Timestamp хранит момент создания в миллисекундах Unix.
	Timestamp int64
	Status    OrderStatus
	// Synced дублирует Status == OrderStatusSynced.
	Synced bool
}

// NewPendingRecord собирает запись в статусе pending без идентификатора.
func NewPendingRecord(payload OrderPayload, clientRef string, now time.Time) OrderRecord {
	return OrderRecord{
		ClientRef: clientRef,
		Payload:   payload.Clone(),
		Timestamp: now.UnixMilli(),
		Status:    OrderStatusPending,
		Synced:    false,
	}
}

// CreatedAt возвращает Timestamp как time.Time.
func (r OrderRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// MarkSynced переводит запись pending -> synced. Обратный переход невозможен.
func (r *OrderRecord) MarkSynced() error {
	switch r.Status {
	case OrderStatusPending:
		r.Status = OrderStatusSynced
		r.Synced = true
		return nil
	case OrderStatusSynced:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
}

// Clone возвращает независимую копию записи.
func (r OrderRecord) Clone() OrderRecord {
	r.Payload = r.Payload.Clone()
	return r
}

// MarshalJSON раскладывает payload на верхний уровень:
// {...payload, id, timestamp, status, synced, client_ref}.
func (r OrderRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+5)
	for k, v := range r.Payload {
		flat[k] = v
	}
	if r.ID > 0 {
		flat[fieldID] = r.ID
	}
	flat[fieldTimestamp] = r.Timestamp
	flat[fieldStatus] = r.Status
	flat[fieldSynced] = r.Synced
	if r.ClientRef != "" {
		flat[fieldClientRef] = r.ClientRef
	}
	return json.Marshal(flat)
}

// UnmarshalJSON выполняет обратное преобразование плоского JSON в запись.
func (r *OrderRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decode order record: %w", err)
	}

	var out OrderRecord
	if raw, ok := flat[fieldID]; ok {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return fmt.Errorf("decode order id: %w", err)
		}
	}
	if raw, ok := flat[fieldTimestamp]; ok {
		if err := json.Unmarshal(raw, &out.Timestamp); err != nil {
			return fmt.Errorf("decode order timestamp: %w", err)
		}
	}
	if raw, ok := flat[fieldStatus]; ok {
		if err := json.Unmarshal(raw, &out.Status); err != nil {
			return fmt.Errorf("decode order status: %w", err)
		}
	}
	if raw, ok := flat[fieldSynced]; ok {
		if err := json.Unmarshal(raw, &out.Synced); err != nil {
			return fmt.Errorf("decode order synced flag: %w", err)
		}
	}
	if raw, ok := flat[fieldClientRef]; ok {
		if err := json.Unmarshal(raw, &out.ClientRef); err != nil {
			return fmt.Errorf("decode order client_ref: %w", err)
		}
	}

	out.Payload = make(OrderPayload, len(flat))
	for k, raw := range flat {
		switch k {
		case fieldID, fieldTimestamp, fieldStatus, fieldSynced, fieldClientRef:
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode order field %q: %w", k, err)
		}
		out.Payload[k] = v
	}

	*r = out
	return nil
}

// ReceivedOrder описывает заказ, принятый order-api.
type ReceivedOrder struct {
	ID string
	// IdempotencyKey берётся из заголовка Idempotency-Key или поля client_ref.
	IdempotencyKey string
	// ClientOrderID — локальный id заказа на стороне клиента (если передан).
	ClientOrderID int64
	Payload       json.RawMessage
	ReceivedAt    time.Time
}
