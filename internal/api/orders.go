package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// IdempotencyKeyHeader — заголовок, по которому повторная доставка распознаётся как дубликат.
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var ordersReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "foodies_api_orders_received_total",
	Help: "Total number of POST /api/orders requests grouped by result.",
}, []string{"result"})

// OrdersHandler принимает заказы, синхронизируемые клиентами.
type OrdersHandler struct {
	repo      domain.ReceivedOrderRepository
	publisher domain.OrderEventPublisher
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// NewOrdersHandler создаёт обработчик. publisher может быть nil.
func NewOrdersHandler(repo domain.ReceivedOrderRepository, publisher domain.OrderEventPublisher, logger *log.Entry) *OrdersHandler {
	if logger == nil {
		logger = log.WithField("component", "order-api")
	}
	return &OrdersHandler{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Register добавляет маршруты /api/orders.
func (h *OrdersHandler) Register(r *mux.Router) {
	orders := r.PathPrefix("/api/orders").Subrouter()
	orders.HandleFunc("", h.create).Methods(http.MethodPost)
	orders.HandleFunc("", h.list).Methods(http.MethodGet)
	orders.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
}

type createResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type receivedOrderView struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ClientOrderID  int64           `json:"client_order_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	ReceivedAt     time.Time       `json:"received_at"`
}

func viewOf(order domain.ReceivedOrder) receivedOrderView {
	return receivedOrderView{
		ID:             order.ID,
		IdempotencyKey: order.IdempotencyKey,
		ClientOrderID:  order.ClientOrderID,
		Payload:        order.Payload,
		ReceivedAt:     order.ReceivedAt.UTC(),
	}
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	payload, err := readObject(r)
	if err != nil {
		ordersReceived.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Order body must be a JSON object", err)
		return
	}

	id := h.newID()
	key, clientID := orderRefs(r, payload)
	if key == "" {
		// без ключа заказ всегда новый
		key = id
	}

	saved, created, err := h.repo.Save(r.Context(), domain.ReceivedOrder{
		ID:             id,
		IdempotencyKey: key,
		ClientOrderID:  clientID,
		Payload:        payload,
		ReceivedAt:     h.now().UTC(),
	})
	if err != nil {
		ordersReceived.WithLabelValues("error").Inc()
		h.logger.WithError(err).Error("failed to save received order")
		writeError(w, statusFor(err), "Failed to save order", err)
		return
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id":        saved.ID,
		"idempotency_key": saved.IdempotencyKey,
	})
	if !created {
		ordersReceived.WithLabelValues("duplicate").Inc()
		logger.Info("duplicate order delivery acknowledged")
		writeJSON(w, http.StatusOK, createResponse{ID: saved.ID, Duplicate: true})
		return
	}

	ordersReceived.WithLabelValues("created").Inc()
	logger.Info("order received")
	if h.publisher != nil {
		if err := h.publisher.PublishOrderReceived(saved); err != nil {
			logger.WithError(err).Warn("failed to publish order.received event")
		}
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: saved.ID})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxListLimit)
	}

	orders, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to list received orders")
		writeError(w, statusFor(err), "Failed to list orders", err)
		return
	}

	views := make([]receivedOrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, viewOf(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), "Order not available", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(order))
}

// orderRefs извлекает ключ идемпотентности и локальный id клиента.
// Поля опциональны: при несовпадении типов заказ принимается без них.
func orderRefs(r *http.Request, payload json.RawMessage) (string, int64) {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(payload, &fields)

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		var ref string
		if json.Unmarshal(fields["client_ref"], &ref) == nil {
			key = strings.TrimSpace(ref)
		}
	}

	var clientID int64
	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &clientID)
	}
	return key, clientID
}
