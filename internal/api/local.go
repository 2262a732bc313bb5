package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/cachemgr"
	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/service/ordersync"
)

// LocalOrders открывает странице операции хранилища заказов.
type LocalOrders interface {
	AddEntry(ctx context.Context, payload domain.OrderPayload) (int64, error)
	ListEntries(ctx context.Context) ([]domain.OrderRecord, error)
	ClearAll(ctx context.Context) error
}

// SyncRunner запускает синхронизацию.
type SyncRunner interface {
	Sync(ctx context.Context) (ordersync.Result, error)
	Trigger()
}

// ConnectivitySwitch позволяет переключать сигнал связности вручную.
type ConnectivitySwitch interface {
	Online() bool
	Set(online bool) bool
}

// Lifecycle управляет менеджером кеша через Dispatcher.
type Lifecycle interface {
	State() cachemgr.State
	Dispatch(ctx context.Context, event cachemgr.Event) *cachemgr.Future
}

// LocalHandler обслуживает /local/* для страниц на клиенте.
type LocalHandler struct {
	orders    LocalOrders
	sync      SyncRunner
	signal    ConnectivitySwitch
	lifecycle Lifecycle
	logger    *log.Entry
}

// NewLocalHandler создаёт обработчик.
func NewLocalHandler(orders LocalOrders, sync SyncRunner, signal ConnectivitySwitch, lifecycle Lifecycle, logger *log.Entry) *LocalHandler {
	if logger == nil {
		logger = log.WithField("component", "local-api")
	}
	return &LocalHandler{
		orders:    orders,
		sync:      sync,
		signal:    signal,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Register добавляет маршруты /local/*.
func (h *LocalHandler) Register(r *mux.Router) {
	local := r.PathPrefix("/local").Subrouter()
	local.HandleFunc("/orders", h.addOrder).Methods(http.MethodPost)
	local.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	local.HandleFunc("/orders", h.clearOrders).Methods(http.MethodDelete)
	local.HandleFunc("/sync", h.runSync).Methods(http.MethodPost)
	local.HandleFunc("/connectivity", h.getConnectivity).Methods(http.MethodGet)
	local.HandleFunc("/connectivity", h.setConnectivity).Methods(http.MethodPut)
	local.HandleFunc("/lifecycle", h.getLifecycle).Methods(http.MethodGet)
	local.HandleFunc("/lifecycle", h.lifecycleAction).Methods(http.MethodPost)
}

func (h *LocalHandler) addOrder(w http.ResponseWriter, r *http.Request) {
	raw, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Order body must be a JSON object", err)
		return
	}
	var payload domain.OrderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Order body must be a JSON object", err)
		return
	}

	id, err := h.orders.AddEntry(r.Context(), payload)
	if err != nil {
		h.logger.WithError(err).Warn("failed to add order")
		writeError(w, statusFor(err), "Failed to save order", err)
		return
	}

	if h.signal.Online() {
		h.sync.Trigger()
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *LocalHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	records, err := h.orders.ListEntries(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("failed to list orders")
		writeError(w, statusFor(err), "Failed to read orders", err)
		return
	}
	if records == nil {
		records = []domain.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *LocalHandler) clearOrders(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.ClearAll(r.Context()); err != nil {
		h.logger.WithError(err).Warn("failed to clear orders")
		writeError(w, statusFor(err), "Failed to clear orders", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncResponse struct {
	Skipped   bool `json:"skipped"`
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
}

func (h *LocalHandler) runSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Sync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "Sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Skipped:   result.Skipped,
		Attempted: result.Attempted,
		Synced:    result.Synced,
		Failed:    result.Failed,
	})
}

type connectivityBody struct {
	Online *bool `json:"online"`
}

func (h *LocalHandler) getConnectivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.signal.Online()})
}

func (h *LocalHandler) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var body connectivityBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Online == nil {
		writeError(w, http.StatusBadRequest, `Body must be {"online": true|false}`, err)
		return
	}

	changed := h.signal.Set(*body.Online)
	h.logger.WithFields(log.Fields{
		"online":  *body.Online,
		"changed": changed,
	}).Info("connectivity overridden")
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.signal.Online(), "changed": changed})
}

func (h *LocalHandler) getLifecycle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]cachemgr.State{"state": h.lifecycle.State()})
}

func (h *LocalHandler) lifecycleAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lifecycle message", err)
		return
	}
	if body.Action != "skipWaiting" {
		writeError(w, http.StatusBadRequest, "Unsupported lifecycle action", errors.New(body.Action))
		return
	}

	outcome, err := h.lifecycle.Dispatch(r.Context(), cachemgr.Event{Kind: cachemgr.EventSkipWaiting}).Wait(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "Skip waiting failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]cachemgr.State{"state": outcome.State})
}
