// Package ordersync доставляет pending-заказы на удалённый эндпоинт и переводит их в synced.
package ordersync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/connectivity"
	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/metrics"
)

var syncDeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "foodies_sync_delivery_attempts_total",
	Help: "Total number of order delivery attempts grouped by result.",
}, []string{"result"})

// PendingStore отдаёт pending-заказы и отмечает доставленные.
type PendingStore interface {
	ListPending(ctx context.Context) ([]domain.OrderRecord, error)
	MarkSynced(ctx context.Context, id int64) error
}

// Signal сообщает о связности и её переходах.
type Signal interface {
	Online() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

// EngineOptions задаёт параметры Engine.
type EngineOptions struct {
	Logger   *log.Entry
	Notifier domain.Notifier
	Metrics  *metrics.SyncMetrics
	Now      func() time.Time
}

// Option настраивает Engine.
type Option func(*EngineOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithNotifier задаёт получателя уведомлений.
func WithNotifier(notifier domain.Notifier) Option {
	return func(opts *EngineOptions) {
		opts.Notifier = notifier
	}
}

// WithMetrics задаёт метрики синхронизации.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *EngineOptions) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *EngineOptions) {
		opts.Now = now
	}
}

// Result подводит итог одного прохода синхронизации.
type Result struct {
	// Skipped означает, что проход не выполнялся из-за offline.
	Skipped   bool
	Attempted int
	Synced    int
	Failed    int
}

// Engine синхронизирует pending-заказы. Проходы внутри процесса выполняются
// строго по одному; доставка at-least-once, повтор отбрасывает сервер по Idempotency-Key.
type Engine struct {
	store    PendingStore
	sender   domain.OrderSender
	signal   Signal
	logger   *log.Entry
	notifier domain.Notifier
	metrics  *metrics.SyncMetrics
	now      func() time.Time

	passMu  sync.Mutex
	trigger chan struct{}
}

// NewEngine создаёт Engine.
func NewEngine(store PendingStore, sender domain.OrderSender, signal Signal, options ...Option) *Engine {
	var opts EngineOptions
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-sync")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:    store,
		sender:   sender,
		signal:   signal,
		logger:   logger,
		notifier: notifier,
		metrics:  opts.Metrics,
		now:      now,
		trigger:  make(chan struct{}, 1),
	}
}

// Sync выполняет один проход. При offline возвращается сразу без сетевых вызовов.
// Ошибка доставки одного заказа не прерывает проход: заказ остаётся pending.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.signal.Online() {
		return Result{Skipped: true}, nil
	}

	e.passMu.Lock()
	defer e.passMu.Unlock()

	started := e.now()
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("failed to read pending orders")
		return Result{}, fmt.Errorf("read pending orders: %w", err)
	}

	var result Result
	for _, record := range pending {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++

		if err := e.sender.Deliver(ctx, record); err != nil {
			result.Failed++
			syncDeliveryAttempts.WithLabelValues("failed").Inc()
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":   record.ID,
				"client_ref": record.ClientRef,
			}).Warn("order delivery failed, order stays pending")
			e.notify(domain.NotifySyncError, fmt.Sprintf("Order %d not synced: %v", record.ID, err))
			continue
		}

		if err := e.store.MarkSynced(ctx, record.ID); err != nil {
			result.Failed++
			syncDeliveryAttempts.WithLabelValues("mark_failed").Inc()
			e.logger.WithError(err).WithField("order_id", record.ID).
				Warn("order delivered but not marked as synced, it will be redelivered")
			continue
		}

		result.Synced++
		syncDeliveryAttempts.WithLabelValues("synced").Inc()
		e.notify(domain.NotifyOrderSynced, fmt.Sprintf("Order %d synced", record.ID))
	}

	e.metrics.RecordPass(len(pending), result.Synced, result.Failed, e.now().Sub(started))
	if result.Attempted > 0 {
		e.logger.WithFields(log.Fields{
			"attempted": result.Attempted,
			"synced":    result.Synced,
			"failed":    result.Failed,
		}).Info("sync pass finished")
	}
	return result, ctx.Err()
}

// Trigger просит Run выполнить проход, например после добавления заказа.
// Повторные вызовы до начала прохода объединяются.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run синхронизирует один раз при старте (если online), затем при каждом
// переходе offline -> online и по Trigger. Таймера нет.
func (e *Engine) Run(ctx context.Context) {
	if e.store == nil || e.sender == nil || e.signal == nil {
		e.logger.Warn("order sync is disabled: store, sender or signal is nil")
		return
	}

	transitions, unsubscribe := e.signal.Subscribe()
	defer unsubscribe()

	e.runPass(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			if tr.Online {
				e.runPass(ctx, "connection_restored")
			}
		case <-e.trigger:
			e.runPass(ctx, "trigger")
		}
	}
}

func (e *Engine) runPass(ctx context.Context, reason string) {
	result, err := e.Sync(ctx)
	if err != nil && ctx.Err() == nil {
		e.logger.WithError(err).WithField("reason", reason).Warn("sync pass failed")
		return
	}
	if result.Skipped {
		e.logger.WithField("reason", reason).Debug("sync skipped: offline")
	}
}

func (e *Engine) notify(kind domain.NotificationType, message string) {
	e.notifier.Notify(domain.Notification{Type: kind, Message: message, At: e.now()})
}
