// Package orderstore — локальное хранилище заказов страницы: ленивое открытие,
// добавление в статусе pending, снимки и атомарная очистка.
package orderstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// Opener открывает (создавая при первом использовании) долговременное хранилище.
type Opener func(ctx context.Context) (domain.OrderBackend, error)

// Options задаёт параметры Store.
type Options struct {
	Logger   *log.Entry
	Notifier domain.Notifier
	Now      func() time.Time
	NewRef   func() string
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithNotifier задаёт получателя уведомлений.
func WithNotifier(notifier domain.Notifier) Option {
	return func(opts *Options) {
		opts.Notifier = notifier
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// WithRefGenerator подменяет генератор client_ref.
func WithRefGenerator(newRef func() string) Option {
	return func(opts *Options) {
		opts.NewRef = newRef
	}
}

// Store хранит заказы одного клиента. Создаётся один раз и передаётся зависимостям.
type Store struct {
	opener   Opener
	logger   *log.Entry
	notifier domain.Notifier
	now      func() time.Time
	newRef   func() string

	opening singleflight.Group
	mu      sync.RWMutex
	backend domain.OrderBackend
}

// New создаёт Store. Хранилище открывается при первом обращении.
func New(opener Opener, options ...Option) *Store {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-store")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newRef := opts.NewRef
	if newRef == nil {
		newRef = uuid.NewString
	}

	return &Store{
		opener:   opener,
		logger:   logger,
		notifier: notifier,
		now:      now,
		newRef:   newRef,
	}
}

// Open идемпотентно открывает хранилище. Параллельные вызовы ждут одно и то же
// открытие и получают один экземпляр. При ошибке следующий вызов пробует снова.
// Отмена ctx прерывает ожидание вызывающего, но не само открытие.
func (s *Store) Open(ctx context.Context) (domain.OrderBackend, error) {
	if backend := s.current(); backend != nil {
		return backend, nil
	}

	openCtx := context.WithoutCancel(ctx)
	ch := s.opening.DoChan("open", func() (any, error) {
		if backend := s.current(); backend != nil {
			return backend, nil
		}

		backend, err := s.opener(openCtx)
		if err != nil {
			s.logger.WithError(err).Error("order store open failed")
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}

		s.mu.Lock()
		s.backend = backend
		s.mu.Unlock()
		s.logger.Debug("order store opened")
		return backend, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.OrderBackend), nil
	}
}

func (s *Store) current() domain.OrderBackend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// AddEntry сохраняет payload как новый pending-заказ и возвращает его id.
func (s *Store) AddEntry(ctx context.Context, payload domain.OrderPayload) (int64, error) {
	if payload == nil {
		payload = domain.OrderPayload{}
	}

	backend, err := s.Open(ctx)
	if err != nil {
		return 0, err
	}

	record := domain.NewPendingRecord(payload, s.newRef(), s.now())
	id, err := backend.Add(ctx, record)
	if err != nil {
		s.logger.WithError(err).Error("add order failed")
		return 0, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":   id,
		"client_ref": record.ClientRef,
	}).Info("order stored as pending")
	s.notify(domain.NotifyOrderAdded, fmt.Sprintf("Order %d saved", id))
	return id, nil
}

// ListEntries возвращает снимок всех заказов по возрастанию id.
func (s *Store) ListEntries(ctx context.Context) ([]domain.OrderRecord, error) {
	backend, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	return backend.List(ctx)
}

// ListPending возвращает снимок pending-заказов через индекс по статусу.
func (s *Store) ListPending(ctx context.Context) ([]domain.OrderRecord, error) {
	backend, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	return backend.ListByStatus(ctx, domain.OrderStatusPending)
}

// MarkSynced переводит заказ в synced.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	backend, err := s.Open(ctx)
	if err != nil {
		return err
	}
	return backend.MarkSynced(ctx, id)
}

// ClearAll атомарно удаляет все заказы.
func (s *Store) ClearAll(ctx context.Context) error {
	backend, err := s.Open(ctx)
	if err != nil {
		return err
	}
	if err := backend.Clear(ctx); err != nil {
		s.logger.WithError(err).Error("clear orders failed")
		return err
	}

	s.logger.Info("all orders cleared")
	s.notify(domain.NotifyOrdersCleared, "All orders cleared")
	return nil
}

// Close закрывает открытое хранилище.
func (s *Store) Close() error {
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()

	if backend == nil {
		return nil
	}
	return backend.Close()
}

func (s *Store) notify(kind domain.NotificationType, message string) {
	s.notifier.Notify(domain.Notification{Type: kind, Message: message, At: s.now()})
}
