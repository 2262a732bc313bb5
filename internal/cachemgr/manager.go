package cachemgr

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/metrics"
)

const defaultInstallConcurrency = 4

// Connectivity сообщает, есть ли сеть.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// ManagerOptions задаёт параметры Manager.
type ManagerOptions struct {
	Logger             *log.Entry
	Notifier           domain.Notifier
	Connectivity       Connectivity
	Metrics            *metrics.CacheMetrics
	InstallConcurrency int
	Now                func() time.Time
}

// Option настраивает Manager.
type Option func(*ManagerOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ManagerOptions) {
		opts.Logger = logger
	}
}

// WithNotifier задаёт получателя уведомлений для страниц.
func WithNotifier(notifier domain.Notifier) Option {
	return func(opts *ManagerOptions) {
		opts.Notifier = notifier
	}
}

// WithConnectivity задаёт сигнал связности.
func WithConnectivity(connectivity Connectivity) Option {
	return func(opts *ManagerOptions) {
		opts.Connectivity = connectivity
	}
}

// WithMetrics задаёт метрики кеша.
func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(opts *ManagerOptions) {
		opts.Metrics = m
	}
}

// WithInstallConcurrency ограничивает число параллельных загрузок при установке.
func WithInstallConcurrency(n int) Option {
	return func(opts *ManagerOptions) {
		opts.InstallConcurrency = n
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *ManagerOptions) {
		opts.Now = now
	}
}

// Outcome содержит результат обработки события или запроса.
type Outcome struct {
	State    State
	Route    RouteKind
	Response domain.CachedResponse
}

// Passthrough сообщает, что запрос нужно передать в сеть без участия кеша.
func (o Outcome) Passthrough() bool {
	return o.Route == RoutePassthrough
}

// Manager владеет поколениями кеша и состоянием жизненного цикла.
type Manager struct {
	manifest     Manifest
	storage      domain.CacheStorage
	fetcher      Fetcher
	router       Router
	notifier     domain.Notifier
	connectivity Connectivity
	metrics      *metrics.CacheMetrics
	logger       *log.Entry
	concurrency  int
	now          func() time.Time

	mu    sync.RWMutex
	state State

	revalidations sync.WaitGroup
}

// NewManager создаёт Manager в состоянии uninitialized.
func NewManager(manifest Manifest, storage domain.CacheStorage, fetcher Fetcher, options ...Option) *Manager {
	opts := ManagerOptions{InstallConcurrency: defaultInstallConcurrency}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cache-manager")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	connectivity := opts.Connectivity
	if connectivity == nil {
		connectivity = alwaysOnline{}
	}
	if opts.InstallConcurrency <= 0 {
		opts.InstallConcurrency = defaultInstallConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		manifest:     manifest,
		storage:      storage,
		fetcher:      fetcher,
		router:       NewRouter(manifest, fetcher, storage),
		notifier:     notifier,
		connectivity: connectivity,
		metrics:      opts.Metrics,
		logger:       logger.WithField("cache_version", manifest.Version),
		concurrency:  opts.InstallConcurrency,
		now:          now,
		state:        StateUninitialized,
	}
}

// State возвращает текущее состояние жизненного цикла.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Manifest возвращает манифест менеджера.
func (m *Manager) Manifest() Manifest {
	return m.manifest
}

// Install загружает все ресурсы манифеста и атомарно сохраняет их в static-поколение.
// Любая неудачная загрузка отменяет установку целиком.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.transition(StateInstalling, StateUninitialized); err != nil {
		return err
	}

	started := m.now()
	m.notify(domain.NotifyInstallProgress, "Caching static assets...")

	entries, err := m.fetchAssets(ctx)
	if err == nil {
		err = m.storage.PutAll(ctx, m.manifest.StaticCache, entries)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrInstallFailed, err)
		if m.staticComplete(ctx) {
			// прежнее static-поколение целиком на месте, работаем с ним
			m.setState(StateWaiting)
			m.logger.WithError(err).Warn("static cache install failed, keeping previous static generation")
			m.notify(domain.NotifyInstallError, "Failed to refresh assets, using cached version: "+err.Error())
			return nil
		}
		m.setState(StateUninitialized)
		m.logger.WithError(err).Error("static cache install failed")
		m.notify(domain.NotifyInstallError, "Failed to cache assets: "+err.Error())
		return err
	}

	m.metrics.RecordInstall(m.now().Sub(started))
	m.setState(StateWaiting)
	m.logger.WithField("assets", len(entries)).Info("static assets cached")
	m.notify(domain.NotifyInstallSuccess, "Application assets cached successfully")
	return nil
}

// staticComplete сообщает, что static-поколение содержит каждый ресурс манифеста.
func (m *Manager) staticComplete(ctx context.Context) bool {
	if len(m.manifest.Assets) == 0 {
		return false
	}
	for _, asset := range m.manifest.Assets {
		if _, ok, err := m.storage.MatchIn(ctx, m.manifest.StaticCache, asset); err != nil || !ok {
			return false
		}
	}
	return true
}

func (m *Manager) fetchAssets(ctx context.Context) (map[string]domain.CachedResponse, error) {
	var (
		mu      sync.Mutex
		entries = make(map[string]domain.CachedResponse, len(m.manifest.Assets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, asset := range m.manifest.Assets {
		asset := asset
		g.Go(func() error {
			resp, err := m.fetcher.Fetch(gctx, AssetRequest(asset))
			if err != nil {
				return fmt.Errorf("fetch %s: %w", asset, err)
			}
			if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
				return fmt.Errorf("fetch %s: unexpected status %d", asset, resp.Status)
			}
			resp.StoredAt = m.now()

			mu.Lock()
			entries[asset] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Activate удаляет все поколения, кроме текущих static и dynamic, и после этого
// атомарно переводит менеджер в active.
func (m *Manager) Activate(ctx context.Context) error {
	if state := m.State(); state != StateWaiting {
		return fmt.Errorf("%w: activate from %s", domain.ErrLifecycle, state)
	}

	m.notify(domain.NotifyActivateProgress, "Cleaning old caches...")

	names, err := m.storage.Names(ctx)
	if err != nil {
		return m.activateFailed(fmt.Errorf("list cache generations: %w", err))
	}

	deleted := 0
	for _, name := range names {
		if m.manifest.isCurrent(name) {
			continue
		}
		if _, err := m.storage.Delete(ctx, name); err != nil {
			return m.activateFailed(fmt.Errorf("delete cache generation %s: %w", name, err))
		}
		m.logger.WithField("generation", name).Info("deleted stale cache generation")
		deleted++
	}
	m.metrics.RecordGenerationsDeleted(deleted)

	if err := m.transition(StateActive, StateWaiting); err != nil {
		return err
	}
	m.metrics.SetActive(true)
	m.logger.Info("cache manager activated")
	m.notify(domain.NotifyActivateSuccess, "Cache manager activated and ready")
	return nil
}

func (m *Manager) activateFailed(err error) error {
	m.logger.WithError(err).Error("activation failed")
	m.notify(domain.NotifyActivateError, "Activation failed: "+err.Error())
	return err
}

// SkipWaiting активирует ожидающее поколение немедленно.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	if m.State() != StateWaiting {
		return nil
	}
	m.notify(domain.NotifyUpdateReady, "New version ready to activate")
	return m.Activate(ctx)
}

// HandleRequest обрабатывает перехваченный запрос. До активации и для не-GET
// запросов возвращает Outcome с RoutePassthrough.
func (m *Manager) HandleRequest(ctx context.Context, req Request) Outcome {
	state := m.State()
	if state != StateActive {
		m.metrics.RecordRequest(string(RoutePassthrough))
		return Outcome{State: state, Route: RoutePassthrough}
	}

	decision := m.router.Route(ctx, req, m.connectivity.Online())
	m.metrics.RecordRequest(string(decision.Route))
	for _, n := range decision.Notifications {
		m.notify(n.Type, n.Message)
	}
	for _, effect := range decision.Effects {
		m.apply(ctx, effect)
	}

	return Outcome{State: state, Route: decision.Route, Response: decision.Response}
}

func (m *Manager) apply(ctx context.Context, effect Effect) {
	switch effect.Kind {
	case EffectPut:
		m.put(ctx, effect.Generation, effect.Key, effect.Response, domain.NotifyCacheUpdate, "Resource cached: "+effect.Key)
	case EffectRevalidate:
		bg := context.WithoutCancel(ctx)
		m.revalidations.Add(1)
		go func() {
			defer m.revalidations.Done()
			m.revalidate(bg, effect)
		}()
	}
}

func (m *Manager) revalidate(ctx context.Context, effect Effect) {
	resp, err := m.fetcher.Fetch(ctx, effect.Request)
	if err != nil {
		m.metrics.RecordRevalidation("failed")
		m.logger.WithError(err).WithField("key", effect.Key).Debug("background refresh failed")
		m.notify(domain.NotifyUpdateError, "Failed to update cache: "+err.Error())
		return
	}
	if !resp.Cacheable() {
		m.metrics.RecordRevalidation("skipped")
		return
	}
	if m.put(ctx, effect.Generation, effect.Key, resp, domain.NotifyCacheUpdated, "Cache updated in background") {
		m.metrics.RecordRevalidation("updated")
	} else {
		m.metrics.RecordRevalidation("failed")
	}
}

func (m *Manager) put(ctx context.Context, generation, key string, resp domain.CachedResponse, kind domain.NotificationType, message string) bool {
	resp.StoredAt = m.now()
	if err := m.storage.Put(ctx, generation, key, resp); err != nil {
		m.metrics.RecordCacheWriteError()
		m.logger.WithError(err).WithFields(log.Fields{
			"generation": generation,
			"key":        key,
		}).Warn("cache write failed")
		m.notify(domain.NotifyCacheError, "Failed to cache resource: "+err.Error())
		return false
	}
	m.notify(kind, message)
	return true
}

// Wait дожидается завершения фоновых обновлений.
func (m *Manager) Wait() {
	m.revalidations.Wait()
}

func (m *Manager) transition(to State, from ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range from {
		if m.state == allowed {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrLifecycle, m.state, to)
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Manager) notify(kind domain.NotificationType, message string) {
	m.notifier.Notify(domain.Notification{Type: kind, Message: message, At: m.now()})
}
