package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/foodies/internal/api"
	"github.com/vladislavdragonenkov/foodies/internal/cachemgr"
	"github.com/vladislavdragonenkov/foodies/internal/connectivity"
	healthcheck "github.com/vladislavdragonenkov/foodies/internal/health"
	"github.com/vladislavdragonenkov/foodies/internal/metrics"
	"github.com/vladislavdragonenkov/foodies/internal/notify"
	"github.com/vladislavdragonenkov/foodies/internal/orderstore"
	"github.com/vladislavdragonenkov/foodies/internal/remote"
	"github.com/vladislavdragonenkov/foodies/internal/service/ordersync"
	"github.com/vladislavdragonenkov/foodies/internal/version"
)

// Client собирает offline-client: прокси с кешем ресурсов, хранилище
// заказов, синхронизацию и уведомления страниц.
type Client struct {
	cfg        ClientConfig
	logger     *log.Entry
	hub        *notify.Hub
	monitor    *connectivity.Monitor
	prober     *connectivity.Prober
	orders     *orderstore.Store
	manager    *cachemgr.Manager
	dispatcher *cachemgr.Dispatcher
	engine     *ordersync.Engine
	handler    http.Handler
	closeCache func() error
}

// NewClient собирает зависимости клиента без запуска фоновых циклов.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	logger := log.WithField("component", "offline-client")

	origin, err := url.Parse(strings.TrimSpace(cfg.OriginURL))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q", cfg.OriginURL)
	}
	if strings.TrimSpace(cfg.RemoteURL) == "" {
		return nil, errors.New("remote order endpoint url is required")
	}

	manifest := cachemgr.DefaultManifest()
	if cfg.ManifestPath != "" {
		if manifest, err = cachemgr.LoadManifest(cfg.ManifestPath); err != nil {
			return nil, err
		}
	}

	opener, err := orderBackendOpener(cfg, logger.WithField("component", "order-store"))
	if err != nil {
		return nil, err
	}
	cache, err := initCacheStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	hub := notify.NewHub(log.WithField("component", "notify-hub"))
	monitor := connectivity.NewMonitor(true, hub, log.WithField("component", "connectivity"))

	orders := orderstore.New(opener,
		orderstore.WithLogger(log.WithField("component", "order-store")),
		orderstore.WithNotifier(hub),
	)

	manager := cachemgr.NewManager(manifest, cache.storage, cachemgr.NewHTTPFetcher(origin, httpClient),
		cachemgr.WithLogger(log.WithField("component", "cache-manager")),
		cachemgr.WithNotifier(hub),
		cachemgr.WithConnectivity(monitor),
		cachemgr.WithMetrics(metrics.NewCacheMetrics()),
	)
	dispatcher := cachemgr.NewDispatcher(manager)

	engine := ordersync.NewEngine(orders, remote.NewHTTPSender(cfg.RemoteURL, httpClient), monitor,
		ordersync.WithLogger(log.WithField("component", "order-sync")),
		ordersync.WithNotifier(hub),
		ordersync.WithMetrics(metrics.NewSyncMetrics()),
	)

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		hub:        hub,
		monitor:    monitor,
		prober:     connectivity.NewProber(monitor, origin.String(), cfg.ProbeInterval, httpClient, nil),
		orders:     orders,
		manager:    manager,
		dispatcher: dispatcher,
		engine:     engine,
		closeCache: cache.closeFn,
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("order-store", healthcheck.NewSimpleChecker("order-store", func(ctx context.Context) error {
		_, err := orders.Open(ctx)
		return err
	}))
	healthHandler.RegisterChecker("cache-manager", healthcheck.NewFuncChecker("cache-manager", func(context.Context) (healthcheck.Status, string) {
		if state := dispatcher.State(); state != cachemgr.StateActive {
			return healthcheck.StatusDegraded, string(state)
		}
		return healthcheck.StatusHealthy, ""
	}))
	healthHandler.RegisterChecker("connectivity", healthcheck.NewFuncChecker("connectivity", func(context.Context) (healthcheck.Status, string) {
		if !monitor.Online() {
			return healthcheck.StatusDegraded, "offline"
		}
		return healthcheck.StatusHealthy, ""
	}))
	if cache.checker != nil {
		healthHandler.RegisterChecker("cache-storage", cache.checker)
	}

	r := mux.NewRouter()
	registerObservability(r, healthHandler)
	api.NewLocalHandler(orders, engine, monitor, dispatcher, log.WithField("component", "local-api")).Register(r)
	r.HandleFunc("/ws", hub.ServeWS)
	r.PathPrefix("/").Handler(cachemgr.NewHandler(dispatcher, origin, log.WithField("component", "cache-proxy")))
	c.handler = r

	return c, nil
}

// Handler возвращает корневой HTTP-обработчик клиента.
func (c *Client) Handler() http.Handler {
	return c.handler
}

// Run запускает установку кеша, проверку связности, синхронизацию и HTTP-сервер
// на lis. Возвращает после отмены ctx, освободив ресурсы.
func (c *Client) Run(ctx context.Context, lis net.Listener) error {
	defer c.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.dispatcher.Run(gctx, c.monitor)
		return nil
	})
	g.Go(func() error {
		c.prober.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.engine.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return serveHTTP(gctx, lis, c.handler, c.logger)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) close() {
	c.manager.Wait()
	if err := c.orders.Close(); err != nil {
		c.logger.WithError(err).Warn("failed to close order store")
	}
	if c.closeCache != nil {
		if err := c.closeCache(); err != nil {
			c.logger.WithError(err).Warn("failed to close cache storage")
		}
	}
}

// RunClient собирает и запускает offline-client на cfg.ListenAddr.
func RunClient(ctx context.Context, cfg ClientConfig) error {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		client.close()
		return err
	}

	client.logger.WithFields(version.Fields()).WithFields(log.Fields{
		"listen": lis.Addr().String(),
		"origin": cfg.OriginURL,
		"remote": cfg.RemoteURL,
	}).Info("offline client started")
	return client.Run(ctx, lis)
}
