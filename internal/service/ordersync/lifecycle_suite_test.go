package ordersync_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/foodies/internal/api"
	"github.com/vladislavdragonenkov/foodies/internal/connectivity"
	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/metrics"
	"github.com/vladislavdragonenkov/foodies/internal/orderstore"
	"github.com/vladislavdragonenkov/foodies/internal/remote"
	"github.com/vladislavdragonenkov/foodies/internal/service/ordersync"
	"github.com/vladislavdragonenkov/foodies/internal/storage/memory"
)

// OrderLifecycleTestSuite проверяет путь заказа от локальной записи до order-api.
type OrderLifecycleTestSuite struct {
	suite.Suite

	backend  *memory.OrderBackend
	store    *orderstore.Store
	received domain.ReceivedOrderRepository
	monitor  *connectivity.Monitor
	engine   *ordersync.Engine
	server   *httptest.Server
	failPost atomic.Bool
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "lifecycle-test")

	s.received = memory.NewReceivedOrderRepository()
	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.failPost.Load() {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	api.NewOrdersHandler(s.received, nil, logger).Register(router)
	s.server = httptest.NewServer(router)

	s.backend = memory.NewOrderBackend()
	s.store = orderstore.New(func(context.Context) (domain.OrderBackend, error) { return s.backend, nil },
		orderstore.WithLogger(logger),
	)
	s.monitor = connectivity.NewMonitor(false, nil, logger)
	s.engine = ordersync.NewEngine(s.store, remote.NewHTTPSender(s.server.URL+"/api/orders", s.server.Client()), s.monitor,
		ordersync.WithLogger(logger),
		ordersync.WithMetrics(metrics.NewSyncMetricsWithRegisterer(prometheus.NewRegistry())),
	)
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) addOrders(items ...string) {
	for _, item := range items {
		_, err := s.store.AddEntry(context.Background(), domain.OrderPayload{"item": item, "qty": 1})
		s.Require().NoError(err)
	}
}

func (s *OrderLifecycleTestSuite) receivedCount() int {
	orders, err := s.received.ListRecent(context.Background(), 0)
	s.Require().NoError(err)
	return len(orders)
}

func (s *OrderLifecycleTestSuite) pendingCount() int {
	pending, err := s.store.ListPending(context.Background())
	s.Require().NoError(err)
	return len(pending)
}

func (s *OrderLifecycleTestSuite) TestOfflineOrdersWaitForConnectivity() {
	s.addOrders("pizza", "soup")

	res, err := s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.True(res.Skipped)
	s.Equal(2, s.pendingCount())
	s.Equal(0, s.receivedCount())

	s.monitor.Set(true)
	res, err = s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(ordersync.Result{Attempted: 2, Synced: 2}, res)
	s.Equal(0, s.pendingCount())
	s.Equal(2, s.receivedCount())
}

func (s *OrderLifecycleTestSuite) TestRejectedDeliveryStaysPendingUntilNextSync() {
	s.monitor.Set(true)
	s.addOrders("burger")

	s.failPost.Store(true)
	res, err := s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Failed)
	s.Equal(1, s.pendingCount())

	s.failPost.Store(false)
	res, err = s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Synced)
	s.Equal(0, s.pendingCount())
	s.Equal(1, s.receivedCount())
}

func (s *OrderLifecycleTestSuite) TestLostAcknowledgementIsDeduplicatedByServer() {
	s.monitor.Set(true)
	s.addOrders("salad")

	s.backend.FailOn("mark_synced", errors.New("disk full"))
	res, err := s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Failed)
	s.Equal(1, s.pendingCount())
	s.Equal(1, s.receivedCount())

	s.backend.FailOn("mark_synced", nil)
	res, err = s.engine.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Synced)
	s.Equal(0, s.pendingCount())
	s.Equal(1, s.receivedCount(), "повторная доставка не должна создавать второй заказ")
}

func (s *OrderLifecycleTestSuite) TestRunSyncsOnReconnect() {
	s.addOrders("tea")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.engine.Run(ctx)
	}()

	s.monitor.Set(true)
	s.Eventually(func() bool {
		pending, err := s.store.ListPending(context.Background())
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
	s.Equal(1, s.receivedCount())

	cancel()
	<-done
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
