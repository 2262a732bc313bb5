// Package notify рассылает уведомления кеш-менеджера и хранилища заказов
// всем открытым страницам по websocket.
package notify

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

const clientQueueSize = 64

// Client — одно подключение страницы. Send вызывается только из горутины
// доставки этого клиента, поэтому может блокироваться на записи.
type Client interface {
	Send(message []byte) bool
	Close()
}

// subscription держит очередь сообщений клиента и горутину, которая их пишет.
type subscription struct {
	client Client
	queue  chan []byte
	done   chan struct{}
}

func (s *subscription) deliver(logger *log.Entry) {
	for {
		select {
		case <-s.done:
			return
		case message := <-s.queue:
			if !s.client.Send(message) {
				logger.Debug("notification not delivered to client")
			}
		}
	}
}

// Hub хранит подключённые страницы и рассылает им уведомления.
// Notify не ждёт записи в соединения: медленный клиент теряет сообщения
// сверх своей очереди и не задерживает остальных.
type Hub struct {
	mu      sync.RWMutex
	clients map[Client]*subscription
	logger  *log.Entry
}

// NewHub создаёт пустой Hub.
func NewHub(logger *log.Entry) *Hub {
	if logger == nil {
		logger = log.WithField("component", "notify-hub")
	}
	return &Hub{
		clients: make(map[Client]*subscription),
		logger:  logger,
	}
}

// Register добавляет клиента и запускает доставку ему.
func (h *Hub) Register(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		return
	}
	sub := &subscription{
		client: client,
		queue:  make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
	}
	h.clients[client] = sub
	go sub.deliver(h.logger)
}

// Unregister удаляет клиента и останавливает доставку ему.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(sub.done)
	}
}

// Len возвращает число подключённых клиентов.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify ставит уведомление в очередь каждого клиента и сразу возвращается.
// Если очередь клиента заполнена, сообщение для него отбрасывается.
func (h *Hub) Notify(n domain.Notification) {
	message, err := json.Marshal(n)
	if err != nil {
		h.logger.WithError(err).Warn("encode notification")
		return
	}

	dropped := 0
	h.mu.RLock()
	for _, sub := range h.clients {
		select {
		case sub.queue <- message:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.logger.WithFields(log.Fields{
			"type":    n.Type,
			"dropped": dropped,
		}).Debug("notification dropped for slow clients")
	}
}

var _ domain.Notifier = (*Hub)(nil)
