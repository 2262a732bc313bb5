// Package connectivity хранит сигнал online/offline процесса и рассылает его переходы.
package connectivity

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

const subscriberBuffer = 8

// Transition описывает смену состояния сигнала.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor хранит сигнал связности. Меняется только окружением (Set); ядро его читает.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	subscribers map[int]chan Transition
	nextID      int
	notifier    domain.Notifier
	logger      *log.Entry
	now         func() time.Time
}

// NewMonitor создаёт Monitor с начальным состоянием.
func NewMonitor(initial bool, notifier domain.Notifier, logger *log.Entry) *Monitor {
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	if logger == nil {
		logger = log.WithField("component", "connectivity")
	}
	return &Monitor{
		online:      initial,
		subscribers: make(map[int]chan Transition),
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Online возвращает текущее состояние.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set меняет состояние и, если оно изменилось, рассылает Transition подписчикам.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	tr := Transition{Online: online, At: m.now()}
	for id, ch := range m.subscribers {
		select {
		case ch <- tr:
		default:
			m.logger.WithField("subscriber", id).Warn("connectivity subscriber is slow, transition dropped")
		}
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("connection restored")
		m.notifier.Notify(domain.Notification{Type: domain.NotifyConnectionRestored, Message: "Back online", At: tr.At})
	} else {
		m.logger.Warn("connection lost")
		m.notifier.Notify(domain.Notification{Type: domain.NotifyConnectionLost, Message: "Working offline", At: tr.At})
	}
	return true
}

// Subscribe возвращает канал переходов и функцию отписки.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, subscriberBuffer)
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
}
