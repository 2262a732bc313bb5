package cachemgr

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/connectivity"
	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// State описывает, на каком шаге жизненного цикла находится менеджер.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInstalling    State = "installing"
	StateWaiting       State = "waiting-to-activate"
	StateActive        State = "active"
)

// EventKind различает события окружения.
type EventKind string

const (
	EventInstall     EventKind = "install"
	EventActivate    EventKind = "activate"
	EventSkipWaiting EventKind = "skip-waiting"
	EventFetch       EventKind = "fetch"
)

// Event передаётся в Dispatcher окружением.
type Event struct {
	Kind    EventKind
	Request Request
}

// Future — результат события, который окружение ожидает перед тем,
// как считать событие обработанным.
type Future struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(outcome Outcome, err error) {
	f.outcome = outcome
	f.err = err
	close(f.done)
}

// Done закрывается, когда результат готов.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait блокируется до готовности результата или отмены ctx.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Dispatcher маршрутизирует события окружения в обработчики Manager.
// События жизненного цикла выполняются строго по одному; fetch-события
// обрабатываются параллельно.
type Dispatcher struct {
	manager   *Manager
	lifecycle sync.Mutex
}

// NewDispatcher создаёт Dispatcher для менеджера.
func NewDispatcher(manager *Manager) *Dispatcher {
	return &Dispatcher{manager: manager}
}

// State возвращает текущее состояние менеджера.
func (d *Dispatcher) State() State {
	return d.manager.State()
}

// Dispatch запускает обработку события и сразу возвращает Future.
// Контекст события удерживается до завершения обработчика.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) *Future {
	future := newFuture()
	go func() {
		outcome, err := d.handle(ctx, event)
		future.resolve(outcome, err)
	}()
	return future
}

func (d *Dispatcher) handle(ctx context.Context, event Event) (Outcome, error) {
	if event.Kind == EventFetch {
		return d.manager.HandleRequest(ctx, event.Request), nil
	}

	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	var err error
	switch event.Kind {
	case EventInstall:
		err = d.manager.Install(ctx)
	case EventActivate:
		err = d.manager.Activate(ctx)
	case EventSkipWaiting:
		err = d.manager.SkipWaiting(ctx)
	default:
		err = fmt.Errorf("%w: unknown event %q", domain.ErrLifecycle, event.Kind)
	}
	return Outcome{State: d.manager.State()}, err
}

// Start доводит менеджер до active: install из uninitialized, затем activate.
// Уже пройденные шаги пропускаются, поэтому Start можно вызывать повторно.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.State() == StateUninitialized {
		if _, err := d.Dispatch(ctx, Event{Kind: EventInstall}).Wait(ctx); err != nil {
			return err
		}
	}
	if d.State() == StateWaiting {
		if _, err := d.Dispatch(ctx, Event{Kind: EventActivate}).Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Signal отдаёт переходы сигнала связности.
type Signal interface {
	Subscribe() (<-chan connectivity.Transition, func())
}

// Run вызывает Start сразу и повторяет его при каждом переходе offline -> online,
// пока менеджер не станет active или не будет отменён ctx.
func (d *Dispatcher) Run(ctx context.Context, signal Signal) {
	transitions, unsubscribe := signal.Subscribe()
	defer unsubscribe()

	d.start(ctx, "startup")
	for d.State() != StateActive {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			if tr.Online {
				d.start(ctx, "connection_restored")
			}
		}
	}
}

func (d *Dispatcher) start(ctx context.Context, reason string) {
	if err := d.Start(ctx); err != nil && ctx.Err() == nil {
		d.manager.logger.WithError(err).WithFields(log.Fields{
			"reason": reason,
			"state":  d.State(),
		}).Warn("cache manager is not active, requests go to network")
	}
}
