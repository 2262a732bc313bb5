package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

type recordingNotifier struct {
	mu    sync.Mutex
	types []domain.NotificationType
}

func (n *recordingNotifier) Notify(note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, note.Type)
}

func TestMonitorEmitsOnlyTransitions(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	monitor := NewMonitor(false, notifier, nil)
	ch, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	require.False(t, monitor.Set(false))
	require.True(t, monitor.Set(true))
	require.False(t, monitor.Set(true))
	require.True(t, monitor.Set(false))

	first := <-ch
	second := <-ch
	require.True(t, first.Online)
	require.False(t, second.Online)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected transition %+v", extra)
	default:
	}

	require.Equal(t, []domain.NotificationType{domain.NotifyConnectionRestored, domain.NotifyConnectionLost}, notifier.types)
}

func TestMonitorUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(true, nil, nil)
	ch, unsubscribe := monitor.Subscribe()
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
	require.True(t, monitor.Set(false))
}

func TestProberTracksReachability(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	monitor := NewMonitor(false, nil, nil)
	prober := NewProber(monitor, server.URL, time.Hour, server.Client(), nil)

	require.True(t, prober.ProbeOnce(context.Background()))
	require.True(t, monitor.Online())

	server.Close()
	require.False(t, prober.ProbeOnce(context.Background()))
	require.False(t, monitor.Online())
}
