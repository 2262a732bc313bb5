package cachemgr

import (
	"context"
	"net/http"
	"sync"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]domain.CachedResponse
	failures  map[string]error
	calls     map[string]int
	// gate, если задан, блокирует Fetch до закрытия.
	gate chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]domain.CachedResponse),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) respond(key string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = domain.CachedResponse{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
		Type:   domain.ResponseTypeBasic,
	}
}

func (f *fakeFetcher) respondWith(key string, resp domain.CachedResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = resp
}

func (f *fakeFetcher) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = err
}

func (f *fakeFetcher) restore(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, key)
}

func (f *fakeFetcher) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) (domain.CachedResponse, error) {
	f.mu.Lock()
	f.calls[req.Key]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.CachedResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[req.Key]; ok {
		return domain.CachedResponse{}, err
	}
	if resp, ok := f.responses[req.Key]; ok {
		return resp.Clone(), nil
	}
	return domain.CachedResponse{}, domain.ErrNetwork
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []domain.NotificationType
}

func (n *recordingNotifier) Notify(note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, note.Type)
}

func (n *recordingNotifier) has(kind domain.NotificationType) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.types {
		if t == kind {
			return true
		}
	}
	return false
}

type staticConnectivity struct {
	mu     sync.Mutex
	online bool
}

func (c *staticConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *staticConnectivity) set(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

func getRequest(key string) Request {
	req := AssetRequest(key)
	return req
}

func navigationRequest(key string) Request {
	req := AssetRequest(key)
	req.Navigate = true
	return req
}

// stalledPage держит Send до закрытия release.
type stalledPage struct {
	release chan struct{}
}

func (p *stalledPage) Send([]byte) bool {
	<-p.release
	return true
}

func (p *stalledPage) Close() {}
