package cachemgr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/storage/memory"
)

func testManifest() Manifest {
	return Manifest{
		Version:      "test",
		StaticCache:  "static",
		DynamicCache: "dynamic",
		OfflinePage:  "/offline.html",
		APIPrefix:    "/api/",
		Assets:       []string{"/", "/app.js", "/offline.html"},
	}
}

func seededCache(t *testing.T, entries map[string]string) *memory.CacheStorage {
	t.Helper()

	storage := memory.NewCacheStorage()
	for key, body := range entries {
		require.NoError(t, storage.Put(context.Background(), "static", key, domain.CachedResponse{
			Status: http.StatusOK,
			Body:   []byte(body),
			Type:   domain.ResponseTypeBasic,
		}))
	}
	return storage
}

func TestRouteNonGETPassesThrough(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	router := NewRouter(testManifest(), fetcher, seededCache(t, nil))

	req := getRequest("/api/orders")
	req.Method = http.MethodPost

	decision := router.Route(context.Background(), req, true)
	require.Equal(t, RoutePassthrough, decision.Route)
	require.Empty(t, decision.Effects)
	require.Zero(t, fetcher.totalCalls())
}

func TestRouteAPI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		online     bool
		failWith   error
		wantStatus int
		wantNote   domain.NotificationType
	}{
		{name: "success bypasses cache", online: true, wantStatus: http.StatusCreated, wantNote: domain.NotifyAPISuccess},
		{name: "network failure synthesizes 503 json", online: true, failWith: domain.ErrNetwork, wantStatus: http.StatusServiceUnavailable, wantNote: domain.NotifyAPIError},
		{name: "offline synthesizes 503 json", online: false, wantStatus: http.StatusServiceUnavailable, wantNote: domain.NotifyAPIError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newFakeFetcher()
			fetcher.respond("/api/orders", http.StatusCreated, `{"id":"x"}`)
			if tt.failWith != nil {
				fetcher.fail("/api/orders", tt.failWith)
			}
			cache := seededCache(t, map[string]string{"/api/orders": "stale"})
			router := NewRouter(testManifest(), fetcher, cache)

			decision := router.Route(context.Background(), getRequest("/api/orders"), tt.online)
			require.Equal(t, RouteAPI, decision.Route)
			require.Equal(t, tt.wantStatus, decision.Response.Status)
			require.Empty(t, decision.Effects)
			require.Len(t, decision.Notifications, 1)
			require.Equal(t, tt.wantNote, decision.Notifications[0].Type)

			if tt.wantStatus == http.StatusServiceUnavailable {
				require.Equal(t, "application/json", decision.Response.Header.Get("Content-Type"))
				var body map[string]string
				require.NoError(t, json.Unmarshal(decision.Response.Body, &body))
				require.Equal(t, "Network connection failed", body["error"])
				require.NotEmpty(t, body["details"])
			}
			if !tt.online {
				require.Zero(t, fetcher.totalCalls())
			}
		})
	}
}

func TestRouteCacheHitServesCachedAndSchedulesRevalidation(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.respond("/menu", http.StatusOK, "fresh")
	router := NewRouter(testManifest(), fetcher, seededCache(t, map[string]string{"/menu": "cached"}))

	decision := router.Route(context.Background(), getRequest("/menu"), true)
	require.Equal(t, RouteCache, decision.Route)
	require.Equal(t, "cached", string(decision.Response.Body))
	require.Len(t, decision.Effects, 1)
	require.Equal(t, EffectRevalidate, decision.Effects[0].Kind)
	require.Equal(t, "dynamic", decision.Effects[0].Generation)
	require.Equal(t, "/menu", decision.Effects[0].Key)
	require.Zero(t, fetcher.totalCalls(), "cache hit must not wait on the network")
}

func TestRouteCacheHitOfflineSkipsRevalidation(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	router := NewRouter(testManifest(), fetcher, seededCache(t, map[string]string{"/menu": "cached"}))

	decision := router.Route(context.Background(), getRequest("/menu"), false)
	require.Equal(t, RouteCache, decision.Route)
	require.Empty(t, decision.Effects)
}

func TestRouteMissCachesOnlyBasic200(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		resp      domain.CachedResponse
		wantPut   bool
		wantRoute RouteKind
	}{
		{
			name:      "same-origin 200 is cached",
			resp:      domain.CachedResponse{Status: http.StatusOK, Body: []byte("ok"), Type: domain.ResponseTypeBasic},
			wantPut:   true,
			wantRoute: RouteNetwork,
		},
		{
			name:      "cross-origin 200 is returned but not cached",
			resp:      domain.CachedResponse{Status: http.StatusOK, Body: []byte("cdn"), Type: domain.ResponseTypeCORS},
			wantRoute: RouteNetwork,
		},
		{
			name:      "404 is returned but not cached",
			resp:      domain.CachedResponse{Status: http.StatusNotFound, Body: []byte("nope"), Type: domain.ResponseTypeBasic},
			wantRoute: RouteNetwork,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newFakeFetcher()
			fetcher.respondWith("/item", tt.resp)
			router := NewRouter(testManifest(), fetcher, seededCache(t, nil))

			decision := router.Route(context.Background(), getRequest("/item"), true)
			require.Equal(t, tt.wantRoute, decision.Route)
			require.Equal(t, tt.resp.Status, decision.Response.Status)
			require.Equal(t, tt.resp.Body, decision.Response.Body)
			if tt.wantPut {
				require.Len(t, decision.Effects, 1)
				require.Equal(t, EffectPut, decision.Effects[0].Kind)
				require.Equal(t, "dynamic", decision.Effects[0].Generation)
				require.Equal(t, tt.resp.Body, decision.Effects[0].Response.Body)
			} else {
				require.Empty(t, decision.Effects)
			}
		})
	}
}

func TestRouteNetworkFailureFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        Request
		cache      map[string]string
		online     bool
		wantStatus int
		wantBody   string
		wantNote   domain.NotificationType
	}{
		{
			name:       "navigation gets offline page",
			req:        navigationRequest("/orders"),
			cache:      map[string]string{"/offline.html": "<h1>offline</h1>"},
			online:     true,
			wantStatus: http.StatusOK,
			wantBody:   "<h1>offline</h1>",
			wantNote:   domain.NotifyOfflineMode,
		},
		{
			name:       "navigation without offline page gets 503",
			req:        navigationRequest("/orders"),
			online:     true,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "Network error occurred",
			wantNote:   domain.NotifyNetworkError,
		},
		{
			name:       "asset gets plain 503",
			req:        getRequest("/img.png"),
			cache:      map[string]string{"/offline.html": "<h1>offline</h1>"},
			online:     true,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "Network error occurred",
			wantNote:   domain.NotifyNetworkError,
		},
		{
			name:       "offline navigation skips network",
			req:        navigationRequest("/orders"),
			cache:      map[string]string{"/offline.html": "<h1>offline</h1>"},
			online:     false,
			wantStatus: http.StatusOK,
			wantBody:   "<h1>offline</h1>",
			wantNote:   domain.NotifyOfflineMode,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newFakeFetcher()
			fetcher.fail(tt.req.Key, errors.New("dial tcp: connection refused"))
			router := NewRouter(testManifest(), fetcher, seededCache(t, tt.cache))

			decision := router.Route(context.Background(), tt.req, tt.online)
			require.Equal(t, RouteFallback, decision.Route)
			require.Equal(t, tt.wantStatus, decision.Response.Status)
			require.Equal(t, tt.wantBody, string(decision.Response.Body))
			require.Empty(t, decision.Effects)
			require.Equal(t, tt.wantNote, decision.Notifications[0].Type)
			if tt.wantStatus == http.StatusServiceUnavailable {
				require.Equal(t, "text/plain", decision.Response.Header.Get("Content-Type"))
			}
			if !tt.online {
				require.Zero(t, fetcher.totalCalls())
			}
		})
	}
}
