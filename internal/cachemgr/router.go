package cachemgr

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

// Fetcher выполняет сетевой запрос. Ошибка означает сбой сети, а не HTTP-статус.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (domain.CachedResponse, error)
}

// CacheReader читает поколения кеша.
type CacheReader interface {
	Match(ctx context.Context, key string) (domain.CachedResponse, bool, error)
}

// RouteKind называет ветку политики, выбранную для запроса.
type RouteKind string

const (
	RoutePassthrough RouteKind = "passthrough"
	RouteAPI         RouteKind = "api"
	RouteCache       RouteKind = "cache"
	RouteNetwork     RouteKind = "network"
	RouteFallback    RouteKind = "fallback"
)

// EffectKind различает отложенные изменения кеша.
type EffectKind string

const (
	// EffectPut сохраняет копию ответа в dynamic-поколение.
	EffectPut EffectKind = "put"
	// EffectRevalidate фоново обновляет запись dynamic-поколения из сети.
	EffectRevalidate EffectKind = "revalidate"
)

// Effect описывает изменение кеша, которое выполнит менеджер.
type Effect struct {
	Kind       EffectKind
	Generation string
	Key        string
	Request    Request
	Response   domain.CachedResponse
}

// Decision содержит ответ и побочные эффекты маршрутизации одного запроса.
type Decision struct {
	Route         RouteKind
	Response      domain.CachedResponse
	Effects       []Effect
	Notifications []domain.Notification
}

const (
	networkErrorBody    = "Network error occurred"
	apiNetworkErrorText = "Network connection failed"
)

// Router реализует политику маршрутизации как чистую функцию от запроса,
// состояния кеша (CacheReader) и сигнала связности. Запись в кеш не выполняется:
// она возвращается в Decision.Effects.
type Router struct {
	manifest Manifest
	fetcher  Fetcher
	cache    CacheReader
}

// NewRouter создаёт Router.
func NewRouter(manifest Manifest, fetcher Fetcher, cache CacheReader) Router {
	return Router{manifest: manifest, fetcher: fetcher, cache: cache}
}

// Route выбирает ответ для запроса.
func (r Router) Route(ctx context.Context, req Request, online bool) Decision {
	if req.Method != http.MethodGet {
		return Decision{Route: RoutePassthrough}
	}

	if r.isAPI(req) {
		return r.routeAPI(ctx, req, online)
	}

	if cached, ok, err := r.cache.Match(ctx, req.Key); err == nil && ok {
		decision := Decision{
			Route:         RouteCache,
			Response:      cached,
			Notifications: []domain.Notification{note(domain.NotifyCacheHit, "Serving from cache: "+req.Key)},
		}
		if online {
			decision.Effects = []Effect{{
				Kind:       EffectRevalidate,
				Generation: r.manifest.DynamicCache,
				Key:        req.Key,
				Request:    req,
			}}
		}
		return decision
	}

	resp, err := r.fetch(ctx, req, online)
	if err != nil {
		return r.fallback(ctx, req)
	}

	decision := Decision{Route: RouteNetwork, Response: resp}
	if resp.Cacheable() {
		decision.Effects = []Effect{{
			Kind:       EffectPut,
			Generation: r.manifest.DynamicCache,
			Key:        req.Key,
			Request:    req,
			Response:   resp.Clone(),
		}}
	}
	return decision
}

func (r Router) isAPI(req Request) bool {
	if req.URL == nil || r.manifest.APIPrefix == "" {
		return false
	}
	return strings.HasPrefix(req.URL.Path, r.manifest.APIPrefix)
}

func (r Router) routeAPI(ctx context.Context, req Request, online bool) Decision {
	resp, err := r.fetch(ctx, req, online)
	if err != nil {
		return Decision{
			Route:         RouteAPI,
			Response:      apiUnavailable(err),
			Notifications: []domain.Notification{note(domain.NotifyAPIError, "API request failed: "+err.Error())},
		}
	}
	return Decision{
		Route:         RouteAPI,
		Response:      resp,
		Notifications: []domain.Notification{note(domain.NotifyAPISuccess, "API request successful")},
	}
}

func (r Router) fallback(ctx context.Context, req Request) Decision {
	if req.Navigate {
		if page, ok, err := r.cache.Match(ctx, r.manifest.OfflinePage); err == nil && ok {
			return Decision{
				Route:         RouteFallback,
				Response:      page,
				Notifications: []domain.Notification{note(domain.NotifyOfflineMode, "Loading offline page")},
			}
		}
	}
	return Decision{
		Route:         RouteFallback,
		Response:      networkUnavailable(),
		Notifications: []domain.Notification{note(domain.NotifyNetworkError, "Failed to fetch resource")},
	}
}

func (r Router) fetch(ctx context.Context, req Request, online bool) (domain.CachedResponse, error) {
	if !online {
		return domain.CachedResponse{}, domain.ErrOffline
	}
	return r.fetcher.Fetch(ctx, req)
}

func apiUnavailable(cause error) domain.CachedResponse {
	body, _ := json.Marshal(map[string]string{
		"error":   apiNetworkErrorText,
		"details": cause.Error(),
	})
	return domain.CachedResponse{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
		Type:   domain.ResponseTypeSynthetic,
	}
}

func networkUnavailable() domain.CachedResponse {
	return domain.CachedResponse{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(networkErrorBody),
		Type:   domain.ResponseTypeSynthetic,
	}
}

func note(kind domain.NotificationType, message string) domain.Notification {
	return domain.Notification{Type: kind, Message: message}
}
