package cachemgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxBodyBytes        = 32 << 20
)

// HTTPFetcher загружает ресурсы с origin приложения.
type HTTPFetcher struct {
	client  *http.Client
	origin  *url.URL
	maxBody int64
}

// NewHTTPFetcher создаёт fetcher. client == nil — клиент с таймаутом по умолчанию.
func NewHTTPFetcher(origin *url.URL, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &HTTPFetcher{client: client, origin: origin, maxBody: maxBodyBytes}
}

// Fetch выполняет GET и читает тело целиком. HTTP-статус ошибкой не считается,
// а тело больше лимита считается: обрезанный ресурс нельзя кешировать.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (domain.CachedResponse, error) {
	target := f.resolve(req.URL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return domain.CachedResponse{}, fmt.Errorf("%w: build request %s: %w", domain.ErrNetwork, target, err)
	}
	for _, name := range []string{"Accept", "Accept-Language", "User-Agent"} {
		if v := req.Header.Get(name); v != "" {
			httpReq.Header.Set(name, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return domain.CachedResponse{}, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return domain.CachedResponse{}, fmt.Errorf("%w: read body %s: %w", domain.ErrNetwork, target, err)
	}
	if int64(len(body)) > f.maxBody {
		return domain.CachedResponse{}, fmt.Errorf("%w: body of %s exceeds %d bytes", domain.ErrNetwork, target, f.maxBody)
	}

	respType := domain.ResponseTypeBasic
	if !sameOrigin(target, f.origin) {
		respType = domain.ResponseTypeCORS
	}

	header := resp.Header.Clone()
	for _, hop := range []string{"Connection", "Transfer-Encoding", "Keep-Alive", "Content-Length"} {
		header.Del(hop)
	}

	return domain.CachedResponse{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
		Type:   respType,
	}, nil
}

func (f *HTTPFetcher) resolve(u *url.URL) *url.URL {
	if u == nil {
		return f.origin
	}
	if u.IsAbs() || f.origin == nil {
		return u
	}
	return f.origin.ResolveReference(u)
}
