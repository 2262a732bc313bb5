// Package remote доставляет локальные заказы на удалённый эндпоинт POST /api/orders.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	"github.com/vladislavdragonenkov/foodies/internal/version"
)

const (
	// IdempotencyKeyHeader — заголовок, по которому сервер отбрасывает повторную доставку.
	IdempotencyKeyHeader = "Idempotency-Key"

	defaultTimeout = 10 * time.Second
)

// HTTPSender доставляет заказы по HTTP.
type HTTPSender struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSender создаёт sender для полного URL эндпоинта.
func NewHTTPSender(endpoint string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPSender{client: client, endpoint: endpoint}
}

// Deliver отправляет запись одним POST. Успех — любой 2xx; тело ответа не разбирается.
func (s *HTTPSender) Deliver(ctx context.Context, record domain.OrderRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode order %d: %w", domain.ErrDelivery, record.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("offline-client"))
	if record.ClientRef != "" {
		req.Header.Set(IdempotencyKeyHeader, record.ClientRef)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post order %d: %w", domain.ErrNetwork, record.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: order %d rejected with status %d", domain.ErrDelivery, record.ID, resp.StatusCode)
	}
	return nil
}

var _ domain.OrderSender = (*HTTPSender)(nil)
