// Package redis хранит поколения кеша ресурсов в Redis: одно поколение — один HASH,
// порядок создания поколений — ZSET.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

const defaultPrefix = "foodies:cache"

// CacheStorage хранит поколения кеша в Redis.
type CacheStorage struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option настраивает CacheStorage.
type Option func(*CacheStorage)

// WithPrefix задаёт префикс ключей (по умолчанию foodies:cache).
func WithPrefix(prefix string) Option {
	return func(s *CacheStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewCacheStorage создаёт хранилище поверх готового клиента.
func NewCacheStorage(client goredis.UniversalClient, opts ...Option) *CacheStorage {
	s := &CacheStorage{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial открывает клиента по адресу и проверяет соединение.
func Dial(ctx context.Context, addr string, opts ...Option) (*CacheStorage, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewCacheStorage(client, opts...), nil
}

// Ping проверяет доступность Redis.
func (s *CacheStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиента.
func (s *CacheStorage) Close() error {
	return s.client.Close()
}

func (s *CacheStorage) namesKey() string {
	return s.prefix + ":generations"
}

func (s *CacheStorage) generationKey(name string) string {
	return s.prefix + ":gen:" + name
}

// Names возвращает имена поколений по возрастанию времени создания.
func (s *CacheStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.namesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list cache generations: %w", err)
	}
	return names, nil
}

// Delete удаляет поколение и его записи одной транзакцией.
func (s *CacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.generationKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache generation %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Match ищет ключ во всех поколениях в порядке их создания.
func (s *CacheStorage) Match(ctx context.Context, key string) (domain.CachedResponse, bool, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return domain.CachedResponse{}, false, err
	}
	if len(names) == 0 {
		return domain.CachedResponse{}, false, nil
	}

	cmds := make([]*goredis.StringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGet(ctx, s.generationKey(name), key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return domain.CachedResponse{}, false, fmt.Errorf("match %s: %w", key, err)
	}

	for _, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return domain.CachedResponse{}, false, fmt.Errorf("match %s: %w", key, err)
		}
		resp, err := decodeResponse(raw)
		if err != nil {
			return domain.CachedResponse{}, false, err
		}
		return resp, true, nil
	}
	return domain.CachedResponse{}, false, nil
}

// MatchIn ищет ключ в одном поколении.
func (s *CacheStorage) MatchIn(ctx context.Context, name, key string) (domain.CachedResponse, bool, error) {
	raw, err := s.client.HGet(ctx, s.generationKey(name), key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.CachedResponse{}, false, nil
	}
	if err != nil {
		return domain.CachedResponse{}, false, fmt.Errorf("match %s in %s: %w", key, name, err)
	}
	resp, err := decodeResponse(raw)
	if err != nil {
		return domain.CachedResponse{}, false, err
	}
	return resp, true, nil
}

// Put сохраняет одну запись.
func (s *CacheStorage) Put(ctx context.Context, name, key string, resp domain.CachedResponse) error {
	return s.PutAll(ctx, name, map[string]domain.CachedResponse{key: resp})
}

// PutAll сохраняет набор в MULTI/EXEC: либо все записи, либо ни одной.
func (s *CacheStorage) PutAll(ctx context.Context, name string, entries map[string]domain.CachedResponse) error {
	values := make(map[string]any, len(entries))
	for key, resp := range entries {
		raw, err := encodeResponse(resp)
		if err != nil {
			return err
		}
		values[key] = raw
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAddNX(ctx, s.namesKey(), goredis.Z{Score: float64(s.now().UnixNano()), Member: name})
		if len(values) > 0 {
			pipe.HSet(ctx, s.generationKey(name), values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put into %s: %w", domain.ErrCacheWrite, name, err)
	}
	return nil
}

type wireResponse struct {
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header,omitempty"`
	Body     []byte              `json:"body,omitempty"`
	Type     domain.ResponseType `json:"type"`
	StoredAt time.Time           `json:"stored_at"`
}

func encodeResponse(resp domain.CachedResponse) ([]byte, error) {
	raw, err := json.Marshal(wireResponse{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		Type:     resp.Type,
		StoredAt: resp.StoredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode response: %w", domain.ErrCacheWrite, err)
	}
	return raw, nil
}

func decodeResponse(raw []byte) (domain.CachedResponse, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.CachedResponse{}, fmt.Errorf("decode cached response: %w", err)
	}
	return domain.CachedResponse{
		Status:   wire.Status,
		Header:   http.Header(wire.Header),
		Body:     wire.Body,
		Type:     wire.Type,
		StoredAt: wire.StoredAt,
	}, nil
}

var _ domain.CacheStorage = (*CacheStorage)(nil)
