package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
)

type cacheGeneration struct {
	name    string
	entries map[string]domain.CachedResponse
}

// CacheStorage реализует domain.CacheStorage в памяти.
// Поколения хранятся в порядке создания.
type CacheStorage struct {
	mu          sync.RWMutex
	generations []*cacheGeneration
	failPut     error
}

// NewCacheStorage создаёт пустой набор поколений.
func NewCacheStorage() *CacheStorage {
	return &CacheStorage{}
}

// FailPuts заставляет Put и PutAll возвращать ошибку; nil снимает сбой.
func (s *CacheStorage) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = err
}

// Names возвращает имена поколений.
func (s *CacheStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.generations))
	for _, g := range s.generations {
		names = append(names, g.name)
	}
	return names, nil
}

// Delete удаляет поколение.
func (s *CacheStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.generations {
		if g.name == name {
			s.generations = append(s.generations[:i], s.generations[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Match ищет ключ во всех поколениях.
func (s *CacheStorage) Match(_ context.Context, key string) (domain.CachedResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.generations {
		if resp, ok := g.entries[key]; ok {
			return resp.Clone(), true, nil
		}
	}
	return domain.CachedResponse{}, false, nil
}

// MatchIn ищет ключ в одном поколении.
func (s *CacheStorage) MatchIn(_ context.Context, name, key string) (domain.CachedResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.find(name)
	if g == nil {
		return domain.CachedResponse{}, false, nil
	}
	resp, ok := g.entries[key]
	if !ok {
		return domain.CachedResponse{}, false, nil
	}
	return resp.Clone(), true, nil
}

// Put сохраняет одну запись.
func (s *CacheStorage) Put(_ context.Context, name, key string, resp domain.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut != nil {
		return s.failPut
	}
	s.open(name).entries[key] = resp.Clone()
	return nil
}

// PutAll сохраняет набор целиком под одной блокировкой.
func (s *CacheStorage) PutAll(_ context.Context, name string, entries map[string]domain.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut != nil {
		return s.failPut
	}
	g := s.open(name)
	for key, resp := range entries {
		g.entries[key] = resp.Clone()
	}
	return nil
}

func (s *CacheStorage) find(name string) *cacheGeneration {
	for _, g := range s.generations {
		if g.name == name {
			return g
		}
	}
	return nil
}

func (s *CacheStorage) open(name string) *cacheGeneration {
	if g := s.find(name); g != nil {
		return g
	}
	g := &cacheGeneration{name: name, entries: make(map[string]domain.CachedResponse)}
	s.generations = append(s.generations, g)
	return g
}

var _ domain.CacheStorage = (*CacheStorage)(nil)
