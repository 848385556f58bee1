package edge

import (
	"context"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage keeps generations in process memory, one go-cache instance
// per generation, without expiry.
type MemoryStorage struct {
	mu   sync.Mutex
	gens map[string]*memoryCache
}

// NewMemoryStorage returns an empty process-local storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{gens: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.gens[name]
	if !ok {
		// cleanup interval 0: no janitor goroutine
		c = &memoryCache{items: gocache.New(gocache.NoExpiration, 0)}
		s.gens[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.gens[name]
	return ok, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.gens))
	for name := range s.gens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	c, ok := s.gens[name]
	delete(s.gens, name)
	s.mu.Unlock()

	if ok {
		c.items.Flush()
	}
	return ok, nil
}

type memoryCache struct {
	items *gocache.Cache
}

func (c *memoryCache) Match(_ context.Context, key string) (*Entry, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v.(*Entry).Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, e *Entry) error {
	c.items.Set(e.Key, e.Clone(), gocache.NoExpiration)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	_, ok := c.items.Get(key)
	c.items.Delete(key)
	return ok, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	items := c.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
