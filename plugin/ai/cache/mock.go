package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockCacheService is a mock implementation of CacheService for testing.
// It records call counts and can be told to fail writes.
type MockCacheService struct {
	mu    sync.Mutex
	store map[string]*cacheEntry

	SetErr error

	Gets, Sets, Invalidations int
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMockCacheService creates a new MockCacheService.
func NewMockCacheService() *MockCacheService {
	return &MockCacheService{store: make(map[string]*cacheEntry)}
}

func (m *MockCacheService) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++

	e, ok := m.store[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *MockCacheService) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.SetErr != nil {
		return m.SetErr
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.store[key] = &cacheEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (m *MockCacheService) Invalidate(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidations++

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		for key := range m.store {
			if strings.HasPrefix(key, prefix) {
				delete(m.store, key)
			}
		}
		return nil
	}
	delete(m.store, pattern)
	return nil
}

// Keys returns the stored keys.
func (m *MockCacheService) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.store))
	for key := range m.store {
		keys = append(keys, key)
	}
	return keys
}

var _ CacheService = (*MockCacheService)(nil)
