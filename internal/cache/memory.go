package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache with expiry
type Memory struct {
	items *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Memory{items: gocache.New(ttl, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return Entry{}, ErrMiss
	}
	return v.(Entry), nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.items.SetDefault(key, e)
	return nil
}

// Len returns the number of unexpired entries
func (m *Memory) Len() int {
	return m.items.ItemCount()
}
