// Package store is the small keyed byte store behind chat transcripts and
// settings. It is backed by memory or by redis.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/core/secret"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open returns a redis store for a non-empty URL and a memory store otherwise.
func Open(ctx context.Context, url string) (Store, error) {
	if url == "" {
		logx.Log.Debug().Msg("using in-memory store")
		return NewMemoryStore(), nil
	}
	s, err := NewRedisStore(ctx, url)
	if err != nil {
		logx.Log.Error().Err(err).Str("url", secret.MaskURL(url)).Msg("redis store unavailable")
		return nil, err
	}
	logx.Log.Info().Str("url", secret.MaskURL(url)).Msg("using redis store")
	return s, nil
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) Close() error { return nil }
