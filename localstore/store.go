package localstore

import (
	"context"
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
)

// ErrMissing is returned by Get when the key holds no value.
var ErrMissing = errors.New("localstore: key not set")

// Store is a small key/value store scoped to one client.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Factory opens the store of one client.
type Factory func(clientID string) Store

// RedisStore keeps a client's keys under "client:<id>:".
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, clientID string) *RedisStore {
	return &RedisStore{client: client, prefix: "client:" + clientID + ":"}
}

// RedisFactory returns a Factory sharing one connection pool.
func RedisFactory(client *redis.Client) Factory {
	return func(clientID string) Store {
		return NewRedisStore(client, clientID)
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", ErrMissing
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.client.Del(ctx, full...).Err()
}

// MemoryStore is used when LOCAL_STORE=memory and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// MemoryFactory hands out one MemoryStore per client id and keeps it for
// the process lifetime.
func MemoryFactory() Factory {
	var mu sync.Mutex
	stores := make(map[string]*MemoryStore)
	return func(clientID string) Store {
		mu.Lock()
		defer mu.Unlock()
		s, ok := stores[clientID]
		if !ok {
			s = NewMemoryStore()
			stores[clientID] = s
		}
		return s
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrMissing
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}
