package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultRedisPrefix задаёт пространство имён ключей витрины в Redis.
	DefaultRedisPrefix = "ishop:"
	// DefaultRedisTTL задаёт время жизни состояния сессии без обращений.
	DefaultRedisTTL = 30 * 24 * time.Hour
)

// RedisKV хранит состояние сессий в Redis.
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption настраивает RedisKV.
type RedisOption func(*RedisKV)

// WithRedisPrefix задаёт префикс ключей.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisKV) {
		s.prefix = prefix
	}
}

// WithRedisTTL задаёт время жизни ключей; 0 отключает истечение.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisKV) {
		s.ttl = ttl
	}
}

// NewRedisKV создаёт хранилище поверх готового клиента Redis.
func NewRedisKV(client *redis.Client, opts ...RedisOption) *RedisKV {
	s := &RedisKV{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis подключается к Redis по адресу и проверяет соединение.
func DialRedis(ctx context.Context, addr string, opts ...RedisOption) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisKV(client, opts...), nil
}

// Get возвращает значение по ключу.
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set сохраняет значение и продлевает время жизни ключа.
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (s *RedisKV) Close() error {
	return s.client.Close()
}
