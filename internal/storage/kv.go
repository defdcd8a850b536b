// Package storage предоставляет key-value хранилища состояния сессий.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, если ключ отсутствует в хранилище.
var ErrNotFound = errors.New("key not found")

// KV описывает key-value хранилище, в котором значения хранятся как сериализованный JSON.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Scope возвращает хранилище, добавляющее prefix ко всем ключам.
func Scope(kv KV, prefix string) KV {
	return &scoped{kv: kv, prefix: prefix}
}

// SessionPrefix возвращает префикс ключей сессии.
func SessionPrefix(sessionID string) string {
	return "session:" + sessionID + ":"
}

type scoped struct {
	kv     KV
	prefix string
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.kv.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.kv.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.prefix+key)
}
