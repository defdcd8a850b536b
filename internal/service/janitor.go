package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/order"
)

// staleDeleter реализуется хранилищами, умеющими удалять давно не обновлявшиеся записи.
type staleDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// RunJanitor периодически выгружает простаивающие сессии и чистит устаревшее состояние.
// Блокируется до отмены ctx.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	evicted := s.evictIdle(s.now())
	if evicted > 0 {
		s.logger.Debug("evicted idle sessions", zap.Int("count", evicted))
	}

	deleter, ok := s.kv.(staleDeleter)
	if !ok || s.retention <= 0 {
		return
	}

	n, err := deleter.DeleteStale(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Warn("failed to delete stale session state", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("deleted stale session state", zap.Int64("rows", n))
	}
}

// evictIdle выгружает сессии, простаивающие дольше sessionTTL. Сессии с заказом в процессе отправки остаются.
func (s *Service) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.seen()) < s.sessionTTL {
			continue
		}
		if sess.composer.View().State == order.StateSubmitting {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted
}
