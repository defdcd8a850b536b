// Package service реализует бизнес-логику витрины: сессии, каталог, корзину и оформление заказа.
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/cart"
	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/order"
	"github.com/mmeshcher/ishop/internal/state"
	"github.com/mmeshcher/ishop/internal/storage"
)

var (
	// ErrNoVenue возвращается, если сессия ещё не вошла в заведение.
	ErrNoVenue = errors.New("venue is not selected")
	// ErrUnknownProduct возвращается, если товара нет в каталоге заведения.
	ErrUnknownProduct = errors.New("unknown product")
)

// Backend описывает контракт API витрины, используемый сервисом.
type Backend interface {
	GetProducts(ctx context.Context, q backend.ProductQuery) ([]model.Product, error)
	GetVenue(ctx context.Context, slug, tableID string) (model.Venue, error)
	GetClientBonus(ctx context.Context, phone, organizationSlug string) (model.ClientBonus, error)
	PostOrder(ctx context.Context, draft model.OrderDraft, organizationSlug string, spotID int64) (model.OrderResponse, error)
	GetOrders(ctx context.Context, q backend.OrdersQuery) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (model.Order, error)
}

// Option настраивает Service.
type Option func(*Service)

// WithLocation задаёт часовой пояс заведений.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithDismissDelay задаёт время показа ошибки оформления заказа.
func WithDismissDelay(d time.Duration) Option {
	return func(s *Service) {
		s.dismiss = d
	}
}

// WithSessionTTL задаёт время простоя, после которого сессия выгружается из памяти.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = d
	}
}

// WithStateRetention задаёт срок хранения состояния неактивных сессий в хранилище.
func WithStateRetention(d time.Duration) Option {
	return func(s *Service) {
		s.retention = d
	}
}

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service содержит реестр активных сессий витрины.
type Service struct {
	kv         storage.KV
	backend    Backend
	logger     *zap.Logger
	location   *time.Location
	dismiss    time.Duration
	sessionTTL time.Duration
	retention  time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService создаёт сервис поверх хранилища состояния и API витрины.
func NewService(kv storage.KV, b Backend, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		kv:         kv,
		backend:    b,
		logger:     logger,
		location:   time.UTC,
		dismiss:    order.DefaultDismissDelay,
		sessionTTL: 24 * time.Hour,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if c, ok := s.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Session возвращает сессию посетителя, загружая её состояние из хранилища при первом обращении.
func (s *Service) Session(ctx context.Context, id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.touch(s.now())
		return sess
	}

	logger := s.logger.With(zap.String("session", id))
	st := state.New(storage.Scope(s.kv, storage.SessionPrefix(id)), logger)
	c := cart.NewStore(st.Cart(ctx), st, logger)

	sess := &Session{
		id:       id,
		svc:      s,
		state:    st,
		cart:     c,
		composer: order.NewComposer(c, st, s.backend, logger, order.WithClock(s.venueNow), order.WithDismissDelay(s.dismiss)),
		logger:   logger,
		catalog:  make(map[int64]model.Product),
		lastSeen: s.now(),
	}
	s.sessions[id] = sess

	return sess
}

// ActiveSessions возвращает количество загруженных сессий.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) venueNow() time.Time {
	return s.now().In(s.location)
}
