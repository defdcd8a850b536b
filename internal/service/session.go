package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/cart"
	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/order"
	"github.com/mmeshcher/ishop/internal/pricing"
	"github.com/mmeshcher/ishop/internal/schedule"
	"github.com/mmeshcher/ishop/internal/state"
	"github.com/mmeshcher/ishop/internal/stock"
)

// Session объединяет состояние, корзину и оформление заказа одного посетителя.
type Session struct {
	id       string
	svc      *Service
	state    *state.Store
	cart     *cart.Store
	composer *order.Composer
	logger   *zap.Logger

	mu       sync.Mutex
	catalog  map[int64]model.Product
	lastSeen time.Time
}

// EnterParams описывает вход в заведение по ссылке.
type EnterParams struct {
	Slug    string
	TableID string
	SpotID  int64
	Pickup  bool
	Promo   *string
	Ref     *string
}

// VenueView описывает заведение с расписанием на сегодня.
type VenueView struct {
	Venue       model.Venue       `json:"venue"`
	Today       schedule.Day      `json:"today"`
	IsOpen      bool              `json:"isOpen"`
	ServiceMode model.ServiceMode `json:"serviceMode"`
	ActiveSpot  int64             `json:"activeSpot"`
}

// CartView описывает корзину для отображения.
type CartView struct {
	Lines    []model.CartLine `json:"items"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Quantity int              `json:"quantity"`
	Locked   bool             `json:"locked"`
}

// AddResult описывает результат добавления товара в корзину.
type AddResult struct {
	Stock stock.Result `json:"stock"`
	Cart  CartView     `json:"cart"`
}

// CheckoutRequest содержит данные формы оформления заказа.
type CheckoutRequest struct {
	Phone     string
	Address   string
	Comment   string
	Name      string
	UsePoints bool
	Points    int64
}

// UserUpdate содержит изменяемые поля данных клиента; nil означает «не менять».
type UserUpdate struct {
	PhoneNumber *string
	Address     *string
	Comment     *string
	Name        *string
	Type        *model.ServiceMode
	ActiveSpot  *int64
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// EnterVenue загружает заведение и настраивает сессию по параметрам ссылки.
// Переход в другое заведение или в заведение, которое сессия забыла, очищает корзину.
func (s *Session) EnterVenue(ctx context.Context, p EnterParams) (VenueView, error) {
	venue, err := s.svc.backend.GetVenue(ctx, p.Slug, p.TableID)
	if err != nil {
		return VenueView{}, err
	}

	prev := s.state.Venue(ctx)
	switched := prev.Slug != "" && !strings.EqualFold(prev.Slug, venue.Slug)
	// Корзина без сохранённого заведения осталась после истечения ключа venue.
	orphaned := prev.Slug == "" && len(s.cart.Lines()) > 0
	if switched || orphaned {
		if err := s.cart.Clear(ctx); err != nil {
			return VenueView{}, fmt.Errorf("switch venue: %w", err)
		}
		s.composer.Reset()
		s.resetCatalog()
		s.logger.Info("venue switched, cart cleared",
			zap.String("from", prev.Slug),
			zap.String("to", venue.Slug),
		)
	}

	s.state.SaveVenue(ctx, venue)

	if p.Promo != nil {
		s.state.SavePromo(ctx, *p.Promo)
	}
	if p.Ref != nil {
		s.state.SaveReferral(ctx, *p.Ref)
	}

	user := s.state.UserData(ctx)
	if p.Pickup {
		user.Type = model.ServiceModePickup
		if p.SpotID > 0 {
			user.ActiveSpot = p.SpotID
		}
	} else {
		user.Type = model.ServiceModeDelivery
	}
	s.state.SaveUserData(ctx, user)

	return s.venueView(venue, user), nil
}

// SaveReferral сохраняет реферальный код из короткой ссылки.
func (s *Session) SaveReferral(ctx context.Context, ref string) {
	s.state.SaveReferral(ctx, ref)
}

// Venue возвращает закешированное заведение сессии.
func (s *Session) Venue(ctx context.Context) (VenueView, error) {
	venue := s.state.Venue(ctx)
	if venue.Slug == "" {
		return VenueView{}, ErrNoVenue
	}
	return s.venueView(venue, s.state.UserData(ctx)), nil
}

// Products запрашивает каталог заведения и обновляет кеш товаров сессии.
func (s *Session) Products(ctx context.Context, category int64, search string) ([]model.Product, error) {
	venue := s.state.Venue(ctx)
	if venue.Slug == "" {
		return nil, ErrNoVenue
	}

	products, err := s.svc.backend.GetProducts(ctx, backend.ProductQuery{
		OrganizationSlug: venue.Slug,
		SpotID:           s.activeSpot(venue, s.state.UserData(ctx)),
		Category:         category,
		Search:           strings.TrimSpace(search),
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, p := range products {
		s.catalog[p.ID] = p
	}
	s.mu.Unlock()

	return products, nil
}

// AddToCart добавляет товар каталога в корзину с учётом остатка.
func (s *Session) AddToCart(ctx context.Context, productID, variantID int64, quantity int) (AddResult, error) {
	product, err := s.product(ctx, productID)
	if err != nil {
		return AddResult{}, err
	}

	line, err := cart.LineFromProduct(product, variantID, quantity)
	if err != nil {
		return AddResult{}, err
	}

	res, err := s.cart.Add(ctx, line)
	if err != nil {
		return AddResult{}, err
	}

	return AddResult{Stock: res, Cart: s.Cart()}, nil
}

// DecrementOrRemove уменьшает количество строки корзины.
func (s *Session) DecrementOrRemove(ctx context.Context, id model.LineID) (CartView, error) {
	if err := s.cart.DecrementOrRemove(ctx, id); err != nil {
		return CartView{}, err
	}
	return s.Cart(), nil
}

// ClearCart очищает корзину.
func (s *Session) ClearCart(ctx context.Context) error {
	return s.cart.Clear(ctx)
}

// Cart возвращает текущее содержимое корзины.
func (s *Session) Cart() CartView {
	return CartView{
		Lines:    s.cart.Lines(),
		Subtotal: s.cart.Subtotal(),
		Quantity: s.cart.Quantity(),
		Locked:   s.cart.Frozen(),
	}
}

// Quote рассчитывает стоимость корзины с учётом бонусного баланса клиента.
func (s *Session) Quote(ctx context.Context, usePoints bool, points int64) pricing.Summary {
	venue := s.state.Venue(ctx)
	user := s.state.UserData(ctx)

	in := pricing.FromVenue(s.cart.Lines(), venue, order.EffectiveMode(venue, user.Type))
	in.AvailablePoints = s.points(ctx, user.PhoneNumber, venue.Slug)
	in.UsePoints = usePoints
	in.SelectedPoints = points

	return pricing.Compute(in)
}

// UserData возвращает сохранённые данные клиента.
func (s *Session) UserData(ctx context.Context) model.UserData {
	return s.state.UserData(ctx)
}

// UpdateUser изменяет данные клиента.
func (s *Session) UpdateUser(ctx context.Context, u UserUpdate) (model.UserData, error) {
	user := s.state.UserData(ctx)

	if u.PhoneNumber != nil {
		user.PhoneNumber = *u.PhoneNumber
	}
	if u.Address != nil {
		user.Address = *u.Address
	}
	if u.Comment != nil {
		user.Comment = *u.Comment
	}
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return model.UserData{}, fmt.Errorf("service mode %d: %w", *u.Type, errInvalidServiceMode)
		}
		user.Type = *u.Type
	}
	if u.ActiveSpot != nil {
		user.ActiveSpot = *u.ActiveSpot
	}

	s.state.SaveUserData(ctx, user)
	return user, nil
}

// Checkout оформляет заказ из текущей корзины.
func (s *Session) Checkout(ctx context.Context, req CheckoutRequest) (order.Outcome, error) {
	r, err := s.orderRequest(ctx, req.Phone)
	if err != nil {
		return order.Outcome{}, err
	}

	r.Address = req.Address
	if strings.TrimSpace(r.Address) == "" {
		r.Address = s.state.UserData(ctx).Address
	}
	r.Comment = req.Comment
	r.Name = req.Name
	r.UsePoints = req.UsePoints
	r.Points = req.Points

	return s.composer.Submit(ctx, r)
}

// Verify подтверждает заказ кодом из SMS.
func (s *Session) Verify(ctx context.Context, code string) (order.Outcome, error) {
	return s.composer.Verify(ctx, code)
}

// RequestBonusCode запрашивает код подтверждения для списания баллов.
func (s *Session) RequestBonusCode(ctx context.Context, points int64) (order.Outcome, error) {
	if points <= 0 {
		return order.Outcome{State: s.composer.View().State}, nil
	}

	r, err := s.orderRequest(ctx, "")
	if err != nil {
		return order.Outcome{}, err
	}

	user := s.state.UserData(ctx)
	r.Address = user.Address
	r.Comment = user.Comment
	r.Points = points

	return s.composer.RequestBonusCode(ctx, r)
}

// OrderState возвращает состояние оформления заказа.
func (s *Session) OrderState() order.View {
	return s.composer.View()
}

// Orders возвращает историю заказов клиента в текущем заведении.
func (s *Session) Orders(ctx context.Context) ([]model.Order, error) {
	venue := s.state.Venue(ctx)
	user := s.state.UserData(ctx)
	if user.PhoneNumber == "" {
		return []model.Order{}, nil
	}

	orders, err := s.svc.backend.GetOrders(ctx, backend.OrdersQuery{
		OrganizationSlug: venue.Slug,
		SpotID:           s.activeSpot(venue, user),
		Phone:            user.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].StatusText = model.StatusKey(orders[i].ServiceMode, orders[i].Status)
	}
	return orders, nil
}

// Order возвращает заказ по идентификатору.
func (s *Session) Order(ctx context.Context, id int64) (model.Order, error) {
	o, err := s.svc.backend.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	o.StatusText = model.StatusKey(o.ServiceMode, o.Status)
	return o, nil
}

var errInvalidServiceMode = errors.New("invalid service mode")

// IsInvalidInput сообщает, что ошибка вызвана некорректными данными клиента.
func IsInvalidInput(err error) bool {
	return errors.Is(err, errInvalidServiceMode) ||
		errors.Is(err, model.ErrInvalidLineID) ||
		errors.Is(err, cart.ErrVariantRequired) ||
		errors.Is(err, cart.ErrUnknownVariant)
}

func (s *Session) orderRequest(ctx context.Context, phone string) (order.Request, error) {
	venue := s.state.Venue(ctx)
	if venue.Slug == "" {
		return order.Request{}, ErrNoVenue
	}

	user := s.state.UserData(ctx)
	if phone == "" {
		phone = user.PhoneNumber
	}

	return order.Request{
		Phone:           phone,
		Mode:            user.Type,
		SpotID:          s.activeSpot(venue, user),
		Venue:           venue,
		AvailablePoints: s.points(ctx, phone, venue.Slug),
	}, nil
}

func (s *Session) venueView(venue model.Venue, user model.UserData) VenueView {
	now := s.svc.venueNow()
	return VenueView{
		Venue:       venue,
		Today:       schedule.Today(venue.Schedules, venue.Schedule, now),
		IsOpen:      schedule.IsOpen(venue, now),
		ServiceMode: order.EffectiveMode(venue, user.Type),
		ActiveSpot:  s.activeSpot(venue, user),
	}
}

func (s *Session) activeSpot(venue model.Venue, user model.UserData) int64 {
	if user.ActiveSpot > 0 {
		return user.ActiveSpot
	}
	return venue.DefaultSpot()
}

// points возвращает доступные баллы клиента; при ошибке API баланс считается нулевым.
func (s *Session) points(ctx context.Context, phone, slug string) int64 {
	phone = strings.TrimSpace(phone)
	if phone == "" || slug == "" {
		return 0
	}

	bonus, err := s.svc.backend.GetClientBonus(ctx, phone, slug)
	if err != nil {
		s.logger.Warn("failed to load client bonus", zap.String("organization", slug), zap.Error(err))
		return 0
	}
	return bonus.Points()
}

func (s *Session) product(ctx context.Context, id int64) (model.Product, error) {
	s.mu.Lock()
	p, ok := s.catalog[id]
	s.mu.Unlock()
	if ok {
		return p, nil
	}

	if _, err := s.Products(ctx, 0, ""); err != nil {
		return model.Product{}, err
	}

	s.mu.Lock()
	p, ok = s.catalog[id]
	s.mu.Unlock()
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %d", ErrUnknownProduct, id)
	}
	return p, nil
}

func (s *Session) resetCatalog() {
	s.mu.Lock()
	s.catalog = make(map[int64]model.Product)
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
