// Package order собирает заказ из корзины и проводит его через подтверждение телефона.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/cart"
	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/pricing"
	"github.com/mmeshcher/ishop/internal/schedule"
	"github.com/mmeshcher/ishop/internal/validation"
)

// State описывает этап оформления заказа.
type State string

const (
	StateIdle        State = "idle"
	StateSubmitting  State = "submitting"
	StateAwaitingOTP State = "awaiting_otp"
	StateFulfilled   State = "fulfilled"
	StateFailed      State = "failed"
	StateVenueClosed State = "venue_closed"
)

const (
	// DefaultErrorMessage показывается, если из ошибки не удалось извлечь текст.
	DefaultErrorMessage = "Ошибка оформления заказа"
	// DefaultDismissDelay задаёт время показа сообщения об ошибке.
	DefaultDismissDelay = 5 * time.Second
)

var (
	ErrInFlight              = errors.New("order submission already in progress")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrVenueClosed           = errors.New("venue is closed")
	ErrNoPendingVerification = errors.New("no order awaiting phone verification")
)

// ValidationError содержит ошибки полей формы оформления.
type ValidationError struct {
	Fields validation.FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return "invalid order form: " + strings.Join(names, ", ")
}

// SubmitError описывает отказ API при создании заказа.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit order: %s", e.Message)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Submitter отправляет черновик заказа в API.
type Submitter interface {
	PostOrder(ctx context.Context, draft model.OrderDraft, organizationSlug string, spotID int64) (model.OrderResponse, error)
}

// Profile описывает часть состояния сессии, которую читает и пишет оформление заказа.
type Profile interface {
	VerificationHash(ctx context.Context) string
	SaveVerificationHash(ctx context.Context, hash string)
	RefAgent(ctx context.Context) *int64
	Promo(ctx context.Context) string
	SaveUserData(ctx context.Context, user model.UserData)
}

// Request содержит данные формы оформления и контекст заведения.
type Request struct {
	Phone           string
	Address         string
	Comment         string
	Name            string
	Mode            model.ServiceMode
	SpotID          int64
	Venue           model.Venue
	AvailablePoints int64
	UsePoints       bool
	Points          int64
}

// Outcome описывает результат отправки заказа.
type Outcome struct {
	State      State  `json:"state"`
	OrderID    int64  `json:"orderId,omitempty"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

// View описывает состояние оформления для отображения.
type View struct {
	State       State  `json:"state"`
	Error       string `json:"error,omitempty"`
	PaymentURL  string `json:"paymentUrl,omitempty"`
	AwaitingOTP bool   `json:"awaitingOtp"`
}

// Option настраивает Composer.
type Option func(*Composer)

// WithClock задаёт источник текущего времени в часовом поясе заведения.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// WithDismissDelay задаёт время показа сообщения об ошибке.
func WithDismissDelay(d time.Duration) Option {
	return func(c *Composer) {
		c.dismiss = d
	}
}

// Composer ведёт оформление заказа одной сессии.
// Во время отправки корзина заморожена, поэтому ответ всегда применяется
// к тому черновику, который был отправлен.
type Composer struct {
	mu         sync.Mutex
	state      State
	errMsg     string
	failedAt   time.Time
	paymentURL string
	draft      *model.OrderDraft
	pendingOTP bool
	slug       string
	spotID     int64

	cart      *cart.Store
	profile   Profile
	submitter Submitter
	logger    *zap.Logger
	now       func() time.Time
	dismiss   time.Duration
}

// NewComposer создаёт Composer для корзины сессии.
func NewComposer(c *cart.Store, profile Profile, submitter Submitter, logger *zap.Logger, opts ...Option) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}

	comp := &Composer{
		state:     StateIdle,
		cart:      c,
		profile:   profile,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		dismiss:   DefaultDismissDelay,
	}
	for _, opt := range opts {
		opt(comp)
	}
	return comp
}

// Submit проверяет форму и отправляет заказ.
func (c *Composer) Submit(ctx context.Context, req Request) (Outcome, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}

	mode := EffectiveMode(req.Venue, req.Mode)
	if fields := validation.Check(req.Phone, req.Address, mode); fields != nil {
		c.mu.Unlock()
		return Outcome{}, &ValidationError{Fields: fields}
	}

	if len(c.cart.Lines()) == 0 {
		c.mu.Unlock()
		return Outcome{}, ErrEmptyCart
	}

	if !schedule.IsOpen(req.Venue, c.now()) {
		c.state = StateVenueClosed
		c.errMsg = ""
		c.mu.Unlock()
		return Outcome{State: StateVenueClosed}, ErrVenueClosed
	}

	lines := c.cart.Freeze()
	if len(lines) == 0 {
		c.cart.Thaw()
		c.mu.Unlock()
		return Outcome{}, ErrEmptyCart
	}

	summary := pricing.Compute(pricing.Input{
		Lines:             lines,
		ServiceFeePercent: req.Venue.ServiceFeePercent,
		DeliveryFixedFee:  req.Venue.DeliveryFixedFee,
		DeliveryFreeFrom:  req.Venue.DeliveryFreeFrom,
		Mode:              mode,
		AvailablePoints:   req.AvailablePoints,
		UsePoints:         req.UsePoints,
		SelectedPoints:    req.Points,
	})

	draft := c.buildDraft(ctx, req, mode, lines)
	if req.UsePoints {
		draft.UseBonus = true
		bonus := summary.AppliedBonus
		draft.Bonus = &bonus
	}
	draft.Code = c.profile.Promo(ctx)

	c.pendingOTP = false
	c.profile.SaveUserData(ctx, model.UserData{
		PhoneNumber: draft.Phone,
		Address:     strings.TrimSpace(req.Address),
		Comment:     req.Comment,
		Name:        req.Name,
		Type:        req.Mode,
		ActiveSpot:  req.SpotID,
	})

	return c.send(ctx, draft, req.Venue.Slug, req.SpotID)
}

// Verify повторно отправляет сохранённый черновик с кодом подтверждения.
// Неверный код не сбрасывает ожидание: можно ввести код ещё раз.
func (c *Composer) Verify(ctx context.Context, code string) (Outcome, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}
	if !c.pendingOTP || c.draft == nil {
		c.mu.Unlock()
		return Outcome{}, ErrNoPendingVerification
	}

	draft := c.draft.Clone()
	draft.Code = strings.TrimSpace(code)
	draft.Hash = c.profile.VerificationHash(ctx)

	c.cart.Freeze()

	return c.send(ctx, draft, c.slug, c.spotID)
}

// RequestBonusCode отправляет пробный заказ со списанием баллов, чтобы API
// выслал код подтверждения. Неположительное число баллов ничего не делает.
func (c *Composer) RequestBonusCode(ctx context.Context, req Request) (Outcome, error) {
	if req.Points <= 0 {
		return Outcome{State: c.View().State}, nil
	}

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return Outcome{}, ErrInFlight
	}

	lines := c.cart.Freeze()
	if len(lines) == 0 {
		c.cart.Thaw()
		c.mu.Unlock()
		return Outcome{}, ErrEmptyCart
	}

	mode := EffectiveMode(req.Venue, req.Mode)
	summary := pricing.Compute(pricing.Input{
		Lines:             lines,
		ServiceFeePercent: req.Venue.ServiceFeePercent,
		DeliveryFixedFee:  req.Venue.DeliveryFixedFee,
		DeliveryFreeFrom:  req.Venue.DeliveryFreeFrom,
		Mode:              mode,
		AvailablePoints:   req.AvailablePoints,
	})

	draft := c.buildDraft(ctx, req, mode, lines)
	c.pendingOTP = false
	bonus := min(req.Points, summary.MaxUsablePoints)
	draft.UseBonus = true
	draft.Bonus = &bonus

	return c.send(ctx, draft, req.Venue.Slug, req.SpotID)
}

// View возвращает текущее состояние. Сообщение об ошибке исчезает по истечении задержки показа.
func (c *Composer) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateFailed && c.now().Sub(c.failedAt) >= c.dismiss {
		c.state = StateIdle
		if c.pendingOTP {
			c.state = StateAwaitingOTP
		}
		c.errMsg = ""
	}

	return View{
		State:       c.state,
		Error:       c.errMsg,
		PaymentURL:  c.paymentURL,
		AwaitingOTP: c.pendingOTP && c.state != StateSubmitting,
	}
}

// Reset возвращает оформление в исходное состояние, если заказ не отправляется.
func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return
	}
	c.state = StateIdle
	c.errMsg = ""
	c.paymentURL = ""
	c.draft = nil
	c.pendingOTP = false
}

// EffectiveMode возвращает канал выдачи заказа: заказ за столом всегда оформляется в зале.
func EffectiveMode(venue model.Venue, selected model.ServiceMode) model.ServiceMode {
	if venue.HasTable() {
		return model.ServiceModeDineIn
	}
	if !selected.Valid() {
		return model.ServiceModePickup
	}
	return selected
}

func (c *Composer) buildDraft(ctx context.Context, req Request, mode model.ServiceMode, lines []model.CartLine) model.OrderDraft {
	products := make([]model.OrderLine, 0, len(lines))
	for _, l := range lines {
		ol := model.OrderLine{Product: l.ID.ProductID, Count: l.Quantity}
		if l.ID.HasVariant() {
			variant := l.ID.VariantID
			ol.Modificator = &variant
		}
		products = append(products, ol)
	}

	draft := model.OrderDraft{
		Phone:            validation.NormalizePhone(req.Phone),
		Comment:          req.Comment,
		ServiceMode:      mode,
		Spot:             req.SpotID,
		OrganizationSlug: req.Venue.Slug,
		RefAgent:         c.profile.RefAgent(ctx),
		Hash:             c.profile.VerificationHash(ctx),
		OrderProducts:    products,
	}
	if mode == model.ServiceModeDelivery {
		draft.Address = strings.TrimSpace(req.Address)
	}

	return draft
}

// send вызывается с захваченным c.mu и замороженной корзиной; мьютекс освобождается на время запроса.
func (c *Composer) send(ctx context.Context, draft model.OrderDraft, slug string, spotID int64) (Outcome, error) {
	retained := draft.Clone()
	c.draft = &retained
	c.slug = slug
	c.spotID = spotID
	c.state = StateSubmitting
	c.errMsg = ""
	c.paymentURL = ""
	c.mu.Unlock()

	resp, err := c.submitter.PostOrder(ctx, draft, slug, spotID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cart.Thaw()

	if err != nil {
		msg := ErrorMessage(err)
		c.logger.Warn("order submission failed",
			zap.String("organization", slug),
			zap.String("message", msg),
			zap.Error(err),
		)
		c.state = StateFailed
		c.errMsg = msg
		c.failedAt = c.now()
		return Outcome{State: StateFailed}, &SubmitError{Message: msg, Err: err}
	}

	switch {
	case resp.PaymentURL != "":
		c.state = StateFulfilled
		c.paymentURL = resp.PaymentURL
		c.draft = nil
		c.pendingOTP = false
		if err := c.cart.Clear(ctx); err != nil {
			c.logger.Error("failed to clear cart after order", zap.Error(err))
		}
		c.logger.Info("order accepted", zap.String("organization", slug), zap.Int64("order_id", resp.ID))
	case resp.PhoneVerificationHash != "":
		c.profile.SaveVerificationHash(ctx, resp.PhoneVerificationHash)
		c.state = StateAwaitingOTP
		c.pendingOTP = true
	default:
		c.state = StateIdle
		c.pendingOTP = false
	}

	return Outcome{State: c.state, OrderID: resp.ID, PaymentURL: resp.PaymentURL}, nil
}

// ErrorMessage извлекает текст ошибки для клиента: поле error ответа, поле detail,
// текст ответа, сообщение ошибки, иначе текст по умолчанию.
// Для сетевых ошибок адрес запроса в сообщение не попадает.
func ErrorMessage(err error) string {
	if err == nil {
		return DefaultErrorMessage
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Message(); msg != "" {
			return msg
		}
		return apiErr.Error()
	}

	msg := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		msg = urlErr.Err.Error()
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
