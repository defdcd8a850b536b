package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/cart"
	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/order"
	"github.com/mmeshcher/ishop/internal/state"
	"github.com/mmeshcher/ishop/internal/storage"
)

type stubBackend struct {
	mu sync.Mutex

	venues      map[string]model.Venue
	products    []model.Product
	productsErr error
	bonus       model.ClientBonus
	bonusErr    error
	orderResp   model.OrderResponse
	orderErr    error
	orders      []model.Order

	productQueries []backend.ProductQuery
	drafts         []model.OrderDraft
}

func (b *stubBackend) GetProducts(ctx context.Context, q backend.ProductQuery) ([]model.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.productQueries = append(b.productQueries, q)
	return b.products, b.productsErr
}

func (b *stubBackend) GetVenue(ctx context.Context, slug, tableID string) (model.Venue, error) {
	v, ok := b.venues[slug]
	if !ok {
		return model.Venue{}, &backend.APIError{StatusCode: 404}
	}
	if tableID != "" {
		v.Table = model.Table{ID: 1, TableNum: tableID}
	}
	return v, nil
}

func (b *stubBackend) GetClientBonus(ctx context.Context, phone, organizationSlug string) (model.ClientBonus, error) {
	return b.bonus, b.bonusErr
}

func (b *stubBackend) PostOrder(ctx context.Context, draft model.OrderDraft, organizationSlug string, spotID int64) (model.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts = append(b.drafts, draft)
	return b.orderResp, b.orderErr
}

func (b *stubBackend) GetOrders(ctx context.Context, q backend.OrdersQuery) ([]model.Order, error) {
	return b.orders, nil
}

func (b *stubBackend) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	for _, o := range b.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Order{}, &backend.APIError{StatusCode: 404}
}

func newStubBackend() *stubBackend {
	spot := int64(4)
	return &stubBackend{
		venues: map[string]model.Venue{
			"cafe": {
				Slug:                "cafe",
				Schedule:            "00:00-00:00",
				ServiceFeePercent:   decimal.NewFromInt(10),
				DeliveryFixedFee:    decimal.NewFromInt(150),
				DeliveryFreeFrom:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
				DefaultDeliverySpot: &spot,
			},
			"bar": {Slug: "bar", Schedule: "00:00-00:00"},
		},
		products: []model.Product{
			{ID: 7, Name: "Суп", Price: decimal.NewFromInt(300), Quantity: 3},
			{ID: 10, Name: "Пицца", Price: decimal.NewFromInt(500), Quantity: 5, Variants: []model.Variant{
				{ID: 2, Name: "B", Price: decimal.NewFromInt(650)},
			}},
		},
	}
}

func newTestService(b *stubBackend) *Service {
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	return NewService(storage.NewMemoryKV(), b, nil, WithClock(func() time.Time { return now }))
}

func TestEnterVenue_SetsModeAndCapturesCodes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newStubBackend())
	sess := svc.Session(ctx, "s1")

	promo, ref := "SALE", "17"
	view, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe", Pickup: true, SpotID: 9, Promo: &promo, Ref: &ref})
	require.NoError(t, err)

	assert.Equal(t, model.ServiceModePickup, view.ServiceMode)
	assert.Equal(t, int64(9), view.ActiveSpot)
	assert.True(t, view.IsOpen)
	assert.Equal(t, "SALE", sess.state.Promo(ctx))
	require.NotNil(t, sess.state.RefAgent(ctx))

	view, err = sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceModeDelivery, view.ServiceMode)

	view, err = sess.EnterVenue(ctx, EnterParams{Slug: "cafe", TableID: "12"})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceModeDineIn, view.ServiceMode)
}

func TestEnterVenue_UnknownVenue(t *testing.T) {
	ctx := context.Background()
	sess := newTestService(newStubBackend()).Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "nope"})
	var apiErr *backend.APIError
	assert.True(t, errors.As(err, &apiErr))

	_, err = sess.Venue(ctx)
	assert.ErrorIs(t, err, ErrNoVenue)
}

func TestEnterVenue_SwitchClearsCart(t *testing.T) {
	ctx := context.Background()
	sess := newTestService(newStubBackend()).Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 1)
	require.NoError(t, err)

	_, err = sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Cart().Quantity)

	_, err = sess.EnterVenue(ctx, EnterParams{Slug: "bar"})
	require.NoError(t, err)
	assert.Zero(t, sess.Cart().Quantity)
}

func TestEnterVenue_ForgottenVenueClearsCart(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newStubBackend())
	sess := svc.Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 1)
	require.NoError(t, err)

	require.NoError(t, svc.kv.Delete(ctx, storage.SessionPrefix("s1")+state.KeyVenue))

	_, err = sess.EnterVenue(ctx, EnterParams{Slug: "bar"})
	require.NoError(t, err)
	assert.Zero(t, sess.Cart().Quantity)

	view, err := sess.Venue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bar", view.Venue.Slug)
}

func TestAddToCart(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	sess := newTestService(b).Session(ctx, "s1")

	_, err := sess.AddToCart(ctx, 7, 0, 1)
	assert.ErrorIs(t, err, ErrNoVenue)

	_, err = sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)

	res, err := sess.AddToCart(ctx, 7, 0, 5)
	require.NoError(t, err)
	assert.True(t, res.Stock.Clamped)
	assert.Equal(t, 3, res.Cart.Quantity)
	require.Len(t, b.productQueries, 1)
	assert.Equal(t, "cafe", b.productQueries[0].OrganizationSlug)
	assert.Equal(t, int64(4), b.productQueries[0].SpotID)

	_, err = sess.AddToCart(ctx, 10, 0, 1)
	assert.ErrorIs(t, err, cart.ErrVariantRequired)
	assert.True(t, IsInvalidInput(err))

	res, err = sess.AddToCart(ctx, 10, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "10,2", res.Cart.Lines[1].ID.String())
	assert.Len(t, b.productQueries, 1, "catalog must be served from cache")

	_, err = sess.AddToCart(ctx, 99, 0, 1)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestCartSurvivesSessionReload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newStubBackend())
	sess := svc.Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 10, 2, 2)
	require.NoError(t, err)

	svc.sessionTTL = time.Nanosecond
	svc.now = func() time.Time { return time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC) }
	assert.Equal(t, 1, svc.evictIdle(svc.now()))
	assert.Zero(t, svc.ActiveSessions())

	reloaded := svc.Session(ctx, "s1")
	assert.NotSame(t, sess, reloaded)
	view := reloaded.Cart()
	require.Len(t, view.Lines, 1)
	assert.Equal(t, model.LineID{ProductID: 10, VariantID: 2}, view.Lines[0].ID)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(1300)))
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	b.bonus = model.ClientBonus{Bonus: decimal.RequireFromString("500.9")}
	sess := newTestService(b).Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 1)
	require.NoError(t, err)

	q := sess.Quote(ctx, true, 1000)
	assert.Zero(t, q.MaxUsablePoints, "no phone means no balance lookup")
	assert.True(t, q.Total.Equal(decimal.NewFromInt(480)))
	assert.True(t, q.FreeDeliveryHint)

	phone := "996700123456"
	_, err = sess.UpdateUser(ctx, UserUpdate{PhoneNumber: &phone})
	require.NoError(t, err)

	q = sess.Quote(ctx, true, 1000)
	assert.Equal(t, int64(480), q.MaxUsablePoints)
	assert.Equal(t, int64(480), q.AppliedBonus)
	assert.True(t, q.DisplayTotal.IsZero())

	b.bonusErr = errors.New("timeout")
	q = sess.Quote(ctx, true, 1000)
	assert.Zero(t, q.MaxUsablePoints)
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	sess := newTestService(newStubBackend()).Session(ctx, "s1")

	bad := model.ServiceMode(9)
	_, err := sess.UpdateUser(ctx, UserUpdate{Type: &bad})
	assert.True(t, IsInvalidInput(err))

	addr := "Toktogula 1"
	mode := model.ServiceModeDelivery
	user, err := sess.UpdateUser(ctx, UserUpdate{Address: &addr, Type: &mode})
	require.NoError(t, err)
	assert.Equal(t, addr, user.Address)
	assert.Equal(t, user, sess.UserData(ctx))
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	b.orderResp = model.OrderResponse{ID: 5, PaymentURL: "https://pay.example/5"}
	sess := newTestService(b).Session(ctx, "s1")

	_, err := sess.Checkout(ctx, CheckoutRequest{Phone: "996700123456"})
	assert.ErrorIs(t, err, ErrNoVenue)

	_, err = sess.EnterVenue(ctx, EnterParams{Slug: "cafe", Pickup: true, SpotID: 2})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 2)
	require.NoError(t, err)

	out, err := sess.Checkout(ctx, CheckoutRequest{Phone: "+996 700 123 456", Comment: "без лука"})
	require.NoError(t, err)
	assert.Equal(t, order.StateFulfilled, out.State)
	assert.Equal(t, "https://pay.example/5", out.PaymentURL)

	require.Len(t, b.drafts, 1)
	assert.Equal(t, int64(2), b.drafts[0].Spot)
	assert.Equal(t, "cafe", b.drafts[0].OrganizationSlug)
	assert.Equal(t, "без лука", b.drafts[0].Comment)
	assert.Zero(t, sess.Cart().Quantity)
	assert.Equal(t, "996700123456", sess.UserData(ctx).PhoneNumber)
	assert.Equal(t, order.StateFulfilled, sess.OrderState().State)
}

func TestCheckout_DeliveryUsesSavedAddress(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	b.orderResp = model.OrderResponse{ID: 6, PaymentURL: "https://pay.example/6"}
	sess := newTestService(b).Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe"})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 1)
	require.NoError(t, err)

	phone, addr := "996700123456", "Toktogula 1"
	_, err = sess.UpdateUser(ctx, UserUpdate{PhoneNumber: &phone, Address: &addr})
	require.NoError(t, err)

	out, err := sess.Checkout(ctx, CheckoutRequest{Address: "  "})
	require.NoError(t, err)
	assert.Equal(t, order.StateFulfilled, out.State)

	require.Len(t, b.drafts, 1)
	assert.Equal(t, model.ServiceModeDelivery, b.drafts[0].ServiceMode)
	assert.Equal(t, "Toktogula 1", b.drafts[0].Address)
	assert.Equal(t, phone, b.drafts[0].Phone)
}

func TestRequestBonusCodeAndVerify(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	b.bonus = model.ClientBonus{Bonus: decimal.NewFromInt(50)}
	b.orderResp = model.OrderResponse{PhoneVerificationHash: "h1"}
	sess := newTestService(b).Session(ctx, "s1")

	_, err := sess.EnterVenue(ctx, EnterParams{Slug: "cafe", Pickup: true})
	require.NoError(t, err)
	phone := "996700123456"
	_, err = sess.UpdateUser(ctx, UserUpdate{PhoneNumber: &phone})
	require.NoError(t, err)
	_, err = sess.AddToCart(ctx, 7, 0, 1)
	require.NoError(t, err)

	out, err := sess.RequestBonusCode(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, order.StateIdle, out.State)
	assert.Empty(t, b.drafts)

	out, err = sess.RequestBonusCode(ctx, 80)
	require.NoError(t, err)
	assert.Equal(t, order.StateAwaitingOTP, out.State)
	require.Len(t, b.drafts, 1)
	assert.Equal(t, int64(50), *b.drafts[0].Bonus)
	assert.Equal(t, phone, b.drafts[0].Phone)

	b.orderResp = model.OrderResponse{ID: 9, PaymentURL: "https://pay.example/9"}
	out, err = sess.Verify(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, order.StateFulfilled, out.State)
	assert.Equal(t, "h1", b.drafts[1].Hash)
	assert.Equal(t, "123456", b.drafts[1].Code)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	b := newStubBackend()
	b.orders = []model.Order{
		{ID: 1, ServiceMode: model.ServiceModeDelivery, Status: model.OrderStatusAccepted},
		{ID: 2, ServiceMode: model.ServiceModeDineIn, Status: model.OrderStatusPending},
	}
	sess := newTestService(b).Session(ctx, "s1")

	orders, err := sess.Orders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	phone := "996700123456"
	_, err = sess.UpdateUser(ctx, UserUpdate{PhoneNumber: &phone})
	require.NoError(t, err)

	orders, err = sess.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "orderStatus.delivery", orders[0].StatusText)
	assert.Equal(t, "orderStatus.accepted", orders[1].StatusText)

	o, err := sess.Order(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "orderStatus.accepted", o.StatusText)
}

type staleKV struct {
	*storage.MemoryKV
	before time.Time
	calls  int
}

func (k *staleKV) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	k.calls++
	k.before = before
	return 3, nil
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	kv := &staleKV{MemoryKV: storage.NewMemoryKV()}

	svc := NewService(kv, newStubBackend(), nil,
		WithClock(func() time.Time { return now }),
		WithSessionTTL(time.Hour),
		WithStateRetention(48*time.Hour),
	)
	svc.Session(ctx, "old")
	now = now.Add(2 * time.Hour)
	svc.Session(ctx, "fresh")

	svc.sweep(ctx)

	assert.Equal(t, 1, svc.ActiveSessions())
	assert.Equal(t, 1, kv.calls)
	assert.Equal(t, now.Add(-48*time.Hour), kv.before)
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	svc := newTestService(newStubBackend())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.RunJanitor(ctx, time.Millisecond)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
