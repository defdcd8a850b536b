// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/middleware"
	"github.com/mmeshcher/ishop/internal/model"
	"github.com/mmeshcher/ishop/internal/order"
	"github.com/mmeshcher/ishop/internal/pricing"
	"github.com/mmeshcher/ishop/internal/service"
)

// Session определяет операции сессии посетителя, используемые HTTP-обработчиками.
type Session interface {
	EnterVenue(ctx context.Context, p service.EnterParams) (service.VenueView, error)
	SaveReferral(ctx context.Context, ref string)
	Venue(ctx context.Context) (service.VenueView, error)
	Products(ctx context.Context, category int64, search string) ([]model.Product, error)
	Cart() service.CartView
	AddToCart(ctx context.Context, productID, variantID int64, quantity int) (service.AddResult, error)
	DecrementOrRemove(ctx context.Context, id model.LineID) (service.CartView, error)
	ClearCart(ctx context.Context) error
	Quote(ctx context.Context, usePoints bool, points int64) pricing.Summary
	UserData(ctx context.Context) model.UserData
	UpdateUser(ctx context.Context, u service.UserUpdate) (model.UserData, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (order.Outcome, error)
	Verify(ctx context.Context, code string) (order.Outcome, error)
	RequestBonusCode(ctx context.Context, points int64) (order.Outcome, error)
	OrderState() order.View
	Orders(ctx context.Context) ([]model.Order, error)
	Order(ctx context.Context, id int64) (model.Order, error)
}

// Service выдаёт сессию посетителя по идентификатору.
type Service interface {
	Session(ctx context.Context, id string) Session
}

// SessionFunc адаптирует функцию к интерфейсу Service.
type SessionFunc func(ctx context.Context, id string) Session

// Session вызывает f.
func (f SessionFunc) Session(ctx context.Context, id string) Session {
	return f(ctx, id)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service           Service
	logger            *zap.Logger
	sessionMiddleware *middleware.SessionMiddleware
	language          string
	validate          *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware, language string) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:           s,
		logger:            logger,
		sessionMiddleware: sessions,
		language:          language,
		validate:          validate,
	}
}

// EnterVenue открывает заведение по ссылке: стол, точка самовывоза, промокод и реферал.
func (h *Handler) EnterVenue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	p := service.EnterParams{
		Slug:    chi.URLParam(r, "slug"),
		TableID: strings.TrimSpace(q.Get("table")),
		Pickup:  parseBool(q.Get("pickup")),
	}

	if v := q.Get("spot"); v != "" {
		spot, err := strconv.ParseInt(v, 10, 64)
		if err != nil || spot < 0 {
			writeError(w, http.StatusBadRequest, "invalid_spot", "spot must be a non-negative integer")
			return
		}
		p.SpotID = spot
	}
	if q.Has("promo") {
		promo := q.Get("promo")
		p.Promo = &promo
	}
	switch {
	case q.Has("ref"):
		ref := q.Get("ref")
		p.Ref = &ref
	case q.Has("refId"):
		ref := q.Get("refId")
		p.Ref = &ref
	}

	view, err := sess.EnterVenue(r.Context(), p)
	if err != nil {
		h.handleError(w, r, "enter venue", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// SaveReferral сохраняет реферальный код из короткой ссылки и перенаправляет в заведение.
func (h *Handler) SaveReferral(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	sess.SaveReferral(r.Context(), chi.URLParam(r, "ref"))
	http.Redirect(w, r, "/"+chi.URLParam(r, "venue"), http.StatusFound)
}

// GetVenue возвращает заведение сессии с расписанием на сегодня.
func (h *Handler) GetVenue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	view, err := sess.Venue(r.Context())
	if err != nil {
		h.handleError(w, r, "get venue", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// GetProducts возвращает каталог заведения.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var category int64
	if v := r.URL.Query().Get("category"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil || c < 0 {
			writeError(w, http.StatusBadRequest, "invalid_category", "category must be a non-negative integer")
			return
		}
		category = c
	}

	products, err := sess.Products(r.Context(), category, r.URL.Query().Get("search"))
	if err != nil {
		h.handleError(w, r, "get products", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	writeJSON(w, http.StatusOK, products)
}

// GetCart возвращает корзину сессии.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, sess.Cart())
}

type addItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	VariantID int64 `json:"variantId" validate:"gte=0"`
	Quantity  int   `json:"quantity" validate:"gte=0,lte=1000"`
}

// AddCartItem добавляет товар в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	res, err := sess.AddToCart(r.Context(), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		h.handleError(w, r, "add to cart", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// DecrementCartItem уменьшает количество строки корзины или удаляет её.
func (h *Handler) DecrementCartItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	id, err := model.ParseLineID(chi.URLParam(r, "lineID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_line_id", err.Error())
		return
	}

	view, err := sess.DecrementOrRemove(r.Context(), id)
	if err != nil {
		h.handleError(w, r, "decrement cart item", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.ClearCart(r.Context()); err != nil {
		h.handleError(w, r, "clear cart", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetQuote рассчитывает стоимость корзины.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var points int64
	if v := r.URL.Query().Get("points"); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil || p < 0 {
			writeError(w, http.StatusBadRequest, "invalid_points", "points must be a non-negative integer")
			return
		}
		points = p
	}

	writeJSON(w, http.StatusOK, sess.Quote(r.Context(), parseBool(r.URL.Query().Get("usePoints")), points))
}

// GetUser возвращает сохранённые данные клиента.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, sess.UserData(r.Context()))
}

type userRequest struct {
	PhoneNumber *string            `json:"phoneNumber" validate:"omitempty,max=32"`
	Address     *string            `json:"address" validate:"omitempty,max=255"`
	Comment     *string            `json:"comment" validate:"omitempty,max=500"`
	Name        *string            `json:"name" validate:"omitempty,max=100"`
	Type        *model.ServiceMode `json:"type" validate:"omitempty,oneof=1 2 3"`
	ActiveSpot  *int64             `json:"activeSpot" validate:"omitempty,gte=0"`
}

// UpdateUser изменяет данные клиента.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := sess.UpdateUser(r.Context(), service.UserUpdate{
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		Comment:     req.Comment,
		Name:        req.Name,
		Type:        req.Type,
		ActiveSpot:  req.ActiveSpot,
	})
	if err != nil {
		h.handleError(w, r, "update user", err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type checkoutRequest struct {
	Phone     string `json:"phone" validate:"max=32"`
	Address   string `json:"address" validate:"max=255"`
	Comment   string `json:"comment" validate:"max=500"`
	Name      string `json:"name" validate:"max=100"`
	UsePoints bool   `json:"usePoints"`
	Points    int64  `json:"points" validate:"gte=0"`
}

// Checkout оформляет заказ из корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := sess.Checkout(r.Context(), service.CheckoutRequest{
		Phone:     req.Phone,
		Address:   req.Address,
		Comment:   req.Comment,
		Name:      req.Name,
		UsePoints: req.UsePoints,
		Points:    req.Points,
	})
	if err != nil {
		h.handleError(w, r, "checkout", err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,numeric,min=4,max=8"`
}

// VerifyOrder подтверждает заказ кодом из SMS.
func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := sess.Verify(r.Context(), req.Code)
	if err != nil {
		h.handleError(w, r, "verify order", err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type bonusCodeRequest struct {
	Points int64 `json:"points" validate:"gte=0"`
}

// RequestBonusCode запрашивает код подтверждения для списания баллов.
func (h *Handler) RequestBonusCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req bonusCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := sess.RequestBonusCode(r.Context(), req.Points)
	if err != nil {
		h.handleError(w, r, "request bonus code", err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// GetOrderState возвращает состояние оформления заказа.
func (h *Handler) GetOrderState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, sess.OrderState())
}

// GetOrders возвращает историю заказов клиента.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	orders, err := sess.Orders(r.Context())
	if err != nil {
		h.handleError(w, r, "get orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a positive integer")
		return
	}

	o, err := sess.Order(r.Context(), id)
	if err != nil {
		h.handleError(w, r, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (Session, bool) {
	id, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}
	return h.service.Session(r.Context(), id), true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return false
		}

		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Fields: fields})
		return false
	}

	return true
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
