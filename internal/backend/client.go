// Package backend предоставляет клиент REST API витрины ishop.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/ishop/internal/model"
)

// DefaultBaseURL задаёт адрес публичного API витрины.
const DefaultBaseURL = "https://ishop.kg/api/"

const maxErrorBody = 4 << 10

// Client инкапсулирует HTTP-взаимодействие с API витрины.
// GET-запросы повторяются с экспоненциальной задержкой, создание заказа отправляется один раз.
type Client struct {
	baseURL  string
	language string
	http     *retryablehttp.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithRetryMax задаёт число повторов GET-запросов.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

// WithRetryWait задаёт границы задержки между повторами.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithTimeout задаёт таймаут одного HTTP-запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.HTTPClient.Timeout = d
	}
}

// WithDefaultLanguage задаёт Accept-Language для запросов без языка в контексте.
func WithDefaultLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// NewClient создаёт клиент API по указанному адресу.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = strings.TrimRight(DefaultBaseURL, "/")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.RetryMax = 3
	rc.Logger = leveledLogger{logger.Sugar()}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL:  base,
		language: "ru",
		http:     rc,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ProductQuery описывает фильтры каталога.
type ProductQuery struct {
	OrganizationSlug string
	SpotID           int64
	Category         int64
	Search           string
}

// OrdersQuery описывает фильтры истории заказов.
type OrdersQuery struct {
	OrganizationSlug string
	SpotID           int64
	Phone            string
}

// GetProducts запрашивает каталог заведения.
func (c *Client) GetProducts(ctx context.Context, q ProductQuery) ([]model.Product, error) {
	params := url.Values{}
	if q.Category > 0 {
		params.Set("category", strconv.FormatInt(q.Category, 10))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.SpotID > 0 {
		params.Set("spotId", strconv.FormatInt(q.SpotID, 10))
	}
	if q.OrganizationSlug != "" {
		params.Set("organizationSlug", q.OrganizationSlug)
	}

	var products []model.Product
	if err := c.get(ctx, "products/", params, &products); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return products, nil
}

// GetVenue запрашивает заведение; с tableID ответ содержит данные стола.
func (c *Client) GetVenue(ctx context.Context, slug, tableID string) (model.Venue, error) {
	path := "organizations/" + url.PathEscape(slug) + "/"
	if tableID != "" {
		path += "table/" + url.PathEscape(tableID) + "/"
	}

	venue := model.DefaultVenue()
	if err := c.get(ctx, path, nil, &venue); err != nil {
		return model.Venue{}, fmt.Errorf("get venue %q: %w", slug, err)
	}
	if venue.ColorTheme == "" {
		venue.ColorTheme = model.DefaultColorTheme
	}
	return venue, nil
}

// GetClientBonus запрашивает бонусный баланс клиента в заведении.
func (c *Client) GetClientBonus(ctx context.Context, phone, organizationSlug string) (model.ClientBonus, error) {
	params := url.Values{}
	params.Set("phone", phone)
	if organizationSlug != "" {
		params.Set("organization_slug", organizationSlug)
	}

	var bonus model.ClientBonus
	if err := c.get(ctx, "client/bonus", params, &bonus); err != nil {
		return model.ClientBonus{}, fmt.Errorf("get client bonus: %w", err)
	}
	return bonus, nil
}

// GetOrders запрашивает историю заказов клиента.
func (c *Client) GetOrders(ctx context.Context, q OrdersQuery) ([]model.Order, error) {
	params := url.Values{}
	if q.OrganizationSlug != "" {
		params.Set("organizationSlug", q.OrganizationSlug)
	}
	if q.SpotID > 0 {
		params.Set("spotId", strconv.FormatInt(q.SpotID, 10))
	}
	if q.Phone != "" {
		params.Set("phone", q.Phone)
	}

	var orders []model.Order
	if err := c.get(ctx, "orders/", params, &orders); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return orders, nil
}

// GetOrder запрашивает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	var order model.Order
	if err := c.get(ctx, "orders/"+strconv.FormatInt(id, 10)+"/", nil, &order); err != nil {
		return model.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return order, nil
}

// PostOrder создаёт заказ. Запрос не повторяется: создание заказа не идемпотентно.
func (c *Client) PostOrder(ctx context.Context, draft model.OrderDraft, organizationSlug string, spotID int64) (model.OrderResponse, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return model.OrderResponse{}, fmt.Errorf("encode order: %w", err)
	}

	params := url.Values{}
	params.Set("organizationSlug", organizationSlug)
	if spotID > 0 {
		params.Set("spotId", strconv.FormatInt(spotID, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("orders/", params), bytes.NewReader(body))
	if err != nil {
		return model.OrderResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(ctx, req.Header)

	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return model.OrderResponse{}, fmt.Errorf("post order: %w", err)
	}
	defer resp.Body.Close()

	var result model.OrderResponse
	if err := decode(resp, &result); err != nil {
		return model.OrderResponse{}, fmt.Errorf("post order: %w", err)
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, params), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	return decode(resp, dst)
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) setHeaders(ctx context.Context, h http.Header) {
	h.Set("Accept", "application/json")
	lang := LanguageFrom(ctx)
	if lang == "" {
		lang = c.language
	}
	if lang != "" {
		h.Set("Accept-Language", lang)
	}
}

func decode(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
