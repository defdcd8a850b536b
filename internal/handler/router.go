package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/ishop/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.sessionMiddleware.Middleware)
	r.Use(custommiddleware.Language(h.language))

	r.Get("/r/{venue}/{ref}", h.SaveReferral)

	r.Route("/api", func(r chi.Router) {
		r.Post("/venues/{slug}/enter", h.EnterVenue)
		r.Get("/venue", h.GetVenue)
		r.Get("/products", h.GetProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Delete("/items/{lineID}", h.DecrementCartItem)
			r.Get("/quote", h.GetQuote)
		})

		r.Get("/user", h.GetUser)
		r.Put("/user", h.UpdateUser)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/", h.GetOrders)
			r.Post("/verify", h.VerifyOrder)
			r.Post("/bonus-code", h.RequestBonusCode)
			r.Get("/state", h.GetOrderState)
			r.Get("/{id}", h.GetOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
