// Package httpapi exposes the order and coupon operations over HTTP. It
// translates between the wire and the domain and holds no business rules.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/souqline/checkout-api/internal/domain/coupon"
	"github.com/souqline/checkout-api/internal/domain/order"
	"github.com/souqline/checkout-api/internal/domain/user"
	"github.com/souqline/checkout-api/pkg/httpmiddleware"
)

// Handler carries the domain services behind the HTTP surface.
type Handler struct {
	orders  *order.Service
	coupons *coupon.Service
	auth    *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, coupons *coupon.Service, auth *Authenticator) *Handler {
	return &Handler{
		orders:  orders,
		coupons: coupons,
		auth:    auth,
	}
}

// Routes builds the chi router for the API. The gateway webhook is the one
// unauthenticated route: the gateway cannot present an API key, and the
// handler is idempotent by design.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())

	r.Post("/webhooks/stripe", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/cart-checkout", h.CartCheckout)
			r.Get("/{orderID}", h.GetOrder)
			r.Post("/{orderID}/payment", h.InitiatePayment)
			r.Put("/{orderID}/cancel", h.CancelOrder)
			r.With(RequireRole(user.RoleDelivery, user.RoleAdmin)).
				Put("/{orderID}/deliver", h.DeliverOrder)
			r.With(RequireRole(user.RoleAdmin)).
				Post("/{orderID}/refund", h.RefundOrder)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Use(RequireRole(user.RoleAdmin))
			r.Post("/", h.CreateCoupon)
			r.Get("/", h.ListCoupons)
			r.Get("/{code}", h.GetCoupon)
			r.Put("/{code}/disable", h.DisableCoupon)
			r.Put("/{code}/enable", h.EnableCoupon)
		})
	})

	return r
}

// errorResponse is the JSON envelope for every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}
