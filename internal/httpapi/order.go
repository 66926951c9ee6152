package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/souqline/checkout-api/internal/domain/order"
	"github.com/souqline/checkout-api/internal/domain/pricing"
)

type addressPayload struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	ProductID     string         `json:"product"`
	Quantity      int            `json:"quantity"`
	CouponCode    string         `json:"couponCode,omitempty"`
	PaymentMethod string         `json:"paymentMethod"`
	Shipping      addressPayload `json:"shipping"`
	PhoneNumbers  []string       `json:"phoneNumbers"`
}

type cartCheckoutRequest struct {
	CouponCode    string         `json:"couponCode,omitempty"`
	PaymentMethod string         `json:"paymentMethod"`
	Shipping      addressPayload `json:"shipping"`
	PhoneNumbers  []string       `json:"phoneNumbers"`
}

type orderItemPayload struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID            string             `json:"id"`
	Items         []orderItemPayload `json:"items"`
	Shipping      addressPayload     `json:"shipping"`
	PhoneNumbers  []string           `json:"phoneNumbers"`
	ShippingPrice float64            `json:"shippingPrice"`
	TotalPrice    float64            `json:"totalPrice"`
	CouponCode    string             `json:"couponCode,omitempty"`
	PaymentMethod string             `json:"paymentMethod"`
	Status        string             `json:"status"`
	IsPaid        bool               `json:"isPaid"`
	PaidAt        *time.Time         `json:"paidAt,omitempty"`
	IsDelivered   bool               `json:"isDelivered"`
	DeliveredAt   *time.Time         `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type paymentResponse struct {
	CheckoutSessionID string `json:"checkoutSessionId"`
	PaymentIntentID   string `json:"paymentIntentId"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemPayload, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemPayload{
			ProductID: item.ProductID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			Quantity:  item.Quantity,
		}
	}
	return orderResponse{
		ID:    o.ID,
		Items: items,
		Shipping: addressPayload{
			Address:    o.Shipping.Address,
			City:       o.Shipping.City,
			PostalCode: o.Shipping.PostalCode,
			Country:    o.Shipping.Country,
		},
		PhoneNumbers:  o.PhoneNumbers,
		ShippingPrice: o.ShippingPrice.InexactFloat64(),
		TotalPrice:    o.TotalPrice.InexactFloat64(),
		CouponCode:    o.CouponCode,
		PaymentMethod: string(o.PaymentMethod),
		Status:        string(o.Status),
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt,
	}
}

// CreateOrder handles POST /orders: a single-product order for the
// authenticated user.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, pricing.ErrInvalidQuantity.Error())
		return
	}
	method, err := order.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		User:          *u,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		CouponCode:    req.CouponCode,
		PaymentMethod: method,
		Shipping:      toAddress(req.Shipping),
		PhoneNumbers:  req.PhoneNumbers,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// CartCheckout handles POST /orders/cart-checkout: converts the user's
// persisted cart into an order.
func (h *Handler) CartCheckout(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	var req cartCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	method, err := order.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	o, err := h.orders.ConvertCart(r.Context(), order.ConvertCartRequest{
		User:          *u,
		CouponCode:    req.CouponCode,
		PaymentMethod: method,
		Shipping:      toAddress(req.Shipping),
		PhoneNumbers:  req.PhoneNumbers,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder handles GET /orders/{orderID}. Owners and staff only.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	o, err := h.orders.GetForUser(r.Context(), chi.URLParam(r, "orderID"), *u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// InitiatePayment handles POST /orders/{orderID}/payment: builds the gateway
// checkout session and payment intent for a pending order.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	refs, err := h.orders.InitiatePayment(r.Context(), chi.URLParam(r, "orderID"), *u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{
		CheckoutSessionID: refs.CheckoutSessionID,
		PaymentIntentID:   refs.PaymentIntentID,
	})
}

// CancelOrder handles PUT /orders/{orderID}/cancel for the order's owner.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderID"), *u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// DeliverOrder handles PUT /orders/{orderID}/deliver for delivery staff.
func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	o, err := h.orders.Deliver(r.Context(), chi.URLParam(r, "orderID"), *u)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RefundOrder handles POST /orders/{orderID}/refund for admins.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Refund(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func toAddress(p addressPayload) order.Address {
	return order.Address{
		Address:    p.Address,
		City:       p.City,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}
