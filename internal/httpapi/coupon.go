package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/coupon"
)

type grantPayload struct {
	UserID   string `json:"userId"`
	MaxUsage int    `json:"maxUsage"`
}

type createCouponRequest struct {
	Code     string          `json:"code"`
	Kind     string          `json:"kind"`
	Amount   decimal.Decimal `json:"amount"`
	FromDate time.Time       `json:"fromDate"`
	ToDate   time.Time       `json:"toDate"`
	Grants   []grantPayload  `json:"grants"`
}

type couponResponse struct {
	Code       string     `json:"code"`
	Kind       string     `json:"kind"`
	Amount     float64    `json:"amount"`
	FromDate   time.Time  `json:"fromDate"`
	ToDate     time.Time  `json:"toDate"`
	Status     string     `json:"status"`
	AddedBy    string     `json:"addedBy,omitempty"`
	DisabledBy string     `json:"disabledBy,omitempty"`
	DisabledAt *time.Time `json:"disabledAt,omitempty"`
	EnabledBy  string     `json:"enabledBy,omitempty"`
	EnabledAt  *time.Time `json:"enabledAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		Code:       c.Code,
		Kind:       string(c.Discount.Kind),
		Amount:     c.Discount.Amount.InexactFloat64(),
		FromDate:   c.FromDate,
		ToDate:     c.ToDate,
		Status:     string(c.Status),
		AddedBy:    c.AddedBy,
		DisabledBy: c.DisabledBy,
		DisabledAt: c.DisabledAt,
		EnabledBy:  c.EnabledBy,
		EnabledAt:  c.EnabledAt,
		CreatedAt:  c.CreatedAt,
	}
}

// CreateCoupon handles POST /coupons: an admin creates a coupon together
// with its per-user grants.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())

	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	kind := coupon.DiscountKind(req.Kind)
	if kind != coupon.KindFixed && kind != coupon.KindPercentage {
		writeError(w, http.StatusBadRequest, "kind must be fixed or percentage")
		return
	}

	grants := make([]coupon.Grant, len(req.Grants))
	for i, g := range req.Grants {
		grants[i] = coupon.Grant{UserID: g.UserID, MaxUsage: g.MaxUsage}
	}

	c, err := h.coupons.Create(r.Context(), coupon.CreateRequest{
		Code:     req.Code,
		Discount: coupon.Discount{Kind: kind, Amount: req.Amount},
		FromDate: req.FromDate,
		ToDate:   req.ToDate,
		AddedBy:  u.ID,
		Grants:   grants,
	})
	if err != nil {
		switch {
		case errors.Is(err, coupon.ErrAmountNotPositive),
			errors.Is(err, coupon.ErrPercentageRange),
			errors.Is(err, coupon.ErrWindowInverted),
			errors.Is(err, coupon.ErrNoGrants),
			errors.Is(err, coupon.ErrGrantQuota):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeDomainError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

// ListCoupons handles GET /coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]couponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCoupon handles GET /coupons/{code}. Here a missing code is a 404, not
// the checkout-time validation failure.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

// DisableCoupon handles PUT /coupons/{code}/disable.
func (h *Handler) DisableCoupon(w http.ResponseWriter, r *http.Request) {
	h.setCouponStatus(w, r, h.coupons.Disable)
}

// EnableCoupon handles PUT /coupons/{code}/enable.
func (h *Handler) EnableCoupon(w http.ResponseWriter, r *http.Request) {
	h.setCouponStatus(w, r, h.coupons.Enable)
}

func (h *Handler) setCouponStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, code, by string) error) {
	u, _ := UserFrom(r.Context())
	code := chi.URLParam(r, "code")

	if err := op(r.Context(), code, u.ID); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	c, err := h.coupons.GetByCode(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}
