package httpapi

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/souqline/checkout-api/internal/domain/cart"
	"github.com/souqline/checkout-api/internal/domain/coupon"
	"github.com/souqline/checkout-api/internal/domain/inventory"
	"github.com/souqline/checkout-api/internal/domain/order"
	"github.com/souqline/checkout-api/internal/domain/pricing"
	"github.com/souqline/checkout-api/internal/domain/product"
	"github.com/souqline/checkout-api/internal/payment"
)

// writeDomainError maps a service error onto the HTTP taxonomy. Unknown
// errors become an opaque 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *inventory.InsufficientStockError
	var gatewayErr *payment.GatewayError

	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, order.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, order.ErrCannotPay),
		errors.Is(err, order.ErrCannotDeliver),
		errors.Is(err, order.ErrCannotCancel),
		errors.Is(err, order.ErrCannotRefund),
		errors.Is(err, coupon.ErrDuplicateCode):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrNotStarted),
		errors.Is(err, coupon.ErrNotAssigned),
		errors.Is(err, coupon.ErrUsageExceeded),
		errors.Is(err, pricing.ErrNoItems),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrCouponExceedsTotal),
		errors.Is(err, order.ErrInvalidMethod),
		errors.Is(err, order.ErrUnsupportedGateway),
		errors.Is(err, order.ErrCancelWindowElapsed),
		errors.Is(err, order.ErrNoPaymentIntent),
		errors.As(err, &stockErr):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &gatewayErr):
		writeError(w, http.StatusBadGateway, "payment gateway error")

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
