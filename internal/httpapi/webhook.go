package httpapi

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/souqline/checkout-api/internal/domain/order"
)

// StripeWebhook handles the gateway's payment_intent.succeeded event. The
// gateway retries until it sees a 2xx, so this handler must stay idempotent:
// a confirmation for an already-paid order is acknowledged, not rejected.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	cb, err := parseStripeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed event payload")
		return
	}
	if cb.OrderID == "" && cb.IntentID == "" {
		writeError(w, http.StatusBadRequest, "event carries no order reference")
		return
	}

	o, err := h.orders.ConfirmPayment(r.Context(), cb)
	if err != nil {
		zctx.From(r.Context()).Error("payment confirmation failed",
			zap.String("order_id", cb.OrderID),
			zap.String("intent_id", cb.IntentID),
			zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// parseStripeEvent pulls the intent id and the order id metadata out of a
// gateway event without decoding the whole envelope.
func parseStripeEvent(body []byte) (order.Callback, error) {
	var cb order.Callback
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "data" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "object" {
				return d.Skip()
			}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "id":
					v, err := d.Str()
					if err != nil {
						return err
					}
					cb.IntentID = v
					return nil
				case "metadata":
					return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
						if string(key) != "order_id" {
							return d.Skip()
						}
						v, err := d.Str()
						if err != nil {
							return err
						}
						cb.OrderID = v
						return nil
					})
				default:
					return d.Skip()
				}
			})
		})
	})
	return cb, err
}
