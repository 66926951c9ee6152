//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

// seed-db provisions product "widget" with price 50.00 and stock 100.
const seededProduct = "widget"

func orderBody() map[string]any {
	return map[string]any{
		"product":       seededProduct,
		"quantity":      1,
		"paymentMethod": "Cash",
		"shipping": map[string]string{
			"address":    "1 Nile St",
			"city":       "Cairo",
			"postalCode": "11511",
			"country":    "EG",
		},
		"phoneNumbers": []string{"+201000000000"},
	}
}

func TestCreateOrder_RequiresAuth(t *testing.T) {
	resp := doReq(t, http.MethodPost, "/api/orders", "", orderBody())
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_Cash(t *testing.T) {
	resp := doReq(t, http.MethodPost, "/api/orders", buyerKey, orderBody())
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.Status != "Placed" {
		t.Errorf("status: got %q, want Placed", order.Status)
	}
	if order.TotalPrice != 50.0 {
		t.Errorf("total: got %v, want 50.0", order.TotalPrice)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != seededProduct {
		t.Errorf("unexpected items: %+v", order.Items)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	body := orderBody()
	body["product"] = "no-such-product"

	resp := doReq(t, http.MethodPost, "/api/orders", buyerKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InvalidCoupon(t *testing.T) {
	body := orderBody()
	body["couponCode"] = "NO-SUCH-CODE"

	resp := doReq(t, http.MethodPost, "/api/orders", buyerKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errBody := decodeJSON[errorResponse](t, resp)
	if errBody.Message != "coupon code is invalid" {
		t.Errorf("message: got %q", errBody.Message)
	}
}

func TestCreateOrder_SeededCoupon(t *testing.T) {
	// seed-db grants WELCOME10 (10% off) to the demo buyer.
	body := orderBody()
	body["quantity"] = 2
	body["couponCode"] = "WELCOME10"

	resp := doReq(t, http.MethodPost, "/api/orders", buyerKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.ShippingPrice != 100.0 {
		t.Errorf("shipping price: got %v, want 100.0", order.ShippingPrice)
	}
	if order.TotalPrice != 90.0 {
		t.Errorf("total: got %v, want 90.0", order.TotalPrice)
	}
}

func TestOrderLifecycle_DeliverAndCancel(t *testing.T) {
	resp := doReq(t, http.MethodPost, "/api/orders", buyerKey, orderBody())
	created := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	// A regular buyer cannot deliver.
	resp = doReq(t, http.MethodPut, "/api/orders/"+created.ID+"/deliver", buyerKey, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("deliver as buyer: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPut, "/api/orders/"+created.ID+"/deliver", courierKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deliver as courier: expected 200, got %d", resp.StatusCode)
	}
	delivered := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if delivered.Status != "Delivered" || !delivered.IsDelivered {
		t.Errorf("unexpected delivered order: %+v", delivered)
	}

	// Delivered is terminal: the owner can no longer cancel.
	resp = doReq(t, http.MethodPut, "/api/orders/"+created.ID+"/cancel", buyerKey, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel delivered: expected 409, got %d", resp.StatusCode)
	}
}

func TestCouponAdmin_CreateAndDisable(t *testing.T) {
	code := "ITEST" + time.Now().UTC().Format("150405")
	body := map[string]any{
		"code":     code,
		"kind":     "fixed",
		"amount":   5,
		"fromDate": time.Now().Add(-time.Hour).Format(time.RFC3339),
		"toDate":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"grants":   []map[string]any{{"userId": "user-demo", "maxUsage": 1}},
	}

	resp := doReq(t, http.MethodPost, "/api/coupons", buyerKey, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("create as buyer: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, "/api/coupons", adminKey, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create as admin: expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[couponResponse](t, resp)
	resp.Body.Close()
	if created.Status != "valid" {
		t.Errorf("status: got %q, want valid", created.Status)
	}

	resp = doReq(t, http.MethodPut, "/api/coupons/"+code+"/disable", adminKey, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", resp.StatusCode)
	}
	disabled := decodeJSON[couponResponse](t, resp)
	resp.Body.Close()
	if disabled.Status != "expired" {
		t.Errorf("status after disable: got %q, want expired", disabled.Status)
	}
}
