package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/coupon"
)

var _ Gateway = (*Mock)(nil)

// Mock is a configurable in-memory Gateway for tests and local runs. Each
// operation returns the configured error when set, otherwise a synthetic
// reference, and counts its calls.
type Mock struct {
	SessionErr error
	IntentErr  error
	CouponErr  error
	ConfirmErr error
	RefundErr  error

	mu           sync.Mutex
	seq          int
	SessionCalls int
	IntentCalls  int
	CouponCalls  int
	ConfirmCalls int
	RefundCalls  int
	Confirmed    []string
	Refunded     []string
}

// NewMock returns a Mock where every operation succeeds.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mock_%d", prefix, m.seq)
}

func (m *Mock) CreateCheckoutSession(_ context.Context, _ CheckoutSessionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionCalls++
	if m.SessionErr != nil {
		return "", m.SessionErr
	}
	return m.next("cs"), nil
}

func (m *Mock) CreatePaymentIntent(_ context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IntentCalls++
	if m.IntentErr != nil {
		return "", m.IntentErr
	}
	return m.next("pi"), nil
}

func (m *Mock) MirrorCoupon(_ context.Context, _ *coupon.Coupon, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CouponCalls++
	if m.CouponErr != nil {
		return "", m.CouponErr
	}
	return m.next("coup"), nil
}

func (m *Mock) ConfirmIntent(_ context.Context, intentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmCalls++
	if m.ConfirmErr != nil {
		return m.ConfirmErr
	}
	m.Confirmed = append(m.Confirmed, intentRef)
	return nil
}

func (m *Mock) RefundIntent(_ context.Context, intentRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCalls++
	if m.RefundErr != nil {
		return "", m.RefundErr
	}
	m.Refunded = append(m.Refunded, intentRef)
	return m.next("re"), nil
}
