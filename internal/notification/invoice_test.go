package notification

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderInvoice(t *testing.T) {
	att := RenderInvoice(Invoice{
		OrderCode: "buyer_a1b2c3d4",
		Customer:  "buyer",
		Address:   "1 Nile St",
		City:      "Cairo",
		Country:   "EG",
		Date:      time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Lines: []InvoiceLine{
			{Title: "Widget", UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2},
			{Title: "Gadget", UnitPrice: decimal.RequireFromString("19.99"), Quantity: 1},
		},
		Subtotal: decimal.RequireFromString("119.99"),
		Total:    decimal.RequireFromString("107.99"),
	})

	assert.Equal(t, "buyer_a1b2c3d4.txt", att.Filename)
	assert.Equal(t, "text/plain", att.MIMEType)

	body := string(att.Content)
	assert.Contains(t, body, "Invoice buyer_a1b2c3d4")
	assert.Contains(t, body, "2024-06-15 12:00:00")
	assert.Contains(t, body, "1 Nile St, Cairo, EG")
	assert.Contains(t, body, "Widget")
	assert.Contains(t, body, "Gadget")
	assert.Contains(t, body, "Subtotal: 119.99")
	assert.Contains(t, body, "Paid amount: 107.99")
}
