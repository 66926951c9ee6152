package notification

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceLine is one billed line on an invoice.
type InvoiceLine struct {
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Invoice is the data rendered into the confirmation attachment.
type Invoice struct {
	OrderCode string
	Customer  string
	Address   string
	City      string
	Country   string
	Date      time.Time
	Lines     []InvoiceLine
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
}

// RenderInvoice produces a plain-text invoice attachment. The external
// collaborator renders richer formats; this artifact keeps the confirmation
// mail self-contained when that service is unavailable.
func RenderInvoice(inv Invoice) Attachment {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Invoice %s\n", inv.OrderCode)
	fmt.Fprintf(&buf, "Date: %s\n", inv.Date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "Bill to: %s\n%s, %s, %s\n\n", inv.Customer, inv.Address, inv.City, inv.Country)

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Item\tQty\tUnit\tLine total")
	for _, line := range inv.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", line.Title, line.Quantity, line.UnitPrice, lineTotal)
	}
	w.Flush()

	fmt.Fprintf(&buf, "\nSubtotal: %s\n", inv.Subtotal)
	fmt.Fprintf(&buf, "Paid amount: %s\n", inv.Total)

	return Attachment{
		Filename: inv.OrderCode + ".txt",
		MIMEType: "text/plain",
		Content:  buf.Bytes(),
	}
}
