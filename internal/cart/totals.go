package cart

import (
	"github.com/shopspring/decimal"

	"retailpos/terminal/internal/domain"
)

// TaxRate is the flat sales tax applied to every cart.
var TaxRate = decimal.RequireFromString("0.10")

// ComputeTotals derives subtotal, tax and total from line items. Values are
// exact; round with Totals.Rounded for display or the wire.
func ComputeTotals(items []domain.CartLineItem) domain.Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	tax := subtotal.Mul(TaxRate)
	return domain.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Change is what goes back to the customer; never negative.
func Change(tendered decimal.Decimal, total decimal.Decimal) decimal.Decimal {
	diff := tendered.Sub(total)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// Totals computes the totals of the current cart contents.
func (c *Cart) Totals() domain.Totals {
	return ComputeTotals(c.Items())
}

type Quote struct {
	Items    []domain.CartLineItem `json:"items"`
	Totals   domain.Totals         `json:"totals"`
	Tendered decimal.Decimal       `json:"tendered"`
	Change   decimal.Decimal       `json:"change"`
	// Sufficient is false when a cash tender does not cover the total.
	Sufficient bool `json:"sufficient"`
}

// Quote snapshots the cart and prices it against a tendered amount. Cash
// is settled against the total at currency precision, and so is the tender.
func (c *Cart) Quote(tendered decimal.Decimal) Quote {
	tendered = tendered.Round(2)
	items := c.Items()
	totals := ComputeTotals(items)
	due := totals.Total.Round(2)
	return Quote{
		Items:      items,
		Totals:     totals,
		Tendered:   tendered,
		Change:     Change(tendered, due),
		Sufficient: tendered.GreaterThanOrEqual(due),
	}
}
