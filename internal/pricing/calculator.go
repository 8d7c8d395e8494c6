// Package pricing turns cart contents into order totals.
package pricing

import (
	"sleepoutside/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// TaxRate is a flat rate on the item subtotal.
	TaxRate = decimal.RequireFromString("0.06")
	// BaseShipping covers the first unit in the cart.
	BaseShipping = decimal.NewFromInt(10)
	// ExtraUnitShipping is charged for every unit after the first.
	ExtraUnitShipping = decimal.NewFromInt(2)
)

// Compute derives totals from scratch. It has no state and must be called
// again after every cart change.
func Compute(items []domain.CartLineItem) domain.OrderTotals {
	subtotal := decimal.Zero
	units := 0
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.LineTotal())
		units += it.Quantity
	}

	// Not rounded: callers format to cents for display only.
	tax := subtotal.Mul(TaxRate)
	shipping := Shipping(units)

	return domain.OrderTotals{
		ItemCount:    units,
		ItemSubtotal: subtotal,
		Tax:          tax,
		Shipping:     shipping,
		GrandTotal:   subtotal.Add(tax).Add(shipping),
	}
}

// Shipping is quantity based: units of one product cost the same as the
// same number of units spread across products.
func Shipping(units int) decimal.Decimal {
	if units <= 0 {
		return decimal.Zero
	}
	return BaseShipping.Add(ExtraUnitShipping.Mul(decimal.NewFromInt(int64(units - 1))))
}
