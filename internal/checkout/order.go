package checkout

import (
	"strings"
	"time"

	"sleepoutside/internal/domain"
	"sleepoutside/internal/validate"
)

// PackageItems reduces cart lines to what the order service accepts.
func PackageItems(items []domain.CartLineItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.OrderItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.FinalPrice.InexactFloat64(),
			Quantity: it.Quantity,
		})
	}
	return out
}

// BuildOrder assembles the payload from an already validated form. Card
// number and state are sent in normalized form.
func BuildOrder(f Form, items []domain.CartLineItem, totals domain.OrderTotals, at time.Time) domain.Order {
	state, _ := validate.State(f.State)
	card, _ := validate.CardNumber(f.CardNumber)
	return domain.Order{
		FirstName:    strings.TrimSpace(f.FirstName),
		LastName:     strings.TrimSpace(f.LastName),
		Street:       strings.TrimSpace(f.Street),
		City:         strings.TrimSpace(f.City),
		State:        state,
		Zip:          strings.TrimSpace(f.Zip),
		CardNumber:   card,
		Expiration:   strings.TrimSpace(f.Expiration),
		Code:         strings.TrimSpace(f.Code),
		OrderDate:    at.UTC().Format(time.RFC3339Nano),
		ItemSubtotal: totals.ItemSubtotal.InexactFloat64(),
		Tax:          totals.Tax.InexactFloat64(),
		Shipping:     totals.Shipping.InexactFloat64(),
		OrderTotal:   totals.GrandTotal.InexactFloat64(),
		Items:        PackageItems(items),
	}
}
