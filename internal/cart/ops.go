package cart

import "sleepoutside/internal/domain"

// The operations below are pure: they never touch the input slice's backing
// array, so a failed persist cannot leave a half-applied cart in memory.

func addItem(items []domain.CartLineItem, p domain.Product) []domain.CartLineItem {
	out := clone(items)
	for i := range out {
		if domain.SameID(out[i].ID, p.ID) {
			out[i].Quantity++
			return out
		}
	}
	return append(out, domain.CartLineItem{Product: p, Quantity: 1})
}

func removeItem(items []domain.CartLineItem, id string) []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(items))
	for _, it := range items {
		if domain.SameID(it.ID, id) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func changeQuantity(items []domain.CartLineItem, id string, delta int) []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(items))
	for _, it := range items {
		if domain.SameID(it.ID, id) {
			it.Quantity += delta
			if it.Quantity <= 0 {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}
