package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the canonical catalog record. Every source is normalized into
// this shape before anything downstream sees it.
type Product struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	NameWithoutBrand string              `json:"nameWithoutBrand"`
	Brand            string              `json:"brand"`
	Category         string              `json:"category"`
	FinalPrice       decimal.Decimal     `json:"finalPrice"`
	SuggestedPrice   decimal.NullDecimal `json:"suggestedPrice"`
	Image            string              `json:"image"`
	Images           Images              `json:"images"`
	Colors           []Color             `json:"colors,omitempty"`
	Description      string              `json:"description"`
}

type Images struct {
	Small  string `json:"small,omitempty"`
	Medium string `json:"medium,omitempty"`
	Large  string `json:"large,omitempty"`
}

type Color struct {
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
	ChipImage string `json:"chipImage,omitempty"`
}

// Discount describes how far FinalPrice sits below the suggested price.
type Discount struct {
	Discounted bool            `json:"discounted"`
	Percent    int64           `json:"percent"`
	Amount     decimal.Decimal `json:"amount"`
}

func (p Product) Discount() Discount {
	if !p.SuggestedPrice.Valid {
		return Discount{}
	}
	suggested := p.SuggestedPrice.Decimal
	if !suggested.IsPositive() || !p.FinalPrice.LessThan(suggested) {
		return Discount{}
	}
	amount := suggested.Sub(p.FinalPrice)
	pct := amount.Div(suggested).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return Discount{Discounted: true, Percent: pct, Amount: amount.Round(2)}
}

// DefaultColor is the first listed color variant, or "" when there is none.
func (p Product) DefaultColor() string {
	if len(p.Colors) == 0 {
		return ""
	}
	return p.Colors[0].Name
}

// SameID compares product identifiers the way the cart and lookups do:
// trimmed and case-insensitive.
func SameID(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CartLineItem is a product snapshot plus a quantity that is always >= 1.
type CartLineItem struct {
	Product
	Quantity int `json:"quantity"`
}

func (li CartLineItem) LineTotal() decimal.Decimal {
	return li.FinalPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// OrderTotals is derived from cart contents and never stored.
type OrderTotals struct {
	ItemCount    int             `json:"itemCount"`
	ItemSubtotal decimal.Decimal `json:"itemSubtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Shipping     decimal.Decimal `json:"shipping"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
}

// Order is the checkout wire payload. Field names are fixed by the order
// service and do not follow Product.
type Order struct {
	FirstName    string      `json:"fname"`
	LastName     string      `json:"lname"`
	Street       string      `json:"street"`
	City         string      `json:"city"`
	State        string      `json:"state"`
	Zip          string      `json:"zip"`
	CardNumber   string      `json:"cardNumber"`
	Expiration   string      `json:"expiration"`
	Code         string      `json:"code"`
	OrderDate    string      `json:"orderDate"`
	ItemSubtotal float64     `json:"itemSubtotal"`
	Tax          float64     `json:"tax"`
	Shipping     float64     `json:"shipping"`
	OrderTotal   float64     `json:"orderTotal"`
	Items        []OrderItem `json:"items"`
}

type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Confirmation is what the order service answers on success.
type Confirmation struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
	Raw     []byte `json:"-"`
}
