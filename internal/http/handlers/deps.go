package handlers

import (
	"sleepoutside/internal/cart"
	"sleepoutside/internal/checkout"
)

type Deps struct {
	CategoryHandler *CategoryHandler
	ProductHandler  *ProductHandler
	CartHandler     *CartHandler
	CheckoutHandler *CheckoutHandler
	SearchHandler   *SearchHandler
}

func NewDeps(products ProductSource, categories []string, carts *cart.Manager, wf *checkout.Workflow, history AttemptHistory) *Deps {
	return &Deps{
		CategoryHandler: &CategoryHandler{Products: products, Categories: categories},
		ProductHandler:  &ProductHandler{Products: products},
		CartHandler:     &CartHandler{Carts: carts, Products: products},
		CheckoutHandler: &CheckoutHandler{Checkout: wf, Attempts: history},
		SearchHandler:   &SearchHandler{Products: products, Categories: categories},
	}
}
