package handlers

import (
	"context"
	"errors"

	"sleepoutside/internal/datasource"
	"sleepoutside/internal/domain"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/validate"

	"github.com/gofiber/fiber/v2"
)

// ProductSource is what the handlers need from datasource.Source.
type ProductSource interface {
	FetchByCategory(ctx context.Context, category string) []domain.Product
	FetchByID(ctx context.Context, id string) (domain.Product, error)
}

type productView struct {
	domain.Product
	Discount domain.Discount `json:"discount"`
}

func viewOf(p domain.Product) productView {
	return productView{Product: p, Discount: p.Discount()}
}

type ProductHandler struct {
	Products ProductSource
}

// Detail renders /product_pages?product=<id>.
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Query("product"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "product"})
		return notFound(c, "Product not found")
	}
	p, err := h.Products.FetchByID(c.UserContext(), id)
	if err != nil {
		if !errors.Is(err, datasource.ErrNotFound) {
			applog.Error(c, "product.detail", err, map[string]any{"product": id})
		}
		return notFound(c, "Product not found")
	}
	return render(c, "product", fiber.Map{"P": viewOf(p), "CartCount": cartCount(c)})
}

func (h *ProductHandler) APIGet(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apiError(c, fiber.StatusNotFound, "product not found")
	}
	p, err := h.Products.FetchByID(c.UserContext(), id)
	if err != nil {
		return apiError(c, fiber.StatusNotFound, "product not found")
	}
	return c.JSON(viewOf(p))
}

func (h *ProductHandler) APIList(c *fiber.Ctx) error {
	category, ok := validate.Category(c.Params("category"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "category"})
		return apiError(c, fiber.StatusBadRequest, "invalid category")
	}
	products := h.Products.FetchByCategory(c.UserContext(), category)
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, viewOf(p))
	}
	return c.JSON(fiber.Map{"category": category, "count": len(views), "products": views})
}
