package handlers

import (
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type CategoryHandler struct {
	Products   ProductSource
	Categories []string
}

func (h *CategoryHandler) Home(c *fiber.Ctx) error {
	return render(c, "home", fiber.Map{"Categories": h.Categories, "CartCount": cartCount(c)})
}

// List renders /product_listing?category=<name>. An unknown or unreachable
// category is an empty listing, not an error.
func (h *CategoryHandler) List(c *fiber.Ctx) error {
	category, ok := validate.Category(c.Query("category"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "category"})
		return notFound(c, "Category not found")
	}
	products := h.Products.FetchByCategory(c.UserContext(), category)
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, viewOf(p))
	}
	return render(c, "product_listing", fiber.Map{
		"Category":  category,
		"Products":  views,
		"CartCount": cartCount(c),
	})
}
