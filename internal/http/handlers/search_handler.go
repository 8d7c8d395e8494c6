package handlers

import (
	"strings"

	"sleepoutside/internal/log"
	"sleepoutside/internal/validate"

	"github.com/gofiber/fiber/v2"
)

const searchLimit = 20

// SearchHandler matches a keyword against product names across every known
// category, or one category when given.
type SearchHandler struct {
	Products   ProductSource
	Categories []string
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	rawQ := c.Query("q")
	if strings.TrimSpace(rawQ) == "" && !isAPI(c) {
		// Initial page load: show empty search without errors
		return render(c, "search", fiber.Map{"Q": "", "Products": []productView{}, "Count": 0, "Categories": h.Categories, "CartCount": cartCount(c)})
	}
	q, ok := validate.Q(rawQ)
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "q"})
		if isAPI(c) {
			return apiError(c, fiber.StatusBadRequest, "invalid keyword")
		}
		c.Status(fiber.StatusBadRequest)
		return render(c, "search", fiber.Map{
			"Q": "", "Products": []productView{}, "Count": 0, "Categories": h.Categories,
			"Err": "Enter a valid keyword (letters/numbers only)",
		})
	}
	categories := h.Categories
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		category, ok := validate.Category(raw)
		if !ok {
			log.Security(c, "validation.fail", map[string]any{"field": "category"})
			if isAPI(c) {
				return apiError(c, fiber.StatusBadRequest, "invalid category")
			}
			c.Status(fiber.StatusBadRequest)
			return render(c, "search", fiber.Map{
				"Q": q, "Products": []productView{}, "Count": 0, "Categories": h.Categories, "Err": "Invalid category",
			})
		}
		categories = []string{category}
	}

	needle := strings.ToLower(q)
	views := make([]productView, 0, searchLimit)
scan:
	for _, cat := range categories {
		for _, p := range h.Products.FetchByCategory(c.UserContext(), cat) {
			if strings.Contains(strings.ToLower(p.Name), needle) || strings.Contains(strings.ToLower(p.Brand), needle) {
				views = append(views, viewOf(p))
				if len(views) == searchLimit {
					break scan
				}
			}
		}
	}

	if isAPI(c) {
		return c.JSON(fiber.Map{"q": q, "count": len(views), "products": views})
	}
	return render(c, "search", fiber.Map{
		"Q": q, "Category": c.Query("category"), "Categories": h.Categories,
		"Products": views, "Count": len(views), "CartCount": cartCount(c),
	})
}
