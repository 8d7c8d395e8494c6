package handlers

import (
	"errors"

	"sleepoutside/internal/cart"
	"sleepoutside/internal/datasource"
	"sleepoutside/internal/domain"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type CartHandler struct {
	Carts    *cart.Manager
	Products ProductSource
}

type totalsView struct {
	ItemCount    int    `json:"itemCount"`
	ItemSubtotal string `json:"itemSubtotal"`
	Tax          string `json:"tax"`
	Shipping     string `json:"shipping"`
	GrandTotal   string `json:"grandTotal"`
}

type lineView struct {
	productView
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type summaryView struct {
	Items  []lineView `json:"items"`
	Count  int        `json:"count"`
	Totals totalsView `json:"totals"`
}

func viewOfTotals(t domain.OrderTotals) totalsView {
	return totalsView{
		ItemCount:    t.ItemCount,
		ItemSubtotal: t.ItemSubtotal.StringFixed(2),
		Tax:          t.Tax.StringFixed(2),
		Shipping:     t.Shipping.StringFixed(2),
		GrandTotal:   t.GrandTotal.StringFixed(2),
	}
}

func viewOfSummary(s cart.Summary) summaryView {
	lines := make([]lineView, 0, len(s.Items))
	for _, it := range s.Items {
		lines = append(lines, lineView{productView: viewOf(it.Product), Quantity: it.Quantity, LineTotal: it.LineTotal().StringFixed(2)})
	}
	return summaryView{Items: lines, Count: s.Count, Totals: viewOfTotals(s.Totals)}
}

// CartBadge puts the session's item count into Locals for page headers.
// Visitors without a session cookie have an empty cart by definition.
func CartBadge(carts *cart.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet && !isAPI(c) && c.Cookies("sid") != "" {
			n, err := carts.Store(c.Cookies("sid")).TotalItemCount(c.UserContext())
			if err != nil {
				applog.Error(c, "cart.count", err, nil)
			}
			c.Locals("cartCount", n)
		}
		return c.Next()
	}
}

func cartCount(c *fiber.Ctx) int {
	n, _ := c.Locals("cartCount").(int)
	return n
}

func (h *CartHandler) View(c *fiber.Ctx) error {
	sum, err := h.Carts.Store(ensureSID(c)).Summary(c.UserContext())
	if err != nil {
		applog.Error(c, "cart.view", err, nil)
		if isAPI(c) {
			return apiError(c, fiber.StatusInternalServerError, "could not load cart")
		}
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load your cart"})
	}
	if isAPI(c) {
		return c.JSON(viewOfSummary(sum))
	}
	return render(c, "cart", fiber.Map{"Cart": viewOfSummary(sum), "CartCount": sum.Count})
}

func (h *CartHandler) Count(c *fiber.Ctx) error {
	n, err := h.Carts.Store(ensureSID(c)).TotalItemCount(c.UserContext())
	if err != nil {
		applog.Error(c, "cart.count", err, nil)
		return apiError(c, fiber.StatusInternalServerError, "could not load cart")
	}
	return c.JSON(fiber.Map{"count": n})
}

// Add looks the product up again by id; the client only names it.
func (h *CartHandler) Add(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var in struct {
		ProductID string `json:"productId" form:"productId"`
	}
	if err := c.BodyParser(&in); err != nil {
		return h.badRequest(c, "invalid body")
	}
	id, ok := validate.ID(in.ProductID)
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "productId"})
		return h.badRequest(c, "missing productId")
	}
	p, err := h.Products.FetchByID(c.UserContext(), id)
	if err != nil {
		if !errors.Is(err, datasource.ErrNotFound) {
			applog.Error(c, "cart.add.lookup", err, map[string]any{"product": id})
		}
		if isAPI(c) {
			return apiError(c, fiber.StatusNotFound, "product not found")
		}
		return notFound(c, "Product not found")
	}
	if _, err := h.Carts.Store(sid).Add(c.UserContext(), p); err != nil {
		return err
	}
	applog.Audit(c, "cart.add", map[string]any{"product": p.ID})
	return h.respond(c)
}

func (h *CartHandler) ChangeQuantity(c *fiber.Ctx) error {
	sid := ensureSID(c)
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return h.badRequest(c, "invalid product id")
	}
	var delta int
	if c.Is("json") {
		var in struct {
			Delta int `json:"delta"`
		}
		if err := c.BodyParser(&in); err != nil {
			return h.badRequest(c, "invalid body")
		}
		delta, ok = in.Delta, in.Delta != 0 && in.Delta >= -99 && in.Delta <= 99
	} else {
		delta, ok = validate.Delta(c.FormValue("delta"))
	}
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "delta"})
		return h.badRequest(c, "delta must be a non-zero whole number between -99 and 99")
	}
	if _, err := h.Carts.Store(sid).ChangeQuantity(c.UserContext(), id, delta); err != nil {
		return err
	}
	return h.respond(c)
}

func (h *CartHandler) Remove(c *fiber.Ctx) error {
	sid := ensureSID(c)
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return h.badRequest(c, "invalid product id")
	}
	if _, err := h.Carts.Store(sid).Remove(c.UserContext(), id); err != nil {
		return err
	}
	applog.Audit(c, "cart.remove", map[string]any{"product": id})
	return h.respond(c)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	if err := h.Carts.Store(ensureSID(c)).Clear(c.UserContext()); err != nil {
		return err
	}
	applog.Audit(c, "cart.clear", nil)
	return h.respond(c)
}

// respond answers API calls with the fresh summary and sends page forms
// back to the cart.
func (h *CartHandler) respond(c *fiber.Ctx) error {
	if !isAPI(c) {
		return c.Redirect("/cart", fiber.StatusSeeOther)
	}
	sum, err := h.Carts.Store(ensureSID(c)).Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(viewOfSummary(sum))
}

func (h *CartHandler) badRequest(c *fiber.Ctx, msg string) error {
	if isAPI(c) {
		return apiError(c, fiber.StatusBadRequest, msg)
	}
	return c.Status(fiber.StatusBadRequest).SendString(msg)
}
