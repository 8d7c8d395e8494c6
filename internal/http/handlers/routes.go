package handlers

import (
	"errors"
	"time"

	applog "sleepoutside/internal/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/utils"
)

// Routes mounts pages, the JSON API and the 404 fallback. Middleware is the
// caller's business and must be installed first.
func Routes(app *fiber.App, d *Deps) {
	// One instance each so pages and API share the same budget per IP.
	searchRate := searchLimiter()
	checkoutRate := checkoutLimiter()

	// Pages
	app.Get("/", d.CategoryHandler.Home)
	app.Get("/product_listing", d.CategoryHandler.List)
	app.Get("/product_pages", d.ProductHandler.Detail)
	app.Get("/search", searchRate, d.SearchHandler.Search)

	app.Get("/cart", d.CartHandler.View)
	app.Post("/cart", d.CartHandler.Add)
	app.Post("/cart/clear", d.CartHandler.Clear)
	app.Post("/cart/:id/quantity", d.CartHandler.ChangeQuantity)
	app.Post("/cart/:id/remove", d.CartHandler.Remove)

	app.Get("/checkout", d.CheckoutHandler.Page)
	app.Post("/checkout", checkoutRate, d.CheckoutHandler.Submit)

	// API
	api := app.Group("/api/v1")
	api.Get("/products/:category", d.ProductHandler.APIList)
	api.Get("/product/:id", d.ProductHandler.APIGet)
	api.Get("/search", searchRate, d.SearchHandler.Search)

	api.Get("/cart", d.CartHandler.View)
	api.Get("/cart/count", d.CartHandler.Count)
	api.Post("/cart", d.CartHandler.Add)
	api.Post("/cart/:id/quantity", d.CartHandler.ChangeQuantity)
	api.Delete("/cart/:id", d.CartHandler.Remove)
	api.Delete("/cart", d.CartHandler.Clear)

	api.Get("/checkout/summary", d.CheckoutHandler.Summary)
	api.Get("/checkout/attempts", d.CheckoutHandler.History)
	api.Post("/checkout/validate", d.CheckoutHandler.ValidateField)
	api.Post("/checkout", checkoutRate, d.CheckoutHandler.Submit)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		if isAPI(c) {
			return apiError(c, fiber.StatusNotFound, "not found")
		}
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Page not found"})
	})
}

// Search fans out to every category, so it is throttled harder than the
// global limiter.
func searchLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|search"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.search.hit", nil)
			if isAPI(c) {
				return apiError(c, fiber.StatusTooManyRequests, "rate limit exceeded, retry soon")
			}
			return c.Status(fiber.StatusTooManyRequests).Render("notfound", fiber.Map{"Message": "Too many searches. Please wait a minute."})
		},
	})
}

// Submitting an order is the expensive path, so the form post and the API
// post are held to a tighter budget than the global limiter.
func checkoutLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|checkout"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.checkout.hit", nil)
			if isAPI(c) {
				return apiError(c, fiber.StatusTooManyRequests, "rate limit exceeded, retry soon")
			}
			return c.Status(fiber.StatusTooManyRequests).Render("notfound", fiber.Map{"Message": "Too many checkout attempts. Please wait a minute."})
		},
	})
}

// ErrorHandler logs the failure and shows a friendly message without
// internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < 500 {
		status = fe.Code
	}
	applog.Error(c, "server.error", err, map[string]any{"status": status})
	msg := "Something went wrong. Please try again."
	if status < 500 {
		msg = utils.StatusMessage(status)
	}
	if isAPI(c) {
		return apiError(c, status, msg)
	}
	if rerr := c.Status(status).Render("notfound", fiber.Map{"Message": msg}); rerr != nil {
		return c.Status(status).SendString(msg)
	}
	return nil
}
