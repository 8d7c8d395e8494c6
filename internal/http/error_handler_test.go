package handlers_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"sleepoutside/internal/http/handlers"
)

func newErrorApp() *fiber.App {
	app := fiber.New(fiber.Config{Views: handlers.NewViews("../../web/templates"), ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	app.Get("/err", func(c *fiber.Ctx) error {
		return errors.New("db timeout: secret trace")
	})
	app.Get("/api/v1/err", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusInternalServerError, "db timeout: secret trace")
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.ErrTeapot
	})
	return app
}

func TestErrorHandlerFriendlyMessage(t *testing.T) {
	app := newErrorApp()

	for _, path := range []string{"/err", "/api/v1/err"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("test request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		s := string(body)
		if !strings.Contains(s, "Something went wrong") {
			t.Fatalf("%s: friendly message missing; body=%s", path, s)
		}
		if strings.Contains(s, "db timeout") || strings.Contains(s, "secret") {
			t.Fatalf("%s: internal details leaked to user; body=%s", path, s)
		}
	}
}

func TestErrorHandlerKeepsClientStatus(t *testing.T) {
	app := newErrorApp()

	var status int
	logs := captureLogs(t, func() {
		resp, err := app.Test(httptest.NewRequest("GET", "/teapot", nil))
		if err != nil {
			t.Fatal(err)
		}
		status = resp.StatusCode
	})
	if status != fiber.StatusTeapot {
		t.Fatalf("expected 418, got %d", status)
	}
	if !hasAction(logs, "server.error") {
		t.Fatal("server.error not logged")
	}
}
