package handlers

import (
	"context"
	"errors"

	"sleepoutside/internal/checkout"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/repos"

	"github.com/gofiber/fiber/v2"
)

// AttemptHistory reads recorded checkout attempts. Only the sqlite backend
// records them, so it may be nil.
type AttemptHistory interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]repos.CheckoutAttempt, error)
}

type CheckoutHandler struct {
	Checkout *checkout.Workflow
	Attempts AttemptHistory
}

type attemptView struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	OrderTotal string `json:"orderTotal"`
	ItemCount  int    `json:"itemCount"`
	OrderID    string `json:"orderId,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// History lists this session's finished checkout attempts, newest first.
// Server error text stays in the table and the logs.
func (h *CheckoutHandler) History(c *fiber.Ctx) error {
	if h.Attempts == nil {
		return apiError(c, fiber.StatusNotFound, "checkout history is not recorded")
	}
	rows, err := h.Attempts.ListBySession(c.UserContext(), ensureSID(c), c.QueryInt("limit", 20))
	if err != nil {
		applog.Error(c, "checkout.history", err, nil)
		return apiError(c, fiber.StatusInternalServerError, "could not load checkout history")
	}
	out := make([]attemptView, 0, len(rows))
	for _, r := range rows {
		out = append(out, attemptView{ID: r.ID, State: r.State, OrderTotal: r.OrderTotal, ItemCount: r.ItemCount, OrderID: r.RemoteID, CreatedAt: r.CreatedAt})
	}
	return c.JSON(fiber.Map{"count": len(out), "attempts": out})
}

// Page renders the checkout form with the order summary.
func (h *CheckoutHandler) Page(c *fiber.Ctx) error {
	sum, err := h.Checkout.Summary(c.UserContext(), ensureSID(c))
	if err != nil {
		return err
	}
	return render(c, "checkout", fiber.Map{"Cart": viewOfSummary(sum), "CartCount": sum.Count, "Form": checkout.Form{}, "Errors": map[string]string{}})
}

func (h *CheckoutHandler) Summary(c *fiber.Ctx) error {
	sum, err := h.Checkout.Summary(c.UserContext(), ensureSID(c))
	if err != nil {
		applog.Error(c, "checkout.summary", err, nil)
		return apiError(c, fiber.StatusInternalServerError, "could not load cart")
	}
	return c.JSON(viewOfSummary(sum))
}

// ValidateField answers the per-field check the form runs on blur.
func (h *CheckoutHandler) ValidateField(c *fiber.Ctx) error {
	var in struct {
		Field string `json:"field" form:"field"`
		Value string `json:"value" form:"value"`
	}
	if err := c.BodyParser(&in); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid body")
	}
	v, err := h.Checkout.ValidateField(in.Field, in.Value)
	if errors.Is(err, checkout.ErrUnknownField) {
		return apiError(c, fiber.StatusBadRequest, "unknown field")
	}
	if err != nil {
		return err
	}
	if v != nil {
		return c.JSON(fiber.Map{"field": v.Field, "valid": false, "message": v.Message})
	}
	return c.JSON(fiber.Map{"field": in.Field, "valid": true})
}

// Submit handles both the JSON API and the plain form post. Error statuses
// are the same for both; only the body differs.
func (h *CheckoutHandler) Submit(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var f checkout.Form
	if err := c.BodyParser(&f); err != nil {
		if isAPI(c) {
			return apiError(c, fiber.StatusBadRequest, "invalid body")
		}
		return c.Status(fiber.StatusBadRequest).SendString("invalid form")
	}

	res, err := h.Checkout.Submit(c.UserContext(), sid, f)
	if err == nil {
		applog.Audit(c, "checkout.success", map[string]any{"order_id": res.Confirmation.OrderID, "attempt": res.AttemptID})
		if isAPI(c) {
			return c.JSON(fiber.Map{
				"state":        res.State,
				"attemptId":    res.AttemptID,
				"confirmation": res.Confirmation,
				"totals":       viewOfTotals(res.Totals),
			})
		}
		return render(c, "success", fiber.Map{"Confirmation": res.Confirmation, "Totals": viewOfTotals(res.Totals)})
	}

	status, body := h.failure(c, err)
	if status == 0 {
		return err
	}
	body["state"] = res.State
	body["form"] = res.Form
	if isAPI(c) {
		return c.Status(status).JSON(body)
	}
	sum, serr := h.Checkout.Summary(c.UserContext(), sid)
	if serr != nil {
		return serr
	}
	body["Cart"] = viewOfSummary(sum)
	body["CartCount"] = sum.Count
	body["Form"] = res.Form
	if _, ok := body["Errors"]; !ok {
		body["Errors"] = map[string]string{}
	}
	c.Status(status)
	return render(c, "checkout", body)
}

// failure maps checkout errors to a status and a body. Status 0 means the
// error is not a checkout outcome and goes to the app error handler.
func (h *CheckoutHandler) failure(c *fiber.Ctx, err error) (int, fiber.Map) {
	var ve *checkout.ValidationError
	var se *checkout.SubmissionError
	body := fiber.Map{}
	switch {
	case errors.Is(err, checkout.ErrSubmitInProgress):
		applog.Security(c, "checkout.duplicate", nil)
		body["error"] = "Your order is already being placed."
		body["Message"] = body["error"]
		return fiber.StatusConflict, body
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"fields": len(ve.Violations)})
		body["error"] = "Please correct the highlighted fields."
		body["errors"] = ve.Fields()
		body["Errors"] = ve.Fields()
		if errors.Is(err, checkout.ErrEmptyCart) {
			body["cart"] = checkout.EmptyCartMessage
			body["Message"] = checkout.EmptyCartMessage
		}
		return fiber.StatusUnprocessableEntity, body
	case errors.Is(err, checkout.ErrEmptyCart):
		body["error"] = checkout.EmptyCartMessage
		body["Message"] = checkout.EmptyCartMessage
		return fiber.StatusConflict, body
	case errors.As(err, &se):
		applog.Error(c, "checkout.submit.fail", err, map[string]any{"status": se.Status})
		body["error"] = se.Message
		body["details"] = se.Details
		body["Message"] = se.Message
		return fiber.StatusBadGateway, body
	}
	return 0, nil
}
