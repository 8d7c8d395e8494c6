// Package checkout validates the checkout form, packages the cart into an
// order, submits it and clears the cart once the order service accepts it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sleepoutside/internal/cart"
	"sleepoutside/internal/domain"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/pricing"

	"github.com/google/uuid"
)

type State string

const (
	Editing    State = "EDITING"
	Validating State = "VALIDATING"
	Submitting State = "SUBMITTING"
	Succeeded  State = "SUCCEEDED"
	Failed     State = "FAILED"
)

// Transition is one state change of one attempt.
type Transition struct {
	AttemptID string
	SessionID string
	From, To  State
	At        time.Time
	Totals    domain.OrderTotals
	Err       error
	// Confirmation is set on the move to Succeeded.
	Confirmation *domain.Confirmation
}

type TransitionObserver interface {
	Transitioned(ctx context.Context, t Transition)
}

type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) Transitioned(ctx context.Context, t Transition) { f(ctx, t) }

// Result is the outcome of one Submit. Form is the redacted input, handed
// back so a failed attempt can be shown again without retyping.
type Result struct {
	AttemptID    string              `json:"attemptId"`
	State        State               `json:"state"`
	Form         Form                `json:"form"`
	Totals       domain.OrderTotals  `json:"totals"`
	Order        *domain.Order       `json:"-"`
	Confirmation domain.Confirmation `json:"confirmation"`
}

type Option func(*Workflow)

// WithClock replaces time.Now for expiry checks and order timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithObserver(o TransitionObserver) Option {
	return func(w *Workflow) { w.observers = append(w.observers, o) }
}

type Workflow struct {
	carts     *cart.Manager
	submitter Submitter
	validator *Validator
	now       func() time.Time
	observers []TransitionObserver

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewWorkflow(carts *cart.Manager, submitter Submitter, opts ...Option) *Workflow {
	w := &Workflow{
		carts:     carts,
		submitter: submitter,
		now:       time.Now,
		inflight:  map[string]struct{}{},
	}
	for _, o := range opts {
		o(w)
	}
	w.validator = NewValidator(w.now)
	return w
}

func (w *Workflow) Validator() *Validator { return w.validator }

// ValidateField is the single-field check used while the form is being
// edited.
func (w *Workflow) ValidateField(name, value string) (*Violation, error) {
	return w.validator.ValidateField(name, value)
}

// Summary is the review data for the checkout page: the cart and its
// totals, recomputed from the persisted slot.
func (w *Workflow) Summary(ctx context.Context, sid string) (cart.Summary, error) {
	return w.carts.Store(sid).Summary(ctx)
}

// Submit runs one attempt for the session's cart.
//
// Invalid input or an empty cart return to Editing with a *ValidationError
// and/or ErrEmptyCart (joined when both apply). A failed POST ends in Failed
// with a *SubmissionError and the cart as it was. Success clears the cart
// before returning.
func (w *Workflow) Submit(ctx context.Context, sid string, f Form) (Result, error) {
	if !w.acquire(sid) {
		return Result{State: Editing, Form: f.Redacted()}, ErrSubmitInProgress
	}
	defer w.release(sid)

	a := attempt{w: w, id: uuid.NewString(), sid: sid, state: Editing}
	res := Result{AttemptID: a.id, Form: f.Redacted()}

	a.move(ctx, Validating, nil)
	store := w.carts.Store(sid)
	items, err := store.Snapshot(ctx)
	if err != nil {
		err = fmt.Errorf("checkout: load cart: %w", err)
		a.move(ctx, Failed, err)
		res.State = Failed
		return res, err
	}

	var problems []error
	if verr := w.validator.Validate(f); verr != nil {
		problems = append(problems, verr)
	}
	if len(items) == 0 {
		problems = append(problems, ErrEmptyCart)
	}
	if len(problems) > 0 {
		err := errors.Join(problems...)
		a.move(ctx, Editing, err)
		res.State = Editing
		return res, err
	}

	// Totals come from the persisted cart, never from the client.
	a.totals = pricing.Compute(items)
	res.Totals = a.totals
	order := BuildOrder(f, items, a.totals, w.now())
	res.Order = &order
	a.move(ctx, Submitting, nil)

	conf, err := w.submitter.Submit(ctx, order)
	if err != nil {
		serr := newSubmissionError(err)
		a.move(ctx, Failed, serr)
		res.State = Failed
		return res, serr
	}

	if err := store.Clear(ctx); err != nil {
		// The order went through; a stale cart is the lesser problem.
		applog.Error(nil, "checkout.clear_cart", err, map[string]any{"attempt": a.id, "order_id": conf.OrderID})
	}
	a.conf = &conf
	a.move(ctx, Succeeded, nil)
	res.State = Succeeded
	res.Confirmation = conf
	return res, nil
}

func (w *Workflow) acquire(sid string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[sid]; busy {
		return false
	}
	w.inflight[sid] = struct{}{}
	return true
}

func (w *Workflow) release(sid string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, sid)
}

type attempt struct {
	w      *Workflow
	id     string
	sid    string
	state  State
	totals domain.OrderTotals
	conf   *domain.Confirmation
}

func (a *attempt) move(ctx context.Context, to State, err error) {
	t := Transition{
		AttemptID:    a.id,
		SessionID:    a.sid,
		From:         a.state,
		To:           to,
		At:           a.w.now(),
		Totals:       a.totals,
		Err:          err,
		Confirmation: a.conf,
	}
	a.state = to
	for _, o := range a.w.observers {
		o.Transitioned(ctx, t)
	}
}
