package checkout

import (
	"context"

	applog "sleepoutside/internal/log"

	"github.com/shopspring/decimal"
)

// AttemptStore persists finished attempts. repos.CheckoutAttemptRepo
// satisfies it.
type AttemptStore interface {
	Create(ctx context.Context, id, sessionID, state string, total decimal.Decimal, itemCount int, remoteID, errMsg string) error
}

// RecordAttempts writes one row per attempt that reached Succeeded or
// Failed. Write failures are logged; they never change the outcome.
func RecordAttempts(store AttemptStore) TransitionObserver {
	return ObserverFunc(func(ctx context.Context, t Transition) {
		if t.To != Succeeded && t.To != Failed {
			return
		}
		var remoteID, errMsg string
		if t.Confirmation != nil {
			remoteID = t.Confirmation.OrderID
		}
		if t.Err != nil {
			errMsg = t.Err.Error()
		}
		if err := store.Create(context.WithoutCancel(ctx), t.AttemptID, t.SessionID, string(t.To),
			t.Totals.GrandTotal, t.Totals.ItemCount, remoteID, errMsg); err != nil {
			applog.Error(nil, "checkout.audit.write", err, map[string]any{"attempt": t.AttemptID})
		}
	})
}

// LogTransitions emits an audit line per state change.
func LogTransitions() TransitionObserver {
	return ObserverFunc(func(_ context.Context, t Transition) {
		fields := map[string]any{
			"attempt": t.AttemptID,
			"sid":     t.SessionID,
			"from":    string(t.From),
			"to":      string(t.To),
		}
		if t.To == Submitting || t.To == Succeeded {
			fields["order_total"] = t.Totals.GrandTotal.StringFixed(2)
			fields["items"] = t.Totals.ItemCount
		}
		if t.Confirmation != nil {
			fields["order_id"] = t.Confirmation.OrderID
		}
		if t.Err != nil {
			applog.Warn(nil, "checkout.transition", t.Err, fields)
			return
		}
		applog.Audit(nil, "checkout.transition", fields)
	})
}
