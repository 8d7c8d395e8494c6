package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CheckoutAttemptRepo keeps an audit row per finished submission. Carts and
// orders are never rebuilt from it.
type CheckoutAttemptRepo struct{ db *sqlx.DB }

func NewCheckoutAttemptRepo(db *sqlx.DB) *CheckoutAttemptRepo { return &CheckoutAttemptRepo{db: db} }

type CheckoutAttempt struct {
	ID         string `db:"id"`
	SessionID  string `db:"session_id"`
	State      string `db:"state"`
	OrderTotal string `db:"order_total"`
	ItemCount  int    `db:"item_count"`
	RemoteID   string `db:"remote_id"`
	Error      string `db:"error"`
	CreatedAt  string `db:"created_at"`
}

func (r *CheckoutAttemptRepo) Create(ctx context.Context, id, sessionID, state string, total decimal.Decimal, itemCount int, remoteID, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO checkout_attempts
	    (id, session_id, state, order_total, item_count, remote_id, error, created_at)
	  VALUES
	    (?,  ?,          ?,     ?,           ?,          ?,         ?,     CURRENT_TIMESTAMP)
	`, id, sessionID, state, total.StringFixed(2), itemCount, remoteID, errMsg)
	return err
}

// ListBySession returns the newest attempts first.
func (r *CheckoutAttemptRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]CheckoutAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out := []CheckoutAttempt{}
	err := r.db.SelectContext(ctx, &out, `
	  SELECT id, session_id, state, order_total, item_count,
	         COALESCE(remote_id,'') AS remote_id, COALESCE(error,'') AS error, created_at
	  FROM checkout_attempts
	  WHERE session_id = ?
	  ORDER BY created_at DESC, rowid DESC
	  LIMIT ?
	`, sessionID, limit)
	return out, err
}
