package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// CartSlotRepo stores one JSON cart per slot key. It satisfies
// cart.Persister.
type CartSlotRepo struct{ db *sqlx.DB }

func NewCartSlotRepo(db *sqlx.DB) *CartSlotRepo { return &CartSlotRepo{db: db} }

func (r *CartSlotRepo) Load(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := r.db.GetContext(ctx, &data, `SELECT data FROM cart_slots WHERE slot_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// Update runs fn inside a transaction so the read and the write of one slot
// cannot interleave with another writer.
func (r *CartSlotRepo) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var old []byte
	var data string
	switch err := tx.GetContext(ctx, &data, `SELECT data FROM cart_slots WHERE slot_key = ?`, key); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		old = []byte(data)
	}

	next, err := fn(old)
	if err != nil {
		return err
	}
	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_slots WHERE slot_key = ?`, key); err != nil {
			return err
		}
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_slots(slot_key, data, created_at, updated_at)
		VALUES(?, ?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT(slot_key) DO UPDATE
		SET data = excluded.data, updated_at = excluded.updated_at
	`, key, string(next), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CartSlotRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_slots WHERE slot_key = ?`, key)
	return err
}

// PurgeOlderThan drops slots untouched since cutoff and returns how many
// went.
func (r *CartSlotRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_slots
		WHERE COALESCE(updated_at, created_at) < ?
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
