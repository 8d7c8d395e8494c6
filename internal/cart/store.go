// Package cart owns the per-session shopping cart. The persisted slot is the
// only source of truth: every read goes back to it and every mutation is an
// atomic read-modify-write against it.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sleepoutside/internal/domain"
	applog "sleepoutside/internal/log"
	"sleepoutside/internal/pricing"
)

// ErrInvalidProduct is returned by Add for a product without an id.
var ErrInvalidProduct = errors.New("cart: product has no id")

// Persister stores raw slot values. Load returns nil, nil for a missing
// slot. Update must run fn and write its result as one critical section per
// key; a nil result deletes the slot.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error
	Delete(ctx context.Context, key string) error
}

// Summary is the cart plus everything derived from it.
type Summary struct {
	Items  []domain.CartLineItem `json:"items"`
	Count  int                   `json:"count"`
	Totals domain.OrderTotals    `json:"totals"`
}

// Observer is told about every committed mutation.
type Observer interface {
	CartChanged(ctx context.Context, key string, s Summary)
}

type ObserverFunc func(ctx context.Context, key string, s Summary)

func (f ObserverFunc) CartChanged(ctx context.Context, key string, s Summary) { f(ctx, key, s) }

// Manager hands out Stores for sessions. Stores from the same Manager share
// the persister and observers, so two surfaces holding separate Stores for
// one session see the same cart.
type Manager struct {
	slot string
	p    Persister

	mu        sync.RWMutex
	observers []Observer
}

func NewManager(p Persister, slot string) *Manager {
	if slot == "" {
		slot = "so-cart"
	}
	return &Manager{slot: slot, p: p}
}

// Subscribe registers o for change notifications.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Key is the slot name for a session.
func (m *Manager) Key(sid string) string { return m.slot + ":" + sid }

func (m *Manager) Store(sid string) *Store {
	return &Store{m: m, key: m.Key(sid)}
}

func (m *Manager) notify(ctx context.Context, key string, items []domain.CartLineItem) {
	m.mu.RLock()
	obs := append([]Observer(nil), m.observers...)
	m.mu.RUnlock()
	if len(obs) == 0 {
		return
	}
	s := summarize(items)
	for _, o := range obs {
		o.CartChanged(ctx, key, s)
	}
}

// Store is one session's cart.
type Store struct {
	m   *Manager
	key string
}

func (s *Store) Key() string { return s.key }

// Add merges product into the cart: an existing line with the same id gets
// one more unit, otherwise a new line with quantity 1 is appended.
func (s *Store) Add(ctx context.Context, p domain.Product) ([]domain.CartLineItem, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, ErrInvalidProduct
	}
	return s.mutate(ctx, "cart.add", func(items []domain.CartLineItem) []domain.CartLineItem {
		return addItem(items, p)
	})
}

// Remove deletes the line for id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) ([]domain.CartLineItem, error) {
	return s.mutate(ctx, "cart.remove", func(items []domain.CartLineItem) []domain.CartLineItem {
		return removeItem(items, id)
	})
}

// ChangeQuantity adds delta to the line for id and drops the line when the
// result is zero or less. Unknown ids are a no-op.
func (s *Store) ChangeQuantity(ctx context.Context, id string, delta int) ([]domain.CartLineItem, error) {
	return s.mutate(ctx, "cart.quantity", func(items []domain.CartLineItem) []domain.CartLineItem {
		return changeQuantity(items, id, delta)
	})
}

// Clear empties the slot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.m.p.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("cart: clear %s: %w", s.key, err)
	}
	s.m.notify(ctx, s.key, nil)
	return nil
}

// Snapshot returns a copy of the persisted items in insertion order.
func (s *Store) Snapshot(ctx context.Context) ([]domain.CartLineItem, error) {
	raw, err := s.m.p.Load(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("cart: load %s: %w", s.key, err)
	}
	return s.decode(raw), nil
}

func (s *Store) TotalItemCount(ctx context.Context) (int, error) {
	items, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return countUnits(items), nil
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	items, err := s.Snapshot(ctx)
	if err != nil {
		return Summary{}, err
	}
	return summarize(items), nil
}

func (s *Store) mutate(ctx context.Context, action string, op func([]domain.CartLineItem) []domain.CartLineItem) ([]domain.CartLineItem, error) {
	var after []domain.CartLineItem
	err := s.m.p.Update(ctx, s.key, func(old []byte) ([]byte, error) {
		after = op(s.decode(old))
		if len(after) == 0 {
			return nil, nil
		}
		return json.Marshal(after)
	})
	if err != nil {
		applog.Error(nil, action, err, map[string]any{"slot": s.key})
		return nil, fmt.Errorf("cart: persist %s: %w", s.key, err)
	}
	if after == nil {
		after = []domain.CartLineItem{}
	}
	s.m.notify(ctx, s.key, after)
	return clone(after), nil
}

// decode treats a missing or unreadable slot as an empty cart.
func (s *Store) decode(raw []byte) []domain.CartLineItem {
	if len(raw) == 0 {
		return []domain.CartLineItem{}
	}
	var items []domain.CartLineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		applog.Warn(nil, "cart.slot.corrupt", err, map[string]any{"slot": s.key, "bytes": len(raw)})
		return []domain.CartLineItem{}
	}
	// Lines that could never have been written by this package are dropped.
	out := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" || it.Quantity < 1 {
			continue
		}
		out = append(out, it)
	}
	return out
}

func summarize(items []domain.CartLineItem) Summary {
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return Summary{Items: clone(items), Count: countUnits(items), Totals: pricing.Compute(items)}
}

func countUnits(items []domain.CartLineItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func clone(items []domain.CartLineItem) []domain.CartLineItem {
	return append(make([]domain.CartLineItem, 0, len(items)), items...)
}
