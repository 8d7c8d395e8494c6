package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepoutside/internal/cart"
	"sleepoutside/internal/cart/carttest"
	"sleepoutside/internal/domain"
)

func product(id, price string) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, FinalPrice: decimal.RequireFromString(price)}
}

func newStore(t *testing.T) (*cart.Manager, *cart.MemoryPersister, *cart.Store) {
	t.Helper()
	p := cart.NewMemoryPersister()
	m := cart.NewManager(p, "so-cart")
	return m, p, m.Store("sid-1")
}

func quantities(items []domain.CartLineItem) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		out[it.ID] = it.Quantity
	}
	return out
}

func TestMemoryPersister(t *testing.T) {
	carttest.Run(t, cart.NewMemoryPersister())
}

func TestAdd_MergesByID(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)

	_, err := s.Add(ctx, product("880RR", "199.99"))
	require.NoError(t, err)
	items, err := s.Add(ctx, product("880rr ", "199.99"))
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "880RR", items[0].ID)
}

func TestAdd_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	for _, id := range []string{"C", "A", "B", "A"} {
		_, err := s.Add(ctx, product(id, "1"))
		require.NoError(t, err)
	}
	items, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestAdd_RejectsEmptyID(t *testing.T) {
	_, _, s := newStore(t)
	_, err := s.Add(context.Background(), product(" ", "1"))
	assert.ErrorIs(t, err, cart.ErrInvalidProduct)
}

func TestChangeQuantity_ZeroRemoves(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	_, _ = s.Add(ctx, product("A", "5"))
	_, _ = s.Add(ctx, product("B", "5"))

	items, err := s.ChangeQuantity(ctx, "a", -1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1}, quantities(items))

	items, err = s.ChangeQuantity(ctx, "B", 4)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 5}, quantities(items))

	items, err = s.ChangeQuantity(ctx, "B", -9)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRemoveAndChange_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	_, _ = s.Add(ctx, product("A", "5"))

	items, err := s.Remove(ctx, "Z")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, quantities(items))

	items, err = s.ChangeQuantity(ctx, "Z", 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, quantities(items))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	_, _ = s.Add(ctx, product("A", "5"))
	_, _ = s.Add(ctx, product("A", "5"))
	_, _ = s.Add(ctx, product("B", "5"))

	items, err := s.Remove(ctx, " a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1}, quantities(items))
}

// Reloading from the slot after any sequence gives the same cart that the
// sequence produced in memory.
func TestReplayEquivalence(t *testing.T) {
	ctx := context.Background()
	m, _, s := newStore(t)

	type step struct {
		op    string
		id    string
		delta int
	}
	steps := []step{
		{"add", "A", 0}, {"add", "B", 0}, {"add", "A", 0}, {"qty", "B", 3},
		{"add", "C", 0}, {"qty", "A", -2}, {"remove", "C", 0}, {"add", "A", 0},
		{"qty", "missing", 1}, {"remove", "missing", 0},
	}
	var last []domain.CartLineItem
	var err error
	for _, st := range steps {
		switch st.op {
		case "add":
			last, err = s.Add(ctx, product(st.id, "2.50"))
		case "qty":
			last, err = s.ChangeQuantity(ctx, st.id, st.delta)
		case "remove":
			last, err = s.Remove(ctx, st.id)
		}
		require.NoError(t, err)
	}

	reloaded, err := m.Store("sid-1").Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, quantities(last), quantities(reloaded))
	assert.Equal(t, map[string]int{"B": 4, "A": 1}, quantities(reloaded))
	assert.Equal(t, []string{"B", "A"}, []string{reloaded[0].ID, reloaded[1].ID})
}

func TestSnapshotPreservesProduct(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	p := product("880RR", "199.99")
	p.SuggestedPrice = decimal.NewNullDecimal(decimal.RequireFromString("300"))
	p.Colors = []domain.Color{{Code: "01", Name: "Pale Pumpkin"}}
	_, err := s.Add(ctx, p)
	require.NoError(t, err)

	items, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, p.FinalPrice.Equal(items[0].FinalPrice))
	assert.True(t, items[0].SuggestedPrice.Valid)
	assert.Equal(t, "Pale Pumpkin", items[0].DefaultColor())
}

func TestCorruptSlotIsEmptyCart(t *testing.T) {
	ctx := context.Background()
	m, p, s := newStore(t)
	p.Put(m.Key("sid-1"), []byte(`{not json`))

	items, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	n, err := s.TotalItemCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The next mutation overwrites the corrupt value.
	items, err = s.Add(ctx, product("A", "1"))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSlotsAreIsolatedPerSession(t *testing.T) {
	ctx := context.Background()
	m, _, a := newStore(t)
	b := m.Store("sid-2")

	_, _ = a.Add(ctx, product("A", "1"))
	n, err := b.TotalItemCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "so-cart:sid-2", b.Key())
}

func TestSummaryAndCount(t *testing.T) {
	ctx := context.Background()
	_, _, s := newStore(t)
	_, _ = s.Add(ctx, product("A", "50"))
	_, _ = s.Add(ctx, product("A", "50"))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, "100", sum.Totals.ItemSubtotal.String())
	assert.Equal(t, "6", sum.Totals.Tax.String())
	assert.Equal(t, "12", sum.Totals.Shipping.String())
	assert.Equal(t, "118", sum.Totals.GrandTotal.String())
}

func TestClearAndObservers(t *testing.T) {
	ctx := context.Background()
	m, _, s := newStore(t)

	var mu sync.Mutex
	var counts []int
	m.Subscribe(cart.ObserverFunc(func(_ context.Context, key string, sum cart.Summary) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "so-cart:sid-1", key)
		counts = append(counts, sum.Count)
	}))

	_, _ = s.Add(ctx, product("A", "1"))
	_, _ = s.Add(ctx, product("B", "1"))
	_, _ = s.ChangeQuantity(ctx, "A", 2)
	require.NoError(t, s.Clear(ctx))

	items, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 4, 0}, counts)
}

type failingPersister struct{ cart.MemoryPersister }

func (*failingPersister) Update(context.Context, string, func([]byte) ([]byte, error)) error {
	return errors.New("disk full")
}

func TestPersistFailureIsReturnedAndNotObserved(t *testing.T) {
	m := cart.NewManager(&failingPersister{}, "")
	notified := false
	m.Subscribe(cart.ObserverFunc(func(context.Context, string, cart.Summary) { notified = true }))

	_, err := m.Store("x").Add(context.Background(), product("A", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, notified)
}

func TestConcurrentAddsAcrossStores(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine uses its own Store for the same session.
			_, err := m.Store("sid-1").Add(ctx, product("A", "1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := m.Store("sid-1").TotalItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}
