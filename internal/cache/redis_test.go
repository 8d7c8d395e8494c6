package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepoutside/internal/cart"
	"sleepoutside/internal/cart/carttest"
	"sleepoutside/internal/domain"
)

// setupTestRedis starts a miniredis server and a SlotStore pointed at it.
func setupTestRedis(t *testing.T, ttl time.Duration) (*SlotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSlotStore(client, "test:", ttl), mr
}

func TestSlotStore_Persister(t *testing.T) {
	s, _ := setupTestRedis(t, 0)
	carttest.Run(t, s)
}

func TestSlotStore_KeyPrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, time.Hour)

	require.NoError(t, s.Update(ctx, "so-cart:abc", func([]byte) ([]byte, error) { return []byte(`[]`), nil }))

	assert.True(t, mr.Exists("test:so-cart:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:so-cart:abc"))

	mr.FastForward(2 * time.Hour)
	raw, err := s.Load(ctx, "so-cart:abc")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestSlotStore_CorruptValueIsEmptyCart(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, 0)
	m := cart.NewManager(s, "so-cart")
	require.NoError(t, mr.Set("test:"+m.Key("abc"), "garbage"))

	items, err := m.Store("abc").Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSlotStore_BacksCartStore(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, 0)
	m := cart.NewManager(s, "so-cart")
	st := m.Store("abc")

	p := domain.Product{ID: "20CXG", Name: "The North Face Borealis", FinalPrice: decimal.RequireFromString("89.00")}
	_, err := st.Add(ctx, p)
	require.NoError(t, err)
	_, err = st.ChangeQuantity(ctx, "20cxg", 2)
	require.NoError(t, err)

	n, err := st.TotalItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, st.Clear(ctx))
	assert.False(t, mr.Exists("test:so-cart:abc"))
}

func TestSlotStore_ServerDown(t *testing.T) {
	s, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := s.Load(context.Background(), "k")
	assert.Error(t, err)
	err = s.Update(context.Background(), "k", func([]byte) ([]byte, error) { return []byte("x"), nil })
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("redis://localhost:6390/2", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6390", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	_ = c.Close()

	c, err = NewClient("", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Options().Addr)
	_ = c.Close()

	_, err = NewClient("http://nope", "")
	assert.Error(t, err)
}
