// Package carttest holds the behaviour every cart.Persister must share.
package carttest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"sleepoutside/internal/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises p through the Persister contract. Keys are prefixed with
// t.Name() so one backend can be shared between subtests.
func Run(t *testing.T, p cart.Persister) {
	ctx := context.Background()

	t.Run("missing slot loads nil", func(t *testing.T) {
		raw, err := p.Load(ctx, t.Name())
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("update writes and nil deletes", func(t *testing.T) {
		key := t.Name()
		require.NoError(t, p.Update(ctx, key, func(old []byte) ([]byte, error) {
			assert.Nil(t, old)
			return []byte(`[1]`), nil
		}))
		raw, err := p.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `[1]`, string(raw))

		require.NoError(t, p.Update(ctx, key, func(old []byte) ([]byte, error) {
			assert.Equal(t, `[1]`, string(old))
			return nil, nil
		}))
		raw, err = p.Load(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("fn error leaves slot untouched", func(t *testing.T) {
		key := t.Name()
		require.NoError(t, p.Update(ctx, key, func([]byte) ([]byte, error) { return []byte(`"a"`), nil }))
		boom := errors.New("boom")
		err := p.Update(ctx, key, func([]byte) ([]byte, error) { return []byte(`"b"`), boom })
		require.ErrorIs(t, err, boom)
		raw, err := p.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `"a"`, string(raw))
	})

	t.Run("delete", func(t *testing.T) {
		key := t.Name()
		require.NoError(t, p.Update(ctx, key, func([]byte) ([]byte, error) { return []byte(`"a"`), nil }))
		require.NoError(t, p.Delete(ctx, key))
		require.NoError(t, p.Delete(ctx, key))
		raw, err := p.Load(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("concurrent updates serialize", func(t *testing.T) {
		key := t.Name()
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := p.Update(ctx, key, func(old []byte) ([]byte, error) {
					v := 0
					if old != nil {
						var err error
						if v, err = strconv.Atoi(string(old)); err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(v + 1)), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		raw, err := p.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(n), string(raw))
	})
}
