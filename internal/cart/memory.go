package cart

import (
	"context"
	"sync"
)

// MemoryPersister keeps slots in process memory. Used for CART_BACKEND=memory
// and in tests; contents are lost on restart.
type MemoryPersister struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{slots: map[string][]byte{}}
}

func (p *MemoryPersister) Load(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.slots[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (p *MemoryPersister) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	var old []byte
	if v, ok := p.slots[key]; ok {
		old = append([]byte(nil), v...)
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	if next == nil {
		delete(p.slots, key)
		return nil
	}
	p.slots[key] = append([]byte(nil), next...)
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, key)
	return nil
}

// Put overwrites a slot verbatim. Tests use it to plant corrupt values.
func (p *MemoryPersister) Put(key string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[key] = append([]byte(nil), raw...)
}
