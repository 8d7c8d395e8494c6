package datasource

import (
	"context"
	"errors"
	"net/http"

	"sleepoutside/internal/domain"
	"sleepoutside/internal/remote"

	"golang.org/x/sync/singleflight"
)

// Getter is the part of remote.Client the provider needs.
type Getter interface {
	GetJSON(ctx context.Context, path string) ([]byte, error)
}

// RemoteProvider reads the product API. Identical requests in flight at the
// same time share one upstream call.
type RemoteProvider struct {
	api    Getter
	flight singleflight.Group
}

func NewRemoteProvider(api Getter) *RemoteProvider {
	return &RemoteProvider{api: api}
}

func (p *RemoteProvider) Name() string { return "remote" }

func (p *RemoteProvider) Category(ctx context.Context, category string) ([]domain.Product, error) {
	path := "products/search/" + remote.Segment(category)
	v, err := p.shared(ctx, path, func(ctx context.Context) (any, error) {
		body, err := p.api.GetJSON(ctx, path)
		if err != nil {
			return nil, err
		}
		return decodeList(body, category)
	})
	if err != nil {
		return nil, err
	}
	// Shared results must not be mutated by one caller under another.
	products := v.([]domain.Product)
	return append([]domain.Product(nil), products...), nil
}

func (p *RemoteProvider) Product(ctx context.Context, id string) (domain.Product, error) {
	path := "product/" + remote.Segment(id)
	v, err := p.shared(ctx, path, func(ctx context.Context) (any, error) {
		body, err := p.api.GetJSON(ctx, path)
		if err != nil {
			var te *remote.TransportError
			if errors.As(err, &te) && te.Status == http.StatusNotFound {
				return domain.Product{}, ErrNotFound
			}
			return nil, err
		}
		return decodeOne(body, "")
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}

// shared runs fn once per key for all concurrent callers. The upstream call
// is detached from any one caller's cancellation and bounded by the client
// timeout; each caller still stops waiting when its own ctx ends.
func (p *RemoteProvider) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}
