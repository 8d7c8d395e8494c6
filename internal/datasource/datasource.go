// Package datasource loads catalog products. Sources are tried in order and
// the first one that produces a usable answer wins, so the storefront keeps
// working from bundled data when the product API is down.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sleepoutside/internal/domain"
	applog "sleepoutside/internal/log"
)

// ErrNotFound means no source knows the requested product.
var ErrNotFound = errors.New("product not found")

// Provider is one source in the fallback chain.
type Provider interface {
	Name() string
	Category(ctx context.Context, category string) ([]domain.Product, error)
	Product(ctx context.Context, id string) (domain.Product, error)
}

// Degraded is the failure predicate shared by every step of the chain: an
// error or an empty answer moves on to the next provider.
func Degraded(err error, n int) bool {
	return err != nil || n == 0
}

type Source struct {
	providers []Provider
}

func New(providers ...Provider) *Source {
	return &Source{providers: providers}
}

// FetchByCategory never fails. When every provider degrades the result is
// empty and the listing shows "no products found".
func (s *Source) FetchByCategory(ctx context.Context, category string) []domain.Product {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return []domain.Product{}
	}
	for i, p := range s.providers {
		products, err := p.Category(ctx, category)
		if Degraded(err, len(products)) {
			s.fellThrough(i, "category", category, err)
			continue
		}
		return products
	}
	return []domain.Product{}
}

// FetchByID returns ErrNotFound when no provider has the id. Transport
// failures on the way are logged, not returned.
func (s *Source) FetchByID(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	for i, p := range s.providers {
		product, err := p.Product(ctx, id)
		n := 0
		if err == nil && product.ID != "" {
			n = 1
		}
		if Degraded(err, n) {
			if !errors.Is(err, ErrNotFound) {
				s.fellThrough(i, "product", id, err)
			}
			continue
		}
		return product, nil
	}
	return domain.Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Source) fellThrough(i int, kind, key string, err error) {
	fields := map[string]any{"provider": s.providers[i].Name(), "kind": kind, "key": key}
	if i+1 < len(s.providers) {
		fields["next"] = s.providers[i+1].Name()
	}
	applog.Warn(nil, "datasource.fallback", err, fields)
}
