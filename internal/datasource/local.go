package datasource

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"sleepoutside/internal/domain"
)

//go:embed fallback/*.json
var bundled embed.FS

// Bundled is the fallback dataset shipped in the binary, one file per
// category.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "fallback")
	if err != nil {
		panic(err)
	}
	return sub
}

// LocalProvider serves products from static per-category JSON files named
// <category>.json. Parsed files are kept in memory; only successful parses
// are cached.
type LocalProvider struct {
	files fs.FS

	mu    sync.Mutex
	cache map[string][]domain.Product
}

func NewLocalProvider(files fs.FS) *LocalProvider {
	return &LocalProvider{files: files, cache: map[string][]domain.Product{}}
}

func (p *LocalProvider) Name() string { return "local" }

// Categories lists the categories present in the dataset, sorted.
func (p *LocalProvider) Categories() []string {
	matches, err := fs.Glob(p.files, "*.json")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(path.Base(m), ".json"))
	}
	sort.Strings(out)
	return out
}

func (p *LocalProvider) Category(_ context.Context, category string) ([]domain.Product, error) {
	products, err := p.load(category)
	if err != nil {
		return nil, err
	}
	return append([]domain.Product(nil), products...), nil
}

// Product scans every known category because callers only have an id.
func (p *LocalProvider) Product(ctx context.Context, id string) (domain.Product, error) {
	var errs []error
	for _, cat := range p.Categories() {
		if err := ctx.Err(); err != nil {
			return domain.Product{}, err
		}
		products, err := p.load(cat)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, prod := range products {
			if domain.SameID(prod.ID, id) {
				return prod, nil
			}
		}
	}
	if len(errs) > 0 {
		return domain.Product{}, errors.Join(append([]error{ErrNotFound}, errs...)...)
	}
	return domain.Product{}, ErrNotFound
}

func (p *LocalProvider) load(category string) ([]domain.Product, error) {
	if !validCategory(category) {
		return nil, fmt.Errorf("local: invalid category %q", category)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[category]; ok {
		return cached, nil
	}
	data, err := fs.ReadFile(p.files, category+".json")
	if err != nil {
		return nil, fmt.Errorf("local: read %s: %w", category, err)
	}
	products, err := decodeList(data, category)
	if err != nil {
		return nil, fmt.Errorf("local: decode %s: %w", category, err)
	}
	p.cache[category] = products
	return products, nil
}

// validCategory keeps lookups inside the dataset root.
func validCategory(c string) bool {
	if c == "" || len(c) > 64 {
		return false
	}
	for _, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
