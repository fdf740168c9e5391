package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
)

// Catalog is an in-memory plate lookup, read only after seeding.
type Catalog struct {
	mu     sync.RWMutex
	plates map[string]*domain.Plate
}

func NewCatalog(plates ...*domain.Plate) *Catalog {
	byID := make(map[string]*domain.Plate, len(plates))
	for _, p := range plates {
		if p == nil {
			continue
		}
		clone := *p
		byID[p.ID] = &clone
	}
	return &Catalog{plates: byID}
}

func (c *Catalog) Plate(ctx context.Context, id string) (*domain.Plate, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (c *Catalog) ListActive(ctx context.Context) ([]*domain.Plate, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.Plate, 0, len(c.plates))
	for _, p := range c.plates {
		if !p.Active {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
