package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/table"
)

type TableRepository struct {
	mu     sync.RWMutex
	tables map[int]*domain.Table
}

// NewTableRepository seeds one available table per given number.
func NewTableRepository(numbers ...int) *TableRepository {
	tables := make(map[int]*domain.Table, len(numbers))
	for _, n := range numbers {
		tables[n] = domain.New(n)
	}
	return &TableRepository{tables: tables}
}

func (r *TableRepository) Get(ctx context.Context, number int) (*domain.Table, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *TableRepository) Update(ctx context.Context, t *domain.Table) error {
	_ = ctx
	if t == nil {
		return domain.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[t.Number]; !ok {
		return domain.ErrNotFound
	}
	r.tables[t.Number] = t.Clone()
	return nil
}

func (r *TableRepository) List(ctx context.Context) ([]*domain.Table, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
