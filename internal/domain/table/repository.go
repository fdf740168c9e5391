package table

import "context"

type Repository interface {
	Get(ctx context.Context, number int) (*Table, error)
	Update(ctx context.Context, table *Table) error
	List(ctx context.Context) ([]*Table, error)
}
