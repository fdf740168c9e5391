package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	List(ctx context.Context) ([]*Order, error)
	FindPendingByTable(ctx context.Context, tableNumber int) (*Order, error)
}
