package receipt

import "context"

type Repository interface {
	// Insert persists a receipt. It fails with ErrAlreadyIssued when a
	// receipt for the same order already exists.
	Insert(ctx context.Context, receipt *Receipt) error
	GetByOrder(ctx context.Context, orderID string) (*Receipt, error)
}
