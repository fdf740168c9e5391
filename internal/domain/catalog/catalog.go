package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("catalog: plate not found")
	ErrInactive = errors.New("catalog: plate is not available")
)

// Plate is a sellable item. The catalog is read only from this service's
// perspective; menu management lives elsewhere.
type Plate struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Active      bool
}

type Catalog interface {
	Plate(ctx context.Context, id string) (*Plate, error)
	ListActive(ctx context.Context) ([]*Plate, error)
}
