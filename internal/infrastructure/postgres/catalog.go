package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Catalog reads the plate menu maintained by an external admin tool.
type Catalog struct {
	db *DB
}

func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Plate(ctx context.Context, id string) (*domain.Plate, error) {
	var (
		p     domain.Plate
		price string
	)
	err := c.db.querier(ctx).QueryRow(ctx,
		`SELECT id, name, description, price::text, active FROM plates WHERE id = $1`,
		id).Scan(&p.ID, &p.Name, &p.Description, &price, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get plate: %w", err)
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse price: %w", err)
	}
	return &p, nil
}

func (c *Catalog) ListActive(ctx context.Context) ([]*domain.Plate, error) {
	rows, err := c.db.querier(ctx).Query(ctx,
		`SELECT id, name, description, price::text, active FROM plates WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list plates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Plate
	for rows.Next() {
		var (
			p     domain.Plate
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan plate: %w", err)
		}
		p.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("catalog: parse price: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
