package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/jackc/pgx/v5"
)

type TableRepository struct {
	db *DB
}

func NewTableRepository(db *DB) *TableRepository {
	return &TableRepository{db: db}
}

func (r *TableRepository) Get(ctx context.Context, number int) (*domain.Table, error) {
	var (
		t      domain.Table
		status string
	)
	err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT number, status, updated_at FROM restaurant_tables WHERE number = $1`,
		number).Scan(&t.Number, &status, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("table repository: get: %w", err)
	}
	t.Status = domain.Status(status)
	return &t, nil
}

func (r *TableRepository) Update(ctx context.Context, t *domain.Table) error {
	tag, err := r.db.querier(ctx).Exec(ctx,
		`UPDATE restaurant_tables SET status = $1, updated_at = $2 WHERE number = $3`,
		string(t.Status), t.UpdatedAt, t.Number)
	if err != nil {
		return fmt.Errorf("table repository: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TableRepository) List(ctx context.Context) ([]*domain.Table, error) {
	rows, err := r.db.querier(ctx).Query(ctx,
		`SELECT number, status, updated_at FROM restaurant_tables ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("table repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Table
	for rows.Next() {
		var (
			t      domain.Table
			status string
		)
		if err := rows.Scan(&t.Number, &status, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("table repository: scan: %w", err)
		}
		t.Status = domain.Status(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}
