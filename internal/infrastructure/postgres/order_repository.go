package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const insertOrderSQL = `
	INSERT INTO orders (id, table_number, staff_id, status, total, receipt_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8)`

const insertOrderLineSQL = `
	INSERT INTO order_lines (order_id, position, plate_id, plate_name, quantity, unit_price, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectOrderSQL = `
	SELECT id, table_number, staff_id, status, total::text, COALESCE(receipt_id::text, ''), created_at, updated_at
	FROM orders`

const selectOrderLinesSQL = `
	SELECT plate_id, plate_name, quantity, unit_price::text, notes
	FROM order_lines WHERE order_id = $1 ORDER BY position`

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.querier(ctx)

		_, err := q.Exec(ctx, insertOrderSQL,
			order.ID, order.TableNumber, order.StaffID, string(order.Status),
			order.Total.String(), order.ReceiptID, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return domain.ErrConflict
			}
			return fmt.Errorf("order repository: insert: %w", err)
		}

		return insertLines(ctx, q, order)
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.querier(ctx).QueryRow(ctx, selectOrderSQL+` WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.querier(ctx)

		tag, err := q.Exec(ctx,
			`UPDATE orders SET status = $1, total = $2, receipt_id = NULLIF($3, '')::uuid, updated_at = $4 WHERE id = $5`,
			string(order.Status), order.Total.String(), order.ReceiptID, order.UpdatedAt, order.ID)
		if err != nil {
			return fmt.Errorf("order repository: update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		// Line sets are replaced wholesale; orders carry few lines.
		if _, err := q.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("order repository: clear lines: %w", err)
		}
		return insertLines(ctx, q, order)
	})
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	rows, err := r.db.querier(ctx).Query(ctx, selectOrderSQL+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}

	for _, order := range out {
		if err := r.loadLines(ctx, order); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *OrderRepository) FindPendingByTable(ctx context.Context, tableNumber int) (*domain.Order, error) {
	row := r.db.querier(ctx).QueryRow(ctx,
		selectOrderSQL+` WHERE table_number = $1 AND status = $2 LIMIT 1`,
		tableNumber, string(domain.StatusPending))
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.querier(ctx).Query(ctx, selectOrderLinesSQL, order.ID)
	if err != nil {
		return fmt.Errorf("order repository: lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line  domain.Line
			price string
		)
		if err := rows.Scan(&line.PlateID, &line.PlateName, &line.Quantity, &price, &line.Notes); err != nil {
			return fmt.Errorf("order repository: scan line: %w", err)
		}
		line.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("order repository: parse unit price: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return rows.Err()
}

func insertLines(ctx context.Context, q querier, order *domain.Order) error {
	for i, line := range order.Lines {
		_, err := q.Exec(ctx, insertOrderLineSQL,
			order.ID, i, line.PlateID, line.PlateName, line.Quantity, line.UnitPrice.String(), line.Notes)
		if err != nil {
			return fmt.Errorf("order repository: insert line: %w", err)
		}
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order     domain.Order
		status    string
		total     string
		receiptID string
	)
	err := row.Scan(&order.ID, &order.TableNumber, &order.StaffID, &status,
		&total, &receiptID, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order repository: scan: %w", err)
	}
	order.Status = domain.Status(status)
	order.ReceiptID = receiptID
	order.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order repository: parse total: %w", err)
	}
	return &order, nil
}
