package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type ReceiptRepository struct {
	db *DB
}

func NewReceiptRepository(db *DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Insert relies on the UNIQUE(order_id) constraint to hold the
// one-receipt-per-order invariant even across service instances.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt *domain.Receipt) error {
	_, err := r.db.querier(ctx).Exec(ctx,
		`INSERT INTO receipts (id, order_id, kind, customer_name, dni, ruc, discount, subtotal, igv, total, issued_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11)`,
		receipt.ID, receipt.OrderID, string(receipt.Kind), receipt.CustomerName,
		receipt.DNI, receipt.RUC,
		receipt.Discount.String(), receipt.Subtotal.String(), receipt.IGV.String(), receipt.Total.String(),
		receipt.IssuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyIssued
		}
		return fmt.Errorf("receipt repository: insert: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Receipt, error) {
	var (
		rec      domain.Receipt
		kind     string
		dni      *string
		ruc      *string
		discount string
		subtotal string
		igv      string
		total    string
	)
	err := r.db.querier(ctx).QueryRow(ctx,
		`SELECT id, order_id, kind, customer_name, dni, ruc,
		        discount::text, subtotal::text, igv::text, total::text, issued_at
		 FROM receipts WHERE order_id = $1`, orderID).
		Scan(&rec.ID, &rec.OrderID, &kind, &rec.CustomerName, &dni, &ruc,
			&discount, &subtotal, &igv, &total, &rec.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receipt repository: get: %w", err)
	}

	rec.Kind = domain.Kind(kind)
	if dni != nil {
		rec.DNI = *dni
	}
	if ruc != nil {
		rec.RUC = *ruc
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Discount, discount},
		{&rec.Subtotal, subtotal},
		{&rec.IGV, igv},
		{&rec.Total, total},
	} {
		*f.dst, err = decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("receipt repository: parse amount: %w", err)
		}
	}
	return &rec, nil
}
