package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
)

type ReceiptRepository struct {
	mu      sync.RWMutex
	byOrder map[string]*domain.Receipt
}

func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{
		byOrder: make(map[string]*domain.Receipt),
	}
}

// Insert enforces the one-receipt-per-order invariant at the storage level:
// the existence check and the write share one critical section.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt *domain.Receipt) error {
	_ = ctx
	if receipt == nil || receipt.ID == "" || receipt.OrderID == "" {
		return fmt.Errorf("receipt repository: id and order id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[receipt.OrderID]; exists {
		return domain.ErrAlreadyIssued
	}
	r.byOrder[receipt.OrderID] = receipt.Clone()
	return nil
}

func (r *ReceiptRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Receipt, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	receipt, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return receipt.Clone(), nil
}
