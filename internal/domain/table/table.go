package table

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("table: not found")
	ErrNotAvailable  = errors.New("table: not available")
	ErrUnknownStatus = errors.New("table: unknown status")
)

type Status string

const (
	StatusAvailable     Status = "available"
	StatusAwaitingOrder Status = "awaiting_order"
	StatusDelivered     Status = "delivered"
)

// ParseStatus converts a caller-supplied status name into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusAvailable:
		return StatusAvailable, nil
	case StatusAwaitingOrder:
		return StatusAwaitingOrder, nil
	case StatusDelivered:
		return StatusDelivered, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Table tracks the availability of one physical table. Its status is driven
// by order lifecycle events; the manual SetStatus path exists only for
// operator reconciliation.
type Table struct {
	Number    int
	Status    Status
	UpdatedAt time.Time
}

func New(number int) *Table {
	return &Table{
		Number:    number,
		Status:    StatusAvailable,
		UpdatedAt: time.Now().UTC(),
	}
}

// Reserve binds the table to a newly created order. Exactly one of several
// racing reservations may succeed; the rest observe the table as taken.
func (t *Table) Reserve() error {
	if t.Status != StatusAvailable {
		return fmt.Errorf("%w: table %d is %s", ErrNotAvailable, t.Number, t.Status)
	}
	t.Status = StatusAwaitingOrder
	t.touch()
	return nil
}

// MarkDelivered records that the food for the active order has been served.
func (t *Table) MarkDelivered() {
	t.Status = StatusDelivered
	t.touch()
}

// Release frees the table once its order reached a terminal status.
func (t *Table) Release() {
	t.Status = StatusAvailable
	t.touch()
}

// SetStatus is the manual reconciliation path for tables stuck in a state
// their order never resolved (for example delivered with an abandoned order).
func (t *Table) SetStatus(s Status) {
	t.Status = s
	t.touch()
}

// Clone returns a copy so repository snapshots cannot be mutated by callers.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func (t *Table) touch() {
	t.UpdatedAt = time.Now().UTC()
}
