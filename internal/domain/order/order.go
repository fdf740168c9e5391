package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: conflict")
	ErrEmptyLines        = errors.New("order: at least one line is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrNotPending        = errors.New("order: only pending orders can be edited")
	ErrInvalidTransition = errors.New("order: transition not allowed")
	ErrUnknownStatus     = errors.New("order: unknown status")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// ParseStatus converts a caller-supplied status name into a Status.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusPreparing:
		return StatusPreparing, nil
	case StatusReady:
		return StatusReady, nil
	case StatusPaid:
		return StatusPaid, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Filter is a parsed status filter for listings. A nil Statuses with All set
// means "no filter"; an empty Statuses set without All yields no results.
type Filter struct {
	All      bool
	Statuses []Status
}

// ParseFilter parses a comma-separated status list. An empty value or "ALL"
// means no filtering. Unknown tokens are skipped, so a filter made entirely
// of unknown names matches nothing rather than failing.
func ParseFilter(raw string) Filter {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return Filter{All: true}
	}
	var statuses []Status
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		status, err := ParseStatus(part)
		if err != nil {
			continue
		}
		statuses = append(statuses, status)
	}
	if statuses == nil {
		statuses = []Status{}
	}
	return Filter{Statuses: statuses}
}

// Matches reports whether an order status passes the filter.
func (f Filter) Matches(s Status) bool {
	if f.All {
		return true
	}
	for _, allowed := range f.Statuses {
		if allowed == s {
			return true
		}
	}
	return false
}

// Line is one plate position within an order. The unit price is captured at
// order time and never follows later catalog changes.
type Line struct {
	PlateID   string
	PlateName string
	Quantity  int
	UnitPrice decimal.Decimal
	Notes     string
}

// Total returns unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          string
	TableNumber int
	StaffID     string
	Status      Status
	Lines       []Line
	Total       decimal.Decimal
	ReceiptID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds a pending order from captured lines. Lines are validated and the
// total is derived from them; both stay consistent for the order's lifetime.
func New(id string, tableNumber int, staffID string, lines []Line) (*Order, error) {
	total, err := totalOf(lines)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Order{
		ID:          id,
		TableNumber: tableNumber,
		StaffID:     staffID,
		Status:      StatusPending,
		Lines:       append([]Line(nil), lines...),
		Total:       total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ReplaceLines swaps the whole line set and recomputes the total. Permitted
// only while the order is still pending.
func (o *Order) ReplaceLines(lines []Line) error {
	if o.Status != StatusPending {
		return ErrNotPending
	}
	total, err := totalOf(lines)
	if err != nil {
		return err
	}
	o.Lines = append([]Line(nil), lines...)
	o.Total = total
	o.touch()
	return nil
}

// AttachReceipt records the one-to-one receipt reference.
func (o *Order) AttachReceipt(receiptID string) {
	o.ReceiptID = receiptID
	o.touch()
}

// Clone returns a deep copy so repository snapshots cannot be mutated by callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func totalOf(lines []Line) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, ErrEmptyLines
	}
	total := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return decimal.Zero, ErrInvalidQuantity
		}
		total = total.Add(line.Total())
	}
	return total, nil
}
