package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("receipt: not found")
	ErrAlreadyIssued        = errors.New("receipt: order already has a receipt")
	ErrOrderNotReady        = errors.New("receipt: order is not ready for payment")
	ErrDiscountExceedsTotal = errors.New("receipt: discount cannot exceed the order total")
	ErrNegativeDiscount     = errors.New("receipt: discount cannot be negative")
	ErrUnknownKind          = errors.New("receipt: kind must be BOLETA or FACTURA")
	ErrInvalidDNI           = errors.New("receipt: dni must be 8 digits")
	ErrInvalidRUC           = errors.New("receipt: ruc must be 11 digits")
)

// Prices are tax inclusive; the breakdown divides out an 18% IGV.
var igvDivisor = decimal.RequireFromString("1.18")

type Kind string

const (
	KindBoleta  Kind = "BOLETA"
	KindFactura Kind = "FACTURA"
)

// ParseKind converts a caller-supplied receipt type into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindBoleta:
		return KindBoleta, nil
	case KindFactura:
		return KindFactura, nil
	default:
		return "", ErrUnknownKind
	}
}

// Customer identifies who the receipt is issued to. A BOLETA carries a DNI,
// a FACTURA carries a RUC; never both.
type Customer struct {
	Name string
	DNI  string
	RUC  string
}

type Receipt struct {
	ID           string
	OrderID      string
	Kind         Kind
	CustomerName string
	DNI          string
	RUC          string
	Discount     decimal.Decimal
	Subtotal     decimal.Decimal
	IGV          decimal.Decimal
	Total        decimal.Decimal
	IssuedAt     time.Time
}

// Breakdown back-computes the tax split of a tax-inclusive order total after
// the discount. The subtotal is rounded half up to two decimals; the IGV is
// derived from it so that subtotal + igv reproduces the discounted total
// exactly.
func Breakdown(orderTotal, discount decimal.Decimal) (subtotal, igv, total decimal.Decimal, err error) {
	if discount.IsNegative() {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrNegativeDiscount
	}
	if discount.GreaterThan(orderTotal) {
		return decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("%w: discount %s, total %s", ErrDiscountExceedsTotal, discount, orderTotal)
	}
	total = orderTotal.Sub(discount)
	subtotal = total.DivRound(igvDivisor, 2)
	igv = total.Sub(subtotal)
	return subtotal, igv, total, nil
}

// New builds an immutable receipt for the given order total. The stored
// identification field follows the requested kind; the other stays empty.
func New(id, orderID string, kind Kind, customer Customer, orderTotal, discount decimal.Decimal) (*Receipt, error) {
	subtotal, igv, total, err := Breakdown(orderTotal, discount)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		ID:           id,
		OrderID:      orderID,
		Kind:         kind,
		CustomerName: customer.Name,
		Discount:     discount,
		Subtotal:     subtotal,
		IGV:          igv,
		Total:        total,
		IssuedAt:     time.Now().UTC(),
	}

	switch kind {
	case KindBoleta:
		if !isDigits(customer.DNI, 8) {
			return nil, ErrInvalidDNI
		}
		r.DNI = customer.DNI
	case KindFactura:
		if !isDigits(customer.RUC, 11) {
			return nil, ErrInvalidRUC
		}
		r.RUC = customer.RUC
	default:
		return nil, ErrUnknownKind
	}

	return r, nil
}

// Clone returns a copy so repository snapshots cannot be mutated by callers.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
