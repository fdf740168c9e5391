package httppresentation

import (
	"time"

	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
)

// Monetary amounts are rendered as decimal strings so clients never touch
// binary floating point.

type lineResponse struct {
	PlateID   string `json:"plate_id"`
	PlateName string `json:"plate_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
	Notes     string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID          string         `json:"id"`
	TableNumber int            `json:"table_number"`
	StaffID     string         `json:"staff_id"`
	Status      string         `json:"status"`
	Lines       []lineResponse `json:"lines"`
	Total       string         `json:"total"`
	ReceiptID   string         `json:"receipt_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	lines := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineResponse{
			PlateID:   l.PlateID,
			PlateName: l.PlateName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Total:     l.Total().StringFixed(2),
			Notes:     l.Notes,
		})
	}
	return orderResponse{
		ID:          o.ID,
		TableNumber: o.TableNumber,
		StaffID:     o.StaffID,
		Status:      string(o.Status),
		Lines:       lines,
		Total:       o.Total.StringFixed(2),
		ReceiptID:   o.ReceiptID,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

type tableResponse struct {
	Number    int       `json:"number"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTableResponse(t *domtable.Table) tableResponse {
	return tableResponse{
		Number:    t.Number,
		Status:    string(t.Status),
		UpdatedAt: t.UpdatedAt,
	}
}

type receiptResponse struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	ReceiptType  string    `json:"receipt_type"`
	CustomerName string    `json:"customer_name,omitempty"`
	DNI          string    `json:"dni,omitempty"`
	RUC          string    `json:"ruc,omitempty"`
	Discount     string    `json:"discount"`
	Subtotal     string    `json:"subtotal"`
	IGV          string    `json:"igv"`
	Total        string    `json:"total"`
	IssuedAt     time.Time `json:"issued_at"`
}

func toReceiptResponse(r *domreceipt.Receipt) receiptResponse {
	return receiptResponse{
		ID:           r.ID,
		OrderID:      r.OrderID,
		ReceiptType:  string(r.Kind),
		CustomerName: r.CustomerName,
		DNI:          r.DNI,
		RUC:          r.RUC,
		Discount:     r.Discount.StringFixed(2),
		Subtotal:     r.Subtotal.StringFixed(2),
		IGV:          r.IGV.StringFixed(2),
		Total:        r.Total.StringFixed(2),
		IssuedAt:     r.IssuedAt,
	}
}

type plateResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
}

func toPlateResponse(p *domcatalog.Plate) plateResponse {
	return plateResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
	}
}
