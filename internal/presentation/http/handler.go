package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/comanda/internal/application/order"
	appReceipt "github.com/Zhima-Mochi/comanda/internal/application/receipt"
	appTable "github.com/Zhima-Mochi/comanda/internal/application/table"
	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	orderService   *appOrder.Service
	receiptService *appReceipt.Service
	tableService   *appTable.Service
	catalog        domcatalog.Catalog
	log            observability.Logger
	tel            observability.Telemetry
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerStaffID        = "X-Staff-ID"
	headerStaffRole      = "X-Staff-Role"
)

func NewHandler(
	orderSvc *appOrder.Service,
	receiptSvc *appReceipt.Service,
	tableSvc *appTable.Service,
	catalog domcatalog.Catalog,
	logger observability.Logger,
	tel observability.Telemetry,
) *Handler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = observability.NopLogger()
	}
	return &Handler{
		orderService:   orderSvc,
		receiptService: receiptSvc,
		tableService:   tableSvc,
		catalog:        catalog,
		log:            baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:            tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.muxHandle(mux, "POST /orders", h.handleCreateOrder)
	h.muxHandle(mux, "GET /orders", h.handleListOrders)
	h.muxHandle(mux, "GET /orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, "PUT /orders/{id}", h.handleReplaceLines)
	h.muxHandle(mux, "POST /orders/{id}/status", h.handleChangeStatus)
	h.muxHandle(mux, "GET /orders/table/{number}", h.handlePendingOrderByTable)
	h.muxHandle(mux, "POST /orders/{id}/receipt", h.handleCreateReceipt)
	h.muxHandle(mux, "GET /orders/{id}/receipt", h.handleGetReceipt)
	h.muxHandle(mux, "GET /tables", h.handleListTables)
	h.muxHandle(mux, "POST /tables/{number}/status", h.handleUpdateTableStatus)
	h.muxHandle(mux, "GET /plates", h.handleListPlates)
	h.muxHandle(mux, "GET /health", h.handleHealth)

	return mux
}

// muxHandle wires each route with middlewares:
// Trace → request logger/metrics → access log → handler.
func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), pattern)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type lineRequest struct {
	PlateID  string `json:"plate_id"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

type createOrderRequest struct {
	TableNumber int           `json:"table_number"`
	Items       []lineRequest `json:"items"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orderService.CreateOrder(r.Context(), appOrder.CreateOrderInput{
		TableNumber: req.TableNumber,
		StaffID:     r.Header.Get(headerStaffID),
		Lines:       toLineInputs(req.Items),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	// Kitchen displays default to the statuses they act on.
	if raw == "" && strings.EqualFold(r.Header.Get(headerStaffRole), "kitchen") {
		raw = "pending,preparing"
	}

	orders, err := h.orderService.List(r.Context(), domorder.ParseFilter(raw))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleReplaceLines(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.orderService.ReplaceLines(r.Context(), r.PathValue("id"), toLineInputs(req.Items))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	target, err := domorder.ParseStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	order, err := h.orderService.ChangeStatus(r.Context(), r.PathValue("id"), target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handlePendingOrderByTable(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("table number must be an integer"))
		return
	}

	order, err := h.orderService.GetPendingByTable(r.Context(), number)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type createReceiptRequest struct {
	ReceiptType  string          `json:"receipt_type"`
	Discount     decimal.Decimal `json:"discount"`
	CustomerName string          `json:"customer_name,omitempty"`
	DNI          string          `json:"dni,omitempty"`
	RUC          string          `json:"ruc,omitempty"`
}

func (h *Handler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind, err := domreceipt.ParseKind(req.ReceiptType)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.receiptService.CreateReceipt(r.Context(), r.PathValue("id"), appReceipt.CreateReceiptInput{
		Kind:         kind,
		Discount:     req.Discount,
		CustomerName: req.CustomerName,
		DNI:          req.DNI,
		RUC:          req.RUC,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(rec))
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := h.receiptService.GetByOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(rec))
}

func (h *Handler) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.tableService.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		out = append(out, toTableResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateTableStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateTableStatus(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("table number must be an integer"))
		return
	}

	var req updateTableStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := domtable.ParseStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tbl, err := h.tableService.UpdateStatus(r.Context(), number, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(tbl))
}

func (h *Handler) handleListPlates(w http.ResponseWriter, r *http.Request) {
	plates, err := h.catalog.ListActive(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]plateResponse, 0, len(plates))
	for _, p := range plates {
		out = append(out, toPlateResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("comanda.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps the error taxonomy onto HTTP statuses: absent
// resources, conflicts with current state, and bad input are distinct so
// callers can tell "bad request" from "valid but not applicable right now".
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domtable.ErrNotFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, domreceipt.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domorder.ErrInvalidTransition),
		errors.Is(err, domorder.ErrNotPending),
		errors.Is(err, domorder.ErrConflict),
		errors.Is(err, domtable.ErrNotAvailable),
		errors.Is(err, domreceipt.ErrAlreadyIssued),
		errors.Is(err, domreceipt.ErrOrderNotReady):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domorder.ErrEmptyLines),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrUnknownStatus),
		errors.Is(err, appOrder.ErrStaffRequired),
		errors.Is(err, domtable.ErrUnknownStatus),
		errors.Is(err, domcatalog.ErrInactive),
		errors.Is(err, domreceipt.ErrDiscountExceedsTotal),
		errors.Is(err, domreceipt.ErrNegativeDiscount),
		errors.Is(err, domreceipt.ErrUnknownKind),
		errors.Is(err, domreceipt.ErrInvalidDNI),
		errors.Is(err, domreceipt.ErrInvalidRUC):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func toLineInputs(items []lineRequest) []appOrder.LineInput {
	out := make([]appOrder.LineInput, 0, len(items))
	for _, item := range items {
		out = append(out, appOrder.LineInput{
			PlateID:  item.PlateID,
			Quantity: item.Quantity,
			Notes:    item.Notes,
		})
	}
	return out
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
