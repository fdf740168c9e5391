package httppresentation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appOrder "github.com/Zhima-Mochi/comanda/internal/application/order"
	appReceipt "github.com/Zhima-Mochi/comanda/internal/application/receipt"
	appTable "github.com/Zhima-Mochi/comanda/internal/application/table"
	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/id"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	catalog := memory.NewCatalog(
		&domcatalog.Plate{ID: "ceviche", Name: "Ceviche", Price: decimal.RequireFromString("32.00"), Active: true},
		&domcatalog.Plate{ID: "lomo", Name: "Lomo Saltado", Price: decimal.RequireFromString("28.50"), Active: true},
	)
	orders := memory.NewOrderRepository()
	tables := memory.NewTableRepository(1, 2)
	receipts := memory.NewReceiptRepository()
	locks := keylock.New()
	idGen := id.NewUUIDGenerator()

	orderSvc := appOrder.NewService(orders, tables, catalog, locks, idGen, nil, nil, nil)
	receiptSvc := appReceipt.NewService(receipts, orders, tables, locks, idGen, nil, nil, nil)
	tableSvc := appTable.NewService(tables, locks, nil, nil)

	return NewHandler(orderSvc, receiptSvc, tableSvc, catalog, nil, nil).Router()
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func staffHeaders() map[string]string {
	return map[string]string{headerStaffID: "staff-1"}
}

const orderBody = `{"table_number":1,"items":[{"plate_id":"ceviche","quantity":1},{"plate_id":"lomo","quantity":2,"notes":"no onions"}]}`

func createOrder(t *testing.T, router http.Handler) orderResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/orders", orderBody, staffHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func setStatus(t *testing.T, router http.Handler, orderID, status string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, "/orders/"+orderID+"/status", `{"status":"`+status+`"}`, staffHeaders())
}

func TestCreateOrderEndpoint(t *testing.T) {
	router := newTestRouter(t)

	out := createOrder(t, router)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, "89.00", out.Total)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, "Ceviche", out.Lines[0].PlateName)

	// Same table again: conflict.
	rec := doJSON(t, router, http.MethodPost, "/orders", orderBody, staffHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	router := newTestRouter(t)

	// No staff header.
	rec := doJSON(t, router, http.MethodPost, "/orders", orderBody, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown plate.
	rec = doJSON(t, router, http.MethodPost, "/orders",
		`{"table_number":1,"items":[{"plate_id":"nope","quantity":1}]}`, staffHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed body.
	rec = doJSON(t, router, http.MethodPost, "/orders", `{"table_number":`, staffHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown table.
	rec = doJSON(t, router, http.MethodPost, "/orders",
		`{"table_number":42,"items":[{"plate_id":"ceviche","quantity":1}]}`, staffHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)
	out := createOrder(t, router)

	rec := setStatus(t, router, out.ID, "preparing")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Illegal jump.
	rec = setStatus(t, router, out.ID, "paid")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown status name.
	rec = setStatus(t, router, out.ID, "delivered")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown order.
	rec = setStatus(t, router, "missing", "preparing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersFilter(t *testing.T) {
	router := newTestRouter(t)
	first := createOrder(t, router)
	require.Equal(t, http.StatusOK, setStatus(t, router, first.ID, "preparing").Code)

	rec := doJSON(t, router, http.MethodGet, "/orders?status=preparing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, first.ID, listed[0].ID)

	// Kitchen role without an explicit filter sees actionable orders only.
	require.Equal(t, http.StatusOK, setStatus(t, router, first.ID, "ready").Code)
	rec = doJSON(t, router, http.MethodGet, "/orders", "", map[string]string{headerStaffRole: "kitchen"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)
}

func TestReceiptEndpoint(t *testing.T) {
	router := newTestRouter(t)
	out := createOrder(t, router)
	require.Equal(t, http.StatusOK, setStatus(t, router, out.ID, "preparing").Code)

	receiptBody := `{"receipt_type":"BOLETA","discount":"0","customer_name":"María","dni":"12345678"}`

	// Not ready yet.
	rec := doJSON(t, router, http.MethodPost, "/orders/"+out.ID+"/receipt", receiptBody, staffHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, setStatus(t, router, out.ID, "ready").Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/"+out.ID+"/receipt", receiptBody, staffHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued receiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, "BOLETA", issued.ReceiptType)
	assert.Equal(t, "75.42", issued.Subtotal)
	assert.Equal(t, "13.58", issued.IGV)
	assert.Equal(t, "89.00", issued.Total)

	// Fetch it back.
	rec = doJSON(t, router, http.MethodGet, "/orders/"+out.ID+"/receipt", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Bad identification.
	other := createOrder(t, router) // table 1 is free again after payment
	require.Equal(t, http.StatusOK, setStatus(t, router, other.ID, "preparing").Code)
	require.Equal(t, http.StatusOK, setStatus(t, router, other.ID, "ready").Code)
	rec = doJSON(t, router, http.MethodPost, "/orders/"+other.ID+"/receipt",
		`{"receipt_type":"FACTURA","discount":"0","ruc":"123"}`, staffHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown kind.
	rec = doJSON(t, router, http.MethodPost, "/orders/"+other.ID+"/receipt",
		`{"receipt_type":"TICKET","discount":"0"}`, staffHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTablesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/tables", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []tableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "available", tables[0].Status)

	rec = doJSON(t, router, http.MethodPost, "/tables/1/status", `{"status":"delivered"}`, staffHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/tables/9/status", `{"status":"available"}`, staffHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/tables/1/status", `{"status":"occupied"}`, staffHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/tables/x/status", `{"status":"available"}`, staffHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPendingOrderByTable(t *testing.T) {
	router := newTestRouter(t)
	out := createOrder(t, router)

	rec := doJSON(t, router, http.MethodGet, "/orders/table/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Equal(t, out.ID, found.ID)

	rec = doJSON(t, router, http.MethodGet, "/orders/table/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlatesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/plates", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plates []plateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plates))
	require.Len(t, plates, 2)
	assert.Equal(t, "Ceviche", plates[0].Name)
}

func TestRequestIDEcho(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", map[string]string{headerRequestID: "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))

	// Generated when absent.
	rec = doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}
