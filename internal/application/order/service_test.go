package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/id"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingPublisher records events in publish order.
type capturingPublisher struct {
	mu     sync.Mutex
	events []dombroadcast.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e dombroadcast.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	svc       *Service
	orders    *memory.OrderRepository
	tables    *memory.TableRepository
	publisher *capturingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := memory.NewCatalog(
		&domcatalog.Plate{ID: "ceviche", Name: "Ceviche", Price: decimal.RequireFromString("32.00"), Active: true},
		&domcatalog.Plate{ID: "lomo", Name: "Lomo Saltado", Price: decimal.RequireFromString("28.50"), Active: true},
		&domcatalog.Plate{ID: "suspiro", Name: "Suspiro Limeño", Price: decimal.RequireFromString("12.00"), Active: false},
	)
	orders := memory.NewOrderRepository()
	tables := memory.NewTableRepository(1, 2, 3)
	publisher := &capturingPublisher{}

	svc := NewService(orders, tables, catalog, keylock.New(), id.NewUUIDGenerator(), publisher, nil, nil)
	return &fixture{svc: svc, orders: orders, tables: tables, publisher: publisher}
}

func validInput(table int) CreateOrderInput {
	return CreateOrderInput{
		TableNumber: table,
		StaffID:     "staff-1",
		Lines: []LineInput{
			{PlateID: "ceviche", Quantity: 1},
			{PlateID: "lomo", Quantity: 2, Notes: "no onions"},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	assert.Equal(t, domorder.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("89.00")), "total = %s", o.Total)
	assert.Equal(t, "Ceviche", o.Lines[0].PlateName, "line carries the captured plate name")

	tbl, err := f.tables.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domtable.StatusAwaitingOrder, tbl.Status)

	assert.Equal(t, []string{"order.updated", "table.updated"}, f.publisher.names())
}

func TestCreateOrderRequiresStaff(t *testing.T) {
	f := newFixture(t)

	input := validInput(1)
	input.StaffID = ""
	_, err := f.svc.CreateOrder(context.Background(), input)
	require.ErrorIs(t, err, ErrStaffRequired)
}

func TestCreateOrderRejectsBadLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := validInput(1)
	input.Lines = nil
	_, err := f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, domorder.ErrEmptyLines)

	input = validInput(1)
	input.Lines[0].Quantity = 0
	_, err = f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, domorder.ErrInvalidQuantity)

	input = validInput(1)
	input.Lines[0].PlateID = "unknown"
	_, err = f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, domcatalog.ErrNotFound)

	input = validInput(1)
	input.Lines[0].PlateID = "suspiro"
	_, err = f.svc.CreateOrder(ctx, input)
	require.ErrorIs(t, err, domcatalog.ErrInactive)

	// Nothing was reserved along the way.
	tbl, err := f.tables.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domtable.StatusAvailable, tbl.Status)
	assert.Empty(t, f.publisher.names())
}

func TestCreateOrderTableTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, validInput(1))
	require.ErrorIs(t, err, domtable.ErrNotAvailable)
}

func TestCreateOrderUnknownTable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), validInput(42))
	require.ErrorIs(t, err, domtable.ErrNotFound)
}

func TestCreateOrderConcurrentDoubleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, validInput(2))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, domtable.ErrNotAvailable)
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one reservation may win")
	assert.Equal(t, attempts-1, lost)

	all, err := f.orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "losing attempts must leave no orders behind")
}

func TestChangeStatusDrivesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusPreparing)
	require.NoError(t, err)

	tbl, err := f.tables.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domtable.StatusAwaitingOrder, tbl.Status, "preparing does not touch the table")

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusReady)
	require.NoError(t, err)
	tbl, _ = f.tables.Get(ctx, 1)
	assert.Equal(t, domtable.StatusDelivered, tbl.Status)

	updated, err := f.svc.ChangeStatus(ctx, o.ID, domorder.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaid, updated.Status)
	tbl, _ = f.tables.Get(ctx, 1)
	assert.Equal(t, domtable.StatusAvailable, tbl.Status, "payment frees the table")
}

func TestCancelPendingReleasesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusCancelled)
	require.NoError(t, err)

	tbl, err := f.tables.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domtable.StatusAvailable, tbl.Status)
}

func TestChangeStatusInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusPaid)
	require.ErrorIs(t, err, domorder.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPending, stored.Status)
}

func TestChangeStatusUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ChangeStatus(context.Background(), "missing", domorder.StatusPreparing)
	require.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestReplaceLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	updated, err := f.svc.ReplaceLines(ctx, o.ID, []LineInput{{PlateID: "lomo", Quantity: 1}})
	require.NoError(t, err)
	assert.True(t, updated.Total.Equal(decimal.RequireFromString("28.50")))
	assert.Len(t, updated.Lines, 1)

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusPreparing)
	require.NoError(t, err)

	_, err = f.svc.ReplaceLines(ctx, o.ID, []LineInput{{PlateID: "ceviche", Quantity: 1}})
	require.ErrorIs(t, err, domorder.ErrNotPending)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, validInput(2))
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(ctx, first.ID, domorder.StatusPreparing)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domorder.ParseFilter(""))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	preparing, err := f.svc.List(ctx, domorder.ParseFilter("preparing"))
	require.NoError(t, err)
	require.Len(t, preparing, 1)
	assert.Equal(t, first.ID, preparing[0].ID)

	none, err := f.svc.List(ctx, domorder.ParseFilter("bogus"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

type txMarker struct{}

type trackingAtomic struct {
	calls   int
	lastErr error
}

func (a *trackingAtomic) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	a.calls++
	a.lastErr = fn(context.WithValue(ctx, txMarker{}, true))
	return a.lastErr
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txMarker{}).(bool)
	return v
}

type txCheckedOrders struct {
	*memory.OrderRepository
	insertInTx *bool
}

func (r txCheckedOrders) Insert(ctx context.Context, o *domorder.Order) error {
	*r.insertInTx = inTx(ctx)
	return r.OrderRepository.Insert(ctx, o)
}

type txCheckedTables struct {
	*memory.TableRepository
	updateInTx *bool
	updateErr  error
}

func (r txCheckedTables) Update(ctx context.Context, tbl *domtable.Table) error {
	*r.updateInTx = inTx(ctx)
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.TableRepository.Update(ctx, tbl)
}

// The order insert and the table reservation must share one transaction so a
// failed reservation cannot leave an orphaned pending order behind.
func TestCreateOrderWritesShareTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var insertInTx, updateInTx bool
	atomic := &trackingAtomic{}
	catalog := memory.NewCatalog(
		&domcatalog.Plate{ID: "ceviche", Name: "Ceviche", Price: decimal.RequireFromString("32.00"), Active: true},
		&domcatalog.Plate{ID: "lomo", Name: "Lomo Saltado", Price: decimal.RequireFromString("28.50"), Active: true},
	)
	f.svc = NewService(
		txCheckedOrders{OrderRepository: f.orders, insertInTx: &insertInTx},
		txCheckedTables{TableRepository: f.tables, updateInTx: &updateInTx},
		catalog, keylock.New(), id.NewUUIDGenerator(), f.publisher, atomic, nil)

	_, err := f.svc.CreateOrder(ctx, validInput(1))
	require.NoError(t, err)

	assert.Equal(t, 1, atomic.calls)
	assert.True(t, insertInTx, "order insert must run inside the transaction")
	assert.True(t, updateInTx, "table update must run inside the transaction")
}

func TestCreateOrderFailedReservationAbortsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var insertInTx, updateInTx bool
	atomic := &trackingAtomic{}
	catalog := memory.NewCatalog(
		&domcatalog.Plate{ID: "ceviche", Name: "Ceviche", Price: decimal.RequireFromString("32.00"), Active: true},
		&domcatalog.Plate{ID: "lomo", Name: "Lomo Saltado", Price: decimal.RequireFromString("28.50"), Active: true},
	)
	f.svc = NewService(
		txCheckedOrders{OrderRepository: f.orders, insertInTx: &insertInTx},
		txCheckedTables{TableRepository: f.tables, updateInTx: &updateInTx, updateErr: errors.New("connection reset")},
		catalog, keylock.New(), id.NewUUIDGenerator(), f.publisher, atomic, nil)

	_, err := f.svc.CreateOrder(ctx, validInput(1))
	require.Error(t, err)
	require.Error(t, atomic.lastErr, "the runner must see the failure so it rolls back the order insert")
}

func TestGetPendingByTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, validInput(3))
	require.NoError(t, err)

	found, err := f.svc.GetPendingByTable(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)

	_, err = f.svc.ChangeStatus(ctx, o.ID, domorder.StatusPreparing)
	require.NoError(t, err)

	_, err = f.svc.GetPendingByTable(ctx, 3)
	require.ErrorIs(t, err, domorder.ErrNotFound)
}
