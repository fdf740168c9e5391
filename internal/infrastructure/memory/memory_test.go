package memory

import (
	"context"
	"testing"
	"time"

	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, id string, table int) *domorder.Order {
	t.Helper()
	o, err := domorder.New(id, table, "staff-1", []domorder.Line{
		{PlateID: "p1", PlateName: "Plate", Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	})
	require.NoError(t, err)
	return o
}

func TestOrderRepository(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	o := newOrder(t, "o-1", 1)
	require.NoError(t, repo.Insert(ctx, o))
	require.ErrorIs(t, repo.Insert(ctx, o), domorder.ErrConflict)

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)

	// Snapshots must not alias the stored value.
	got.Status = domorder.StatusPaid
	again, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPending, again.Status)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domorder.ErrNotFound)

	require.ErrorIs(t, repo.Update(ctx, newOrder(t, "missing", 1)), domorder.ErrNotFound)
}

func TestOrderRepositoryListSorted(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	older := newOrder(t, "b", 1)
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, older))
	require.NoError(t, repo.Insert(ctx, newOrder(t, "a", 2)))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "oldest first")
}

func TestFindPendingByTable(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	paid := newOrder(t, "o-paid", 3)
	paid.Status = domorder.StatusPaid
	require.NoError(t, repo.Insert(ctx, paid))

	_, err := repo.FindPendingByTable(ctx, 3)
	require.ErrorIs(t, err, domorder.ErrNotFound)

	require.NoError(t, repo.Insert(ctx, newOrder(t, "o-pending", 3)))
	found, err := repo.FindPendingByTable(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "o-pending", found.ID)
}

func TestTableRepository(t *testing.T) {
	repo := NewTableRepository(1, 2)
	ctx := context.Background()

	tables, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, domtable.StatusAvailable, tables[0].Status)

	tbl, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, tbl.Reserve())
	require.NoError(t, repo.Update(ctx, tbl))

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domtable.StatusAwaitingOrder, stored.Status)

	_, err = repo.Get(ctx, 9)
	require.ErrorIs(t, err, domtable.ErrNotFound)
}

func TestReceiptRepository(t *testing.T) {
	repo := NewReceiptRepository()
	ctx := context.Background()

	rec, err := domreceipt.New("r-1", "o-1", domreceipt.KindBoleta,
		domreceipt.Customer{DNI: "12345678"}, decimal.RequireFromString("118.00"), decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, repo.Insert(ctx, rec))

	dup, err := domreceipt.New("r-2", "o-1", domreceipt.KindBoleta,
		domreceipt.Customer{DNI: "12345678"}, decimal.RequireFromString("118.00"), decimal.Zero)
	require.NoError(t, err)
	require.ErrorIs(t, repo.Insert(ctx, dup), domreceipt.ErrAlreadyIssued)

	got, err := repo.GetByOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.ID)

	_, err = repo.GetByOrder(ctx, "o-2")
	require.ErrorIs(t, err, domreceipt.ErrNotFound)
}

func TestCatalog(t *testing.T) {
	cat := NewCatalog(
		&domcatalog.Plate{ID: "b", Name: "Bistec", Price: decimal.RequireFromString("25.00"), Active: true},
		&domcatalog.Plate{ID: "a", Name: "Arroz Chaufa", Price: decimal.RequireFromString("22.00"), Active: true},
		&domcatalog.Plate{ID: "c", Name: "Causa", Price: decimal.RequireFromString("18.00"), Active: false},
	)
	ctx := context.Background()

	p, err := cat.Plate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Arroz Chaufa", p.Name)

	_, err = cat.Plate(ctx, "zzz")
	require.ErrorIs(t, err, domcatalog.ErrNotFound)

	active, err := cat.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2, "inactive plates are hidden")
	assert.Equal(t, "Arroz Chaufa", active[0].Name, "sorted by name")
}
