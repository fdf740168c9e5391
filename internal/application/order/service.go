package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/comanda/internal/application"
	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"
)

var ErrStaffRequired = errors.New("order: staff id is required")

const componentOrderService = "order_service"

// Service drives the order lifecycle: creation reserves the table, status
// changes walk the transition graph, and every committed change is broadcast.
type Service struct {
	orders    domorder.Repository
	tables    domtable.Repository
	catalog   domcatalog.Catalog
	locks     *keylock.Registry
	idGen     application.IDGenerator
	publisher dombroadcast.Publisher
	atomic    application.Atomic
	tel       observability.Telemetry
	log       observability.Logger
}

func NewService(
	orders domorder.Repository,
	tables domtable.Repository,
	catalog domcatalog.Catalog,
	locks *keylock.Registry,
	idGen application.IDGenerator,
	publisher dombroadcast.Publisher,
	atomic application.Atomic,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		orders:    orders,
		tables:    tables,
		catalog:   catalog,
		locks:     locks,
		idGen:     idGen,
		publisher: publisher,
		atomic:    atomic,
		tel:       tel,
		log:       tel.Logger().With(observability.F("component", componentOrderService)),
	}
}

type LineInput struct {
	PlateID  string
	Quantity int
	Notes    string
}

type CreateOrderInput struct {
	TableNumber int
	StaffID     string
	Lines       []LineInput
}

// CreateOrder validates every line against the catalog, reserves the table,
// and persists the order as pending. All-or-nothing: any unknown or inactive
// plate, or a taken table, leaves no trace.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *domorder.Order, err error) {
	ctx, done := application.Observe(ctx, s.tel, "order.create")
	defer func() { done(err) }()

	logger := logctx.FromOr(ctx, s.log)
	logger.Info("create_order_start",
		observability.F("table_number", input.TableNumber),
		observability.F("staff_id", input.StaffID),
		observability.F("lines", len(input.Lines)),
	)

	if input.StaffID == "" {
		return nil, ErrStaffRequired
	}

	// Resolve and price every line before touching any state.
	lines, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(application.TableKey(input.TableNumber))
	defer unlock()

	tbl, err := s.tables.Get(ctx, input.TableNumber)
	if err != nil {
		return nil, fmt.Errorf("order: table %d: %w", input.TableNumber, err)
	}
	if err = tbl.Reserve(); err != nil {
		return nil, err
	}

	entity, err := domorder.New(s.idGen.NewID(), input.TableNumber, input.StaffID, lines)
	if err != nil {
		return nil, err
	}

	// The new order and the table reservation commit as one unit; a failed
	// reservation must not leave an orphaned pending order.
	err = application.RunAtomic(ctx, s.atomic, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, entity); err != nil {
			return fmt.Errorf("order: insert: %w", err)
		}
		if err := s.tables.Update(ctx, tbl); err != nil {
			return fmt.Errorf("order: reserve table: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("order_commit_failed",
			observability.F("order_id", entity.ID),
			observability.F("table_number", tbl.Number),
			observability.F("error", err),
		)
		return nil, err
	}

	s.publish(ctx, domorder.NewUpdatedEvent(entity))
	s.publish(ctx, domtable.NewUpdatedEvent(tbl))

	logger.Info("create_order_success",
		observability.F("order_id", entity.ID),
		observability.F("table_number", entity.TableNumber),
		observability.F("total", entity.Total.String()),
	)
	return entity.Clone(), nil
}

// ChangeStatus applies one transition of the order state machine. The check
// and the commit run under the order's lock, so two racing attempts from the
// same starting status can never both succeed.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, target domorder.Status) (_ *domorder.Order, err error) {
	ctx, done := application.Observe(ctx, s.tel, "order.change_status")
	defer func() { done(err) }()

	logger := logctx.FromOr(ctx, s.log)

	unlock := s.locks.Lock(application.OrderKey(orderID))
	defer unlock()

	entity, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err = entity.TransitionTo(target); err != nil {
		return nil, err
	}

	if err = s.orders.Update(ctx, entity); err != nil {
		logger.Error("order_update_failed",
			observability.F("order_id", orderID),
			observability.F("error", err),
		)
		return nil, fmt.Errorf("order: update: %w", err)
	}

	// The order status is the authoritative fact; table state is a derived
	// view reconciled later if these side effects fail.
	switch target {
	case domorder.StatusReady:
		s.moveTable(ctx, entity.TableNumber, func(t *domtable.Table) { t.MarkDelivered() })
	case domorder.StatusPaid, domorder.StatusCancelled:
		s.moveTable(ctx, entity.TableNumber, func(t *domtable.Table) { t.Release() })
	}

	s.publish(ctx, domorder.NewUpdatedEvent(entity))

	logger.Info("order_status_changed",
		observability.F("order_id", orderID),
		observability.F("status", string(entity.Status)),
	)
	return entity.Clone(), nil
}

// ReplaceLines swaps the full line set of a still-pending order, with the
// same catalog validation as creation.
func (s *Service) ReplaceLines(ctx context.Context, orderID string, inputs []LineInput) (_ *domorder.Order, err error) {
	ctx, done := application.Observe(ctx, s.tel, "order.replace_lines")
	defer func() { done(err) }()

	logger := logctx.FromOr(ctx, s.log)

	lines, err := s.resolveLines(ctx, inputs)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(application.OrderKey(orderID))
	defer unlock()

	entity, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err = entity.ReplaceLines(lines); err != nil {
		return nil, err
	}
	if err = s.orders.Update(ctx, entity); err != nil {
		logger.Error("order_update_failed",
			observability.F("order_id", orderID),
			observability.F("error", err),
		)
		return nil, fmt.Errorf("order: update: %w", err)
	}

	s.publish(ctx, domorder.NewUpdatedEvent(entity))

	logger.Info("order_lines_replaced",
		observability.F("order_id", orderID),
		observability.F("total", entity.Total.String()),
	)
	return entity.Clone(), nil
}

// List returns order snapshots matching the filter. Reads never take the
// per-key write locks, so dashboards are not blocked by in-flight changes.
func (s *Service) List(ctx context.Context, filter domorder.Filter) ([]*domorder.Order, error) {
	all, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	out := make([]*domorder.Order, 0, len(all))
	for _, o := range all {
		if filter.Matches(o.Status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domorder.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) GetPendingByTable(ctx context.Context, tableNumber int) (*domorder.Order, error) {
	return s.orders.FindPendingByTable(ctx, tableNumber)
}

// resolveLines turns raw line inputs into priced domain lines. Unit prices
// are captured here; later catalog changes do not touch existing orders.
func (s *Service) resolveLines(ctx context.Context, inputs []LineInput) ([]domorder.Line, error) {
	if len(inputs) == 0 {
		return nil, domorder.ErrEmptyLines
	}
	lines := make([]domorder.Line, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity < 1 {
			return nil, domorder.ErrInvalidQuantity
		}
		plate, err := s.catalog.Plate(ctx, in.PlateID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domcatalog.ErrNotFound, in.PlateID)
		}
		if !plate.Active {
			return nil, fmt.Errorf("%w: %s", domcatalog.ErrInactive, plate.Name)
		}
		lines = append(lines, domorder.Line{
			PlateID:   plate.ID,
			PlateName: plate.Name,
			Quantity:  in.Quantity,
			UnitPrice: plate.Price,
			Notes:     in.Notes,
		})
	}
	return lines, nil
}

// moveTable applies a table side effect under the table's own lock.
// Failures are logged and counted, never propagated: the triggering order
// transition stays committed.
func (s *Service) moveTable(ctx context.Context, number int, apply func(*domtable.Table)) {
	logger := logctx.FromOr(ctx, s.log)

	unlock := s.locks.Lock(application.TableKey(number))
	defer unlock()

	tbl, err := s.tables.Get(ctx, number)
	if err == nil {
		apply(tbl)
		err = s.tables.Update(ctx, tbl)
	}
	if err != nil {
		logger.Error("table_side_effect_failed",
			observability.F("table_number", number),
			observability.F("error", err),
		)
		if c := s.tel.Counter(observability.MTableSideEffectFails); c != nil {
			c.Add(1, observability.L("table", fmt.Sprintf("%d", number)))
		}
		return
	}

	s.publish(ctx, domtable.NewUpdatedEvent(tbl))
}

// publish enqueues a display update. Failures are swallowed by contract.
func (s *Service) publish(ctx context.Context, e dombroadcast.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logctx.FromOr(ctx, s.log).Warn("broadcast_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
	}
}
