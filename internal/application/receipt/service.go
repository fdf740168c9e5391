package receipt

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/comanda/internal/application"
	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"

	"github.com/shopspring/decimal"
)

const componentReceiptService = "receipt_service"

// Service issues the one tax receipt an order ever gets. The existence check,
// the insert, and the paid transition run under the order's lock, so a
// double-submitted payment yields exactly one receipt and one conflict.
type Service struct {
	receipts  domreceipt.Repository
	orders    domorder.Repository
	tables    domtable.Repository
	locks     *keylock.Registry
	idGen     application.IDGenerator
	publisher dombroadcast.Publisher
	atomic    application.Atomic
	tel       observability.Telemetry
	log       observability.Logger
}

func NewService(
	receipts domreceipt.Repository,
	orders domorder.Repository,
	tables domtable.Repository,
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
		receipts:  receipts,
		orders:    orders,
		tables:    tables,
		locks:     locks,
		idGen:     idGen,
		publisher: publisher,
		atomic:    atomic,
		tel:       tel,
		log:       tel.Logger().With(observability.F("component", componentReceiptService)),
	}
}

type CreateReceiptInput struct {
	Kind         domreceipt.Kind
	Discount     decimal.Decimal
	CustomerName string
	DNI          string
	RUC          string
}

// CreateReceipt computes the tax breakdown, persists the receipt, marks the
// order paid, and frees the table.
func (s *Service) CreateReceipt(ctx context.Context, orderID string, input CreateReceiptInput) (_ *domreceipt.Receipt, err error) {
	ctx, done := application.Observe(ctx, s.tel, "receipt.create")
	defer func() { done(err) }()

	logger := logctx.FromOr(ctx, s.log)
	logger.Info("create_receipt_start",
		observability.F("order_id", orderID),
		observability.F("kind", string(input.Kind)),
		observability.F("discount", input.Discount.String()),
	)

	unlock := s.locks.Lock(application.OrderKey(orderID))
	defer unlock()

	entity, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if entity.Status != domorder.StatusReady {
		return nil, fmt.Errorf("%w: order is %s", domreceipt.ErrOrderNotReady, entity.Status)
	}
	if _, lookupErr := s.receipts.GetByOrder(ctx, orderID); lookupErr == nil {
		return nil, domreceipt.ErrAlreadyIssued
	} else if !errors.Is(lookupErr, domreceipt.ErrNotFound) {
		return nil, fmt.Errorf("receipt: lookup: %w", lookupErr)
	}

	rec, err := domreceipt.New(s.idGen.NewID(), orderID, input.Kind, domreceipt.Customer{
		Name: input.CustomerName,
		DNI:  input.DNI,
		RUC:  input.RUC,
	}, entity.Total, input.Discount)
	if err != nil {
		return nil, err
	}

	if err = entity.TransitionTo(domorder.StatusPaid); err != nil {
		return nil, err
	}
	entity.AttachReceipt(rec.ID)

	// The receipt exists iff the order is paid: both writes commit or
	// neither does.
	err = application.RunAtomic(ctx, s.atomic, func(ctx context.Context) error {
		if err := s.receipts.Insert(ctx, rec); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, entity); err != nil {
			return fmt.Errorf("receipt: mark order paid: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("receipt_commit_failed",
			observability.F("order_id", orderID),
			observability.F("error", err),
		)
		return nil, err
	}

	s.releaseTable(ctx, entity.TableNumber)

	s.publish(ctx, domreceipt.NewIssuedEvent(rec))
	s.publish(ctx, domorder.NewUpdatedEvent(entity))

	logger.Info("create_receipt_success",
		observability.F("receipt_id", rec.ID),
		observability.F("order_id", orderID),
		observability.F("total", rec.Total.String()),
	)
	return rec.Clone(), nil
}

func (s *Service) GetByOrder(ctx context.Context, orderID string) (*domreceipt.Receipt, error) {
	return s.receipts.GetByOrder(ctx, orderID)
}

// releaseTable frees the paid order's table. Best-effort: the receipt and
// the paid status stay committed even if the table write fails.
func (s *Service) releaseTable(ctx context.Context, number int) {
	logger := logctx.FromOr(ctx, s.log)

	unlock := s.locks.Lock(application.TableKey(number))
	defer unlock()

	tbl, err := s.tables.Get(ctx, number)
	if err == nil {
		tbl.Release()
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
