package table

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/comanda/internal/application"
	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"
)

const componentTableService = "table_service"

// Service serves the table map and the manual reconciliation path. In the
// normal flow table state only moves as a side effect of order transitions;
// UpdateStatus exists for tables an abandoned order left stuck.
type Service struct {
	tables    domtable.Repository
	locks     *keylock.Registry
	publisher dombroadcast.Publisher
	tel       observability.Telemetry
	log       observability.Logger
}

func NewService(
	tables domtable.Repository,
	locks *keylock.Registry,
	publisher dombroadcast.Publisher,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		tables:    tables,
		locks:     locks,
		publisher: publisher,
		tel:       tel,
		log:       tel.Logger().With(observability.F("component", componentTableService)),
	}
}

func (s *Service) List(ctx context.Context) ([]*domtable.Table, error) {
	return s.tables.List(ctx)
}

// UpdateStatus forces a table into the given status.
func (s *Service) UpdateStatus(ctx context.Context, number int, status domtable.Status) (_ *domtable.Table, err error) {
	ctx, done := application.Observe(ctx, s.tel, "table.update_status")
	defer func() { done(err) }()

	logger := logctx.FromOr(ctx, s.log)

	unlock := s.locks.Lock(application.TableKey(number))
	defer unlock()

	tbl, err := s.tables.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	tbl.SetStatus(status)
	if err = s.tables.Update(ctx, tbl); err != nil {
		return nil, fmt.Errorf("table: update: %w", err)
	}

	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, domtable.NewUpdatedEvent(tbl)); pubErr != nil {
			logger.Warn("broadcast_publish_failed",
				observability.F("event", domtable.UpdatedEvent{}.EventName()),
				observability.F("error", pubErr),
			)
		}
	}

	logger.Info("table_status_forced",
		observability.F("table_number", number),
		observability.F("status", string(status)),
	)
	return tbl.Clone(), nil
}
