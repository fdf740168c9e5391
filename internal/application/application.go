package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/comanda/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OrderKey and TableKey name the serialization domains shared by every
// service that mutates an order or a table. All mutators must lock through
// the same registry with these keys, and when both are needed the order key
// is taken first.
func OrderKey(orderID string) string { return "order:" + orderID }

func TableKey(number int) string { return fmt.Sprintf("table:%d", number) }

// Observe starts a use-case span and returns a completion callback that
// records the span status plus RED metrics for the call.
func Observe(ctx context.Context, tel observability.Telemetry, useCase string) (context.Context, func(err error)) {
	if tel == nil {
		tel = observability.NopTelemetry()
	}

	ctx, span := tel.Tracer().Start(ctx, "UC."+useCase,
		attribute.String("use_case", useCase),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		} else if span != nil {
			span.SetStatus(codes.Ok, "")
		}
		if span != nil {
			span.End()
		}

		if c := tel.Counter(observability.MUsecaseRequests); c != nil {
			c.Add(1,
				observability.L("use_case", useCase),
				observability.L("outcome", outcome),
			)
		}
		if h := tel.Histogram(observability.MUsecaseDuration); h != nil {
			h.Observe(time.Since(start).Seconds(),
				observability.L("use_case", useCase),
				observability.L("outcome", outcome),
			)
		}
	}
}

// IDGenerator issues identifiers for new orders and receipts.
type IDGenerator interface {
	NewID() string
}

// Atomic runs fn as one storage transaction on backends that support it.
// Repository calls made with the context fn receives join that transaction,
// so a failure anywhere inside fn rolls back every write. A nil Atomic is
// valid for backends whose repositories are individually atomic in process.
type Atomic interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunAtomic dispatches to the runner when one is configured.
func RunAtomic(ctx context.Context, atomic Atomic, fn func(ctx context.Context) error) error {
	if atomic == nil {
		return fn(ctx)
	}
	return atomic.WithinTx(ctx, fn)
}
