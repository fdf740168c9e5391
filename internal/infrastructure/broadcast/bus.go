package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	dombroadcast "github.com/Zhima-Mochi/comanda/internal/domain/broadcast"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/observability/logctx"
)

// Bus is an in-memory event bus fanning display updates out to subscribers.
// Publish is a cheap enqueue, so callers may publish right after committing a
// transition without keeping slow subscribers on the critical path. Events
// are dispatched in enqueue order and each event's fanout completes before
// the next starts, which keeps the per-order update stream in commit order.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]dombroadcast.Handler
	queue       chan dombroadcast.Event
	startOnce   sync.Once
	stopOnce    sync.Once
	stopMu      sync.RWMutex
	stopped     bool
	cancel      context.CancelFunc
	concurrency int
	log         observability.Logger
	tel         observability.Telemetry
}

// ErrStopped is returned by Publish after Stop. Callers treat it like any
// other publish failure: logged, never propagated to the user.
var ErrStopped = errors.New("broadcast: bus stopped")

const componentBroadcast = "broadcast"

// handlerTimeout bounds a single subscriber; a stuck display must not stall
// the stream for everyone else forever.
const handlerTimeout = 30 * time.Second

func NewBus(logger observability.Logger, tel observability.Telemetry) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Bus{
		subs:        make(map[string][]dombroadcast.Handler),
		queue:       make(chan dombroadcast.Event, 1024), // buffer for backpressure
		concurrency: 8,                                   // per-event handler fanout cap
		log:         logger.With(observability.F("component", componentBroadcast)),
		tel:         tel,
	}
}

func (b *Bus) Subscribe(eventName string, h dombroadcast.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("broadcast_bus_started")
	})
}

func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		// Writers hold stopMu for reading across their enqueue, so taking
		// it for writing waits out in-flight publishes before the close.
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		if b.cancel != nil {
			b.cancel()
		}
		close(b.queue)
		logctx.FromOr(ctx, b.log).Info("broadcast_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e dombroadcast.Event) error {
	if e == nil {
		return nil
	}

	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		logctx.FromOr(ctx, b.log).Warn("broadcast_enqueue_after_stop",
			observability.F("event", e.EventName()),
		)
		return ErrStopped
	}

	select {
	case b.queue <- e:
		b.tel.Counter(observability.MBroadcastPublished).Add(1,
			observability.L("event", e.EventName()),
		)
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("broadcast_enqueue_aborted",
			observability.F("event", e.EventName()),
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, e)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e dombroadcast.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]dombroadcast.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("broadcast_dropped_no_subscriber",
			observability.F("event", name),
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	ctx = logctx.With(ctx, b.log)

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("broadcast_handler_panic",
						observability.F("event", name),
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
					b.tel.Counter(observability.MBroadcastFailures).Add(1,
						observability.L("event", name),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			err := h(hctx, e)
			cancel()
			if err != nil {
				// Swallowed: a failing display never rolls back a transition.
				b.log.Warn("broadcast_handler_error",
					observability.F("event", name),
					observability.F("error", err),
				)
				b.tel.Counter(observability.MBroadcastFailures).Add(1,
					observability.L("event", name),
				)
			}
		}()
	}

	wg.Wait()

	b.log.Debug("broadcast_fanned_out",
		observability.F("event", name),
		observability.F("handlers", len(handlers)),
	)
}
