package broadcast

import "context"

// Event is any display update with a topic identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher fans events out to interested subscribers. Delivery is best
// effort: the bus is a low-latency convenience path, not the system of
// record, and subscribers recover missed updates via on-demand fetches.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
