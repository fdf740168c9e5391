package order

import "time"

// UpdatedEvent carries an immutable order snapshot for display fanout. It is
// emitted on creation, line replacement, and every committed status change.
type UpdatedEvent struct {
	Order      *Order
	OccurredAt time.Time
}

func (UpdatedEvent) EventName() string { return "order.updated" }

func NewUpdatedEvent(o *Order) UpdatedEvent {
	return UpdatedEvent{
		Order:      o.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}
