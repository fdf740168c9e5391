package receipt

import "time"

// IssuedEvent carries an immutable receipt snapshot for the cashier screen.
type IssuedEvent struct {
	Receipt    *Receipt
	OccurredAt time.Time
}

func (IssuedEvent) EventName() string { return "receipt.issued" }

func NewIssuedEvent(r *Receipt) IssuedEvent {
	return IssuedEvent{
		Receipt:    r.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}
