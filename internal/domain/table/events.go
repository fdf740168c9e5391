package table

import "time"

// UpdatedEvent carries an immutable table snapshot for the table map display.
type UpdatedEvent struct {
	Table      *Table
	OccurredAt time.Time
}

func (UpdatedEvent) EventName() string { return "table.updated" }

func NewUpdatedEvent(t *Table) UpdatedEvent {
	return UpdatedEvent{
		Table:      t.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}
