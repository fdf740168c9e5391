package order

import "fmt"

// orderState implements the state pattern for the order lifecycle.
type orderState interface {
	Status() Status
	OnStartPreparing(o *Order) (orderState, error)
	OnMarkReady(o *Order) (orderState, error)
	OnMarkPaid(o *Order) (orderState, error)
	OnCancel(o *Order) (orderState, error)
}

// TransitionTo validates and applies a status change. On rejection the order
// is left untouched and the error names both the current and the requested
// status so operators can see exactly which step was illegal.
func (o *Order) TransitionTo(target Status) error {
	current := stateFor(o.Status)
	if current == nil {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, o.Status)
	}

	var (
		next orderState
		err  error
	)
	switch target {
	case StatusPreparing:
		next, err = current.OnStartPreparing(o)
	case StatusReady:
		next, err = current.OnMarkReady(o)
	case StatusPaid:
		next, err = current.OnMarkPaid(o)
	case StatusCancelled:
		next, err = current.OnCancel(o)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}
	if err != nil {
		return err
	}

	o.Status = next.Status()
	o.touch()
	return nil
}

func stateFor(s Status) orderState {
	switch s {
	case StatusPending:
		return pendingState{}
	case StatusPreparing:
		return preparingState{}
	case StatusReady:
		return readyState{}
	case StatusPaid:
		return paidState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return nil
	}
}

func rejected(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnStartPreparing(*Order) (orderState, error) {
	return preparingState{}, nil
}

func (pendingState) OnMarkReady(*Order) (orderState, error) {
	return nil, rejected(StatusPending, StatusReady)
}

func (pendingState) OnMarkPaid(*Order) (orderState, error) {
	return nil, rejected(StatusPending, StatusPaid)
}

func (pendingState) OnCancel(*Order) (orderState, error) {
	return cancelledState{}, nil
}

type preparingState struct{}

func (preparingState) Status() Status { return StatusPreparing }

func (preparingState) OnStartPreparing(*Order) (orderState, error) {
	return nil, rejected(StatusPreparing, StatusPreparing)
}

func (preparingState) OnMarkReady(*Order) (orderState, error) {
	return readyState{}, nil
}

func (preparingState) OnMarkPaid(*Order) (orderState, error) {
	return nil, rejected(StatusPreparing, StatusPaid)
}

func (preparingState) OnCancel(*Order) (orderState, error) {
	return cancelledState{}, nil
}

type readyState struct{}

func (readyState) Status() Status { return StatusReady }

func (readyState) OnStartPreparing(*Order) (orderState, error) {
	return nil, rejected(StatusReady, StatusPreparing)
}

func (readyState) OnMarkReady(*Order) (orderState, error) {
	return nil, rejected(StatusReady, StatusReady)
}

func (readyState) OnMarkPaid(*Order) (orderState, error) {
	return paidState{}, nil
}

func (readyState) OnCancel(*Order) (orderState, error) {
	return nil, rejected(StatusReady, StatusCancelled)
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnStartPreparing(*Order) (orderState, error) {
	return nil, rejected(StatusPaid, StatusPreparing)
}

func (paidState) OnMarkReady(*Order) (orderState, error) {
	return nil, rejected(StatusPaid, StatusReady)
}

func (paidState) OnMarkPaid(*Order) (orderState, error) {
	return nil, rejected(StatusPaid, StatusPaid)
}

func (paidState) OnCancel(*Order) (orderState, error) {
	return nil, rejected(StatusPaid, StatusCancelled)
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnStartPreparing(*Order) (orderState, error) {
	return nil, rejected(StatusCancelled, StatusPreparing)
}

func (cancelledState) OnMarkReady(*Order) (orderState, error) {
	return nil, rejected(StatusCancelled, StatusReady)
}

func (cancelledState) OnMarkPaid(*Order) (orderState, error) {
	return nil, rejected(StatusCancelled, StatusPaid)
}

func (cancelledState) OnCancel(*Order) (orderState, error) {
	return nil, rejected(StatusCancelled, StatusCancelled)
}
