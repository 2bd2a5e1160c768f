package headset

import (
	"errors"
	"fmt"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Sentinel errors.
var (
	// ErrNoStateMachine is returned when a stack event names a device that
	// has no state machine and the event may not create one.
	ErrNoStateMachine = errors.New("headset: no state machine for device")

	// ErrNotStarted is returned by operations that need a started Service.
	ErrNotStarted = errors.New("headset: service not started")

	// ErrAlreadyStarted is returned by Start on a running Service.
	ErrAlreadyStarted = errors.New("headset: service already started")
)

// TransitionError reports a state change whose previous state is not a
// legal predecessor of the new one. State machines panic with it: the
// native stack or the caller broke the state contract.
type TransitionError struct {
	Device hfp.Address
	From   State
	To     State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("headset: [%v] illegal transition %v -> %v", e.Device, e.From, e.To)
}
