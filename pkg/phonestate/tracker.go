// Package phonestate caches the telephony indicators an audio gateway reports
// to hands-free devices (call counts, call setup state, service, roaming,
// signal and battery) and pushes indicator changes to a sink.
package phonestate

import (
	"fmt"
	"sync"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Events is a bit mask of telephony notifications a device wants.
type Events int

const (
	ListenNone           Events = 0
	ListenServiceState   Events = 1 << 0
	ListenSignalStrength Events = 1 << 8
)

// String returns a compact description of the mask.
func (e Events) String() string {
	return fmt.Sprintf("events(service=%t, signal=%t)", e&ListenServiceState != 0, e&ListenSignalStrength != 0)
}

// Subscriber starts and stops the telephony notifications feeding a Tracker.
// Listen is called with the union of every device's mask; ListenNone stops.
type Subscriber interface {
	Listen(events Events)
}

// MaxSignal is the highest value of the "signal" indicator.
const MaxSignal = 5

// Tracker holds the current phone state.
//
// All methods are safe for concurrent use. The sink passed to New is called
// without the tracker's lock held.
type Tracker struct {
	sub  Subscriber
	sink func(hfp.DeviceState)

	mu        sync.Mutex
	listeners map[hfp.Address]Events
	listening Events

	service   int
	roam      int
	signal    int
	battery   int
	simReady  bool
	simLoaded bool

	numActive int
	numHeld   int
	callState hfp.CallState
	number    string
	numType   int
}

// New creates a Tracker. sub may be nil when the embedding process does not
// have a telephony notification source; sink may be nil to drop indicator
// changes.
func New(sub Subscriber, sink func(hfp.DeviceState)) *Tracker {
	return &Tracker{
		sub:       sub,
		sink:      sink,
		listeners: make(map[hfp.Address]Events),
		service:   hfp.NetworkNotAvailable,
		roam:      hfp.ServiceHome,
		callState: hfp.CallIdle,
	}
}

// Listen sets the notifications wanted by device. ListenNone removes the
// device. The subscription to the telephony source follows the union of all
// devices' masks.
func (t *Tracker) Listen(device hfp.Address, events Events) {
	t.mu.Lock()
	if events == ListenNone {
		delete(t.listeners, device)
	} else {
		t.listeners[device] = events
	}
	var all Events
	for _, e := range t.listeners {
		all |= e
	}
	changed := all != t.listening
	t.listening = all
	t.mu.Unlock()

	if changed && t.sub != nil {
		t.sub.Listen(all)
	}
}

// Listening returns the current aggregate subscription.
func (t *Tracker) Listening() Events {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listening
}

// ServiceStateChanged records network service and roaming. When service is
// lost the SIM is considered unloaded; when it comes back, the change is
// reported once the SIM is loaded.
func (t *Tracker) ServiceStateChanged(inService, roaming bool) {
	service := hfp.NetworkNotAvailable
	if inService {
		service = hfp.NetworkAvailable
	}
	roam := hfp.ServiceHome
	if roaming {
		roam = hfp.ServiceRoaming
	}

	t.mu.Lock()
	if service == t.service && roam == t.roam {
		t.mu.Unlock()
		return
	}
	t.service = service
	t.roam = roam
	if service == hfp.NetworkNotAvailable {
		t.simLoaded = false
		t.sendLocked()
		return
	}
	if !t.simReady {
		// Wait for SimStateChanged(true).
		t.mu.Unlock()
		return
	}
	t.simLoaded = true
	t.sendLocked()
}

// SimStateChanged records whether the SIM records are loaded.
func (t *Tracker) SimStateChanged(loaded bool) {
	t.mu.Lock()
	t.simReady = loaded
	if !loaded || t.simLoaded || t.service != hfp.NetworkAvailable {
		t.mu.Unlock()
		return
	}
	t.simLoaded = true
	t.sendLocked()
}

// SignalStrengthChanged records the signal level (0..MaxSignal). The level
// is ignored while out of service.
func (t *Tracker) SignalStrengthChanged(level int) {
	level = max(0, min(level, MaxSignal))

	t.mu.Lock()
	prev := t.signal
	if t.service == hfp.NetworkAvailable {
		t.signal = level
	} else {
		t.signal = 0
	}
	if t.signal == prev {
		t.mu.Unlock()
		return
	}
	t.sendLocked()
}

// SetBatteryCharge records the battery indicator (0..5).
func (t *Tracker) SetBatteryCharge(level int) {
	t.mu.Lock()
	if t.battery == level {
		t.mu.Unlock()
		return
	}
	t.battery = level
	t.sendLocked()
}

// sendLocked reports the device state and releases t.mu.
func (t *Tracker) sendLocked() {
	st := t.deviceStateLocked()
	sink := t.sink
	t.mu.Unlock()
	if sink != nil {
		sink(st)
	}
}

func (t *Tracker) deviceStateLocked() hfp.DeviceState {
	service := hfp.NetworkNotAvailable
	if t.simLoaded {
		service = t.service
	}
	signal := 0
	if t.service == hfp.NetworkAvailable {
		signal = t.signal
	}
	return hfp.DeviceState{
		Service:       service,
		Roam:          t.roam,
		Signal:        signal,
		BatteryCharge: t.battery,
	}
}

// DeviceState returns the indicator values as they would be reported.
func (t *Tracker) DeviceState() hfp.DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceStateLocked()
}

// UpdateCallState stores the call state blob last pushed by telephony.
func (t *Tracker) UpdateCallState(s hfp.CallStateInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.numActive = s.NumActive
	t.numHeld = s.NumHeld
	t.callState = s.CallState
	t.number = s.Number
	t.numType = s.Type
}

// CallState returns the cached call state blob.
func (t *Tracker) CallState() hfp.CallStateInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return hfp.CallStateInfo{
		NumActive: t.numActive,
		NumHeld:   t.numHeld,
		CallState: t.callState,
		Number:    t.number,
		Type:      t.numType,
	}
}

// IsInCall reports whether any call is active or held, or an outgoing call
// is being set up.
func (t *Tracker) IsInCall() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isInCallLocked()
}

func (t *Tracker) isInCallLocked() bool {
	return t.numActive > 0 || t.numHeld > 0 ||
		(t.callState != hfp.CallIdle && t.callState != hfp.CallIncoming)
}

// IsRinging reports whether an incoming call is ringing.
func (t *Tracker) IsRinging() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callState == hfp.CallIncoming
}

// IsCallIdle reports whether there is neither a call nor a ringing call.
func (t *Tracker) IsCallIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.isInCallLocked() && t.callState != hfp.CallIncoming
}

// Snapshot is a copy of every cached value.
type Snapshot struct {
	Service   int           `json:"service" yaml:"service"`
	Roam      int           `json:"roam" yaml:"roam"`
	Signal    int           `json:"signal" yaml:"signal"`
	Battery   int           `json:"battery" yaml:"battery"`
	SimLoaded bool          `json:"sim_loaded" yaml:"sim_loaded"`
	NumActive int           `json:"num_active" yaml:"num_active"`
	NumHeld   int           `json:"num_held" yaml:"num_held"`
	CallState hfp.CallState `json:"call_state" yaml:"call_state"`
	Listening Events        `json:"listening" yaml:"listening"`
}

// Snapshot returns the cached values.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Service:   t.service,
		Roam:      t.roam,
		Signal:    t.signal,
		Battery:   t.battery,
		SimLoaded: t.simLoaded,
		NumActive: t.numActive,
		NumHeld:   t.numHeld,
		CallState: t.callState,
		Listening: t.listening,
	}
}
