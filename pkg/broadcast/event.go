// Package broadcast publishes headset events to the outside world: the log,
// WebSocket subscribers, or both.
package broadcast

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Kind identifies the type of an Event.
type Kind string

const (
	KindConnectionState Kind = "connection_state"
	KindAudioState      Kind = "audio_state"
	KindActiveDevice    Kind = "active_device"
	KindVendorEvent     Kind = "vendor_event"
	KindHFIndicator     Kind = "hf_indicator"
)

// Event is one published change. Only the fields relevant to Kind are set.
type Event struct {
	ID     string    `json:"id" msgpack:"id"`
	Kind   Kind      `json:"kind" msgpack:"kind"`
	Time   time.Time `json:"time" msgpack:"time"`
	Device string    `json:"device,omitempty" msgpack:"device,omitempty"`

	// connection_state, audio_state
	From string `json:"from,omitempty" msgpack:"from,omitempty"`
	To   string `json:"to,omitempty" msgpack:"to,omitempty"`

	// vendor_event
	Command     string `json:"command,omitempty" msgpack:"command,omitempty"`
	CompanyID   int    `json:"company_id,omitempty" msgpack:"company_id,omitempty"`
	CommandType int    `json:"command_type,omitempty" msgpack:"command_type,omitempty"`
	Args        []any  `json:"args,omitempty" msgpack:"args,omitempty"`

	// hf_indicator
	IndicatorID    int `json:"indicator_id,omitempty" msgpack:"indicator_id,omitempty"`
	IndicatorValue int `json:"indicator_value,omitempty" msgpack:"indicator_value,omitempty"`
}

func newEvent(kind Kind, device hfp.Address) *Event {
	ev := &Event{
		ID:   uuid.NewString(),
		Kind: kind,
		Time: time.Now(),
	}
	if !device.IsZero() {
		ev.Device = device.String()
	}
	return ev
}

// String returns a one-line human readable form of the event.
func (e *Event) String() string {
	switch e.Kind {
	case KindConnectionState, KindAudioState:
		return fmt.Sprintf("%s %s %s -> %s", e.Kind, e.Device, e.From, e.To)
	case KindActiveDevice:
		if e.Device == "" {
			return fmt.Sprintf("%s none", e.Kind)
		}
		return fmt.Sprintf("%s %s", e.Kind, e.Device)
	case KindVendorEvent:
		return fmt.Sprintf("%s %s %s company=%d type=%d args=%v", e.Kind, e.Device, e.Command, e.CompanyID, e.CommandType, e.Args)
	case KindHFIndicator:
		return fmt.Sprintf("%s %s id=%d value=%d", e.Kind, e.Device, e.IndicatorID, e.IndicatorValue)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Device)
	}
}

// Sink consumes published events. Publish must not block.
type Sink interface {
	Publish(ev *Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev *Event)

func (f SinkFunc) Publish(ev *Event) { f(ev) }

// Publisher turns headset service callbacks into events for a Sink. It
// satisfies headset.Publisher.
type Publisher struct {
	sink Sink
}

// NewPublisher returns a Publisher writing to sink.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) ConnectionStateChanged(device hfp.Address, from, to hfp.ConnectionState) {
	ev := newEvent(KindConnectionState, device)
	ev.From, ev.To = from.String(), to.String()
	p.sink.Publish(ev)
}

func (p *Publisher) AudioStateChanged(device hfp.Address, from, to hfp.AudioState) {
	ev := newEvent(KindAudioState, device)
	ev.From, ev.To = from.String(), to.String()
	p.sink.Publish(ev)
}

// ActiveDeviceChanged publishes the new active device. A zero address
// means no device is active and is sent without a device field.
func (p *Publisher) ActiveDeviceChanged(device hfp.Address) {
	p.sink.Publish(newEvent(KindActiveDevice, device))
}

func (p *Publisher) VendorEvent(device hfp.Address, command string, companyID, cmdType int, args []any) {
	ev := newEvent(KindVendorEvent, device)
	ev.Command = command
	ev.CompanyID = companyID
	ev.CommandType = cmdType
	ev.Args = args
	p.sink.Publish(ev)
}

func (p *Publisher) HFIndicatorChanged(device hfp.Address, id, value int) {
	ev := newEvent(KindHFIndicator, device)
	ev.IndicatorID = id
	ev.IndicatorValue = value
	p.sink.Publish(ev)
}
