package hfp

import "fmt"

// StackEventType identifies an asynchronous event delivered by the radio stack.
type StackEventType int

const (
	EventNone StackEventType = iota
	EventConnectionStateChanged
	EventAudioStateChanged
	EventVRStateChanged
	EventAnswerCall
	EventHangupCall
	EventVolumeChanged
	EventDialCall
	EventSendDTMF
	EventNoiseReduction
	EventATChld
	EventSubscriberNumberRequest
	EventATCind
	EventATCops
	EventATClcc
	EventUnknownAT
	EventKeyPressed
	EventWBS
	EventBIND
	EventBIEV
	EventBIA
)

var stackEventNames = [...]string{
	EventNone:                    "NONE",
	EventConnectionStateChanged:  "CONNECTION_STATE_CHANGED",
	EventAudioStateChanged:       "AUDIO_STATE_CHANGED",
	EventVRStateChanged:          "VR_STATE_CHANGED",
	EventAnswerCall:              "ANSWER_CALL",
	EventHangupCall:              "HANGUP_CALL",
	EventVolumeChanged:           "VOLUME_CHANGED",
	EventDialCall:                "DIAL_CALL",
	EventSendDTMF:                "SEND_DTMF",
	EventNoiseReduction:          "NOISE_REDUCTION",
	EventATChld:                  "AT_CHLD",
	EventSubscriberNumberRequest: "SUBSCRIBER_NUMBER_REQUEST",
	EventATCind:                  "AT_CIND",
	EventATCops:                  "AT_COPS",
	EventATClcc:                  "AT_CLCC",
	EventUnknownAT:               "UNKNOWN_AT",
	EventKeyPressed:              "KEY_PRESSED",
	EventWBS:                     "WBS",
	EventBIND:                    "BIND",
	EventBIEV:                    "BIEV",
	EventBIA:                     "BIA",
}

// String returns the string representation of the event type.
func (t StackEventType) String() string {
	if t >= 0 && int(t) < len(stackEventNames) {
		return stackEventNames[t]
	}
	return fmt.Sprintf("EVENT(%d)", int(t))
}

// StackEvent is one asynchronous event from the radio stack. The meaning of
// Int1, Int2 and Str depends on Type:
//
//	CONNECTION_STATE_CHANGED  Int1 = StackConnectionState
//	AUDIO_STATE_CHANGED       Int1 = StackAudioState
//	VR_STATE_CHANGED          Int1 = VRState
//	VOLUME_CHANGED            Int1 = VolumeType, Int2 = volume
//	DIAL_CALL                 Str  = number ("" for redial, ">n" for memory)
//	SEND_DTMF                 Int1 = DTMF code
//	NOISE_REDUCTION           Int1 = 1 enabled, 0 disabled
//	AT_CHLD                   Int1 = CHLD argument
//	UNKNOWN_AT                Str  = raw AT command
//	WBS                       Int1 = WBSConfig
//	BIND                      Str  = comma separated indicator ids
//	BIEV                      Int1 = indicator id, Int2 = value
//	BIA                       Indicators
type StackEvent struct {
	Type       StackEventType
	Device     Address
	Int1       int
	Int2       int
	Str        string
	Indicators *AgIndicatorEnableState
}

// String returns a compact description used in logs.
func (e *StackEvent) String() string {
	return fmt.Sprintf("StackEvent{type=%v, device=%v, int1=%d, int2=%d, str=%q}",
		e.Type, e.Device, e.Int1, e.Int2, e.Str)
}

// AgIndicatorEnableState tells which AG indicators the remote device wants
// pushed (AT+BIA).
type AgIndicatorEnableState struct {
	Service bool
	Roam    bool
	Signal  bool
	Battery bool
}

// DefaultAgIndicatorEnableState enables every indicator.
var DefaultAgIndicatorEnableState = AgIndicatorEnableState{
	Service: true,
	Roam:    true,
	Signal:  true,
	Battery: true,
}

// String returns a compact description used in logs.
func (s AgIndicatorEnableState) String() string {
	return fmt.Sprintf("{service=%t, roam=%t, signal=%t, battery=%t}", s.Service, s.Roam, s.Signal, s.Battery)
}

// CallStateInfo is the call state blob pushed to every connected device.
type CallStateInfo struct {
	NumActive int
	NumHeld   int
	CallState CallState
	Number    string
	Type      int
}

// DeviceState is the set of CIND indicator values pushed on change.
type DeviceState struct {
	Service       int
	Roam          int
	Signal        int
	BatteryCharge int
}

// ClccEntry is one line of a +CLCC response. An entry with Index 0
// terminates the list.
type ClccEntry struct {
	Index      int
	Direction  int
	Status     int
	Mode       int
	Multiparty bool
	Number     string
	Type       int
}

// TerminatingClcc is the final, empty CLCC entry.
var TerminatingClcc = ClccEntry{}
