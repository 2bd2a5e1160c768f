package hfp

import "fmt"

// ConnectionState is the profile-level connection state of a device as seen
// by observers.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("connection_state(%d)", int(s))
	}
}

// AudioState is the SCO audio state of a device as seen by observers.
type AudioState int

const (
	AudioDisconnected AudioState = iota
	AudioConnecting
	AudioConnected
)

// String returns the string representation of the state.
func (s AudioState) String() string {
	switch s {
	case AudioDisconnected:
		return "audio_disconnected"
	case AudioConnecting:
		return "audio_connecting"
	case AudioConnected:
		return "audio_connected"
	default:
		return fmt.Sprintf("audio_state(%d)", int(s))
	}
}

// StackConnectionState is the connection state reported by the radio stack.
type StackConnectionState int

const (
	StackDisconnected StackConnectionState = iota
	StackConnecting
	StackConnected
	StackSLCConnected
	StackDisconnecting
)

// String returns the string representation of the state.
func (s StackConnectionState) String() string {
	switch s {
	case StackDisconnected:
		return "DISCONNECTED"
	case StackConnecting:
		return "CONNECTING"
	case StackConnected:
		return "CONNECTED"
	case StackSLCConnected:
		return "SLC_CONNECTED"
	case StackDisconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// StackAudioState is the SCO state reported by the radio stack.
type StackAudioState int

const (
	StackAudioDisconnected StackAudioState = iota
	StackAudioConnecting
	StackAudioConnected
	StackAudioDisconnecting
)

// String returns the string representation of the state.
func (s StackAudioState) String() string {
	switch s {
	case StackAudioDisconnected:
		return "AUDIO_DISCONNECTED"
	case StackAudioConnecting:
		return "AUDIO_CONNECTING"
	case StackAudioConnected:
		return "AUDIO_CONNECTED"
	case StackAudioDisconnecting:
		return "AUDIO_DISCONNECTING"
	default:
		return fmt.Sprintf("AUDIO_UNKNOWN(%d)", int(s))
	}
}

// VRState is a voice recognition state reported by the remote device.
type VRState int

const (
	VRStopped VRState = iota
	VRStarted
)

// VolumeType selects the speaker or microphone gain.
type VolumeType int

const (
	VolumeSpeaker VolumeType = iota
	VolumeMic
)

// WBSConfig is the wideband speech codec report of the remote device.
type WBSConfig int

const (
	WBSNone WBSConfig = iota
	WBSNo
	WBSYes
)

// ATResponseCode is a final AT result code.
type ATResponseCode int

const (
	ATResponseError ATResponseCode = iota
	ATResponseOK
)

// String returns "OK" or "ERROR".
func (c ATResponseCode) String() string {
	if c == ATResponseOK {
		return "OK"
	}
	return "ERROR"
}

// CallState is the state of the phone's call in setup, as pushed to the
// remote device.
type CallState int

const (
	CallActive CallState = iota
	CallHeld
	CallDialing
	CallAlerting
	CallIncoming
	CallWaiting
	CallIdle
	CallDisconnected
)

// String returns the string representation of the call state.
func (s CallState) String() string {
	switch s {
	case CallActive:
		return "active"
	case CallHeld:
		return "held"
	case CallDialing:
		return "dialing"
	case CallAlerting:
		return "alerting"
	case CallIncoming:
		return "incoming"
	case CallWaiting:
		return "waiting"
	case CallIdle:
		return "idle"
	case CallDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("call_state(%d)", int(s))
	}
}

// Network availability values of the CIND "service" indicator.
const (
	NetworkNotAvailable = 0
	NetworkAvailable    = 1
)

// Values of the CIND "roam" indicator.
const (
	ServiceHome    = 0
	ServiceRoaming = 1
)

// HF indicator assigned numbers (AT+BIND / AT+BIEV).
const (
	HFIndicatorEnhancedDriverSafety = 1
	HFIndicatorBatteryLevel         = 2
)

// BondState is the pairing state of a remote device.
type BondState int

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

// String returns the string representation of the bond state.
func (s BondState) String() string {
	switch s {
	case BondNone:
		return "none"
	case BondBonding:
		return "bonding"
	case BondBonded:
		return "bonded"
	default:
		return fmt.Sprintf("bond_state(%d)", int(s))
	}
}

// Priority is the persisted connection policy of a device.
type Priority int

const (
	PriorityUndefined   Priority = -1
	PriorityOff         Priority = 0
	PriorityOn          Priority = 100
	PriorityAutoConnect Priority = 1000
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityUndefined:
		return "undefined"
	case PriorityOff:
		return "off"
	case PriorityOn:
		return "on"
	case PriorityAutoConnect:
		return "auto_connect"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses the names returned by Priority.String.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "undefined":
		return PriorityUndefined, nil
	case "off":
		return PriorityOff, nil
	case "on":
		return PriorityOn, nil
	case "auto_connect", "auto":
		return PriorityAutoConnect, nil
	default:
		return PriorityUndefined, fmt.Errorf("hfp: unknown priority %q", s)
	}
}

// Service class UUIDs advertised by headsets and gateways.
const (
	UUIDHeadset     = "00001108-0000-1000-8000-00805f9b34fb"
	UUIDHeadsetAG   = "00001112-0000-1000-8000-00805f9b34fb"
	UUIDHandsfree   = "0000111e-0000-1000-8000-00805f9b34fb"
	UUIDHandsfreeAG = "0000111f-0000-1000-8000-00805f9b34fb"
)

// HeadsetUUIDs are the remote service classes a device must advertise to be
// connectable by the audio gateway.
var HeadsetUUIDs = []string{UUIDHeadset, UUIDHandsfree}
