package headset

import (
	"fmt"
	"slices"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// State is the internal state of a device's state machine.
type State int

const (
	// stateNone is the predecessor of the initial Disconnected state.
	stateNone State = iota
	StateDisconnected
	StateConnecting
	StateDisconnecting
	StateConnected
	StateAudioConnecting
	StateAudioOn
	StateAudioDisconnecting
)

var stateNames = [...]string{
	stateNone:               "None",
	StateDisconnected:       "Disconnected",
	StateConnecting:         "Connecting",
	StateDisconnecting:      "Disconnecting",
	StateConnected:          "Connected",
	StateAudioConnecting:    "AudioConnecting",
	StateAudioOn:            "AudioOn",
	StateAudioDisconnecting: "AudioDisconnecting",
}

// String returns the string representation of the state.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// legalPredecessors lists, for every state, the states it may be entered
// from.
var legalPredecessors = map[State][]State{
	StateDisconnected: {
		stateNone, StateConnecting, StateDisconnecting, StateConnected,
		StateAudioOn, StateAudioConnecting, StateAudioDisconnecting,
	},
	StateConnecting: {StateDisconnected},
	StateDisconnecting: {
		StateConnected, StateAudioConnecting, StateAudioOn, StateAudioDisconnecting,
	},
	StateConnected: {
		StateConnecting, StateAudioDisconnecting, StateDisconnecting,
		StateAudioConnecting, StateAudioOn, StateDisconnected,
	},
	StateAudioConnecting:    {StateConnected},
	StateAudioDisconnecting: {StateAudioOn},
	StateAudioOn:            {StateAudioConnecting, StateAudioDisconnecting, StateConnected},
}

// LegalPredecessor reports whether to may be entered from from.
func LegalPredecessor(from, to State) bool {
	return slices.Contains(legalPredecessors[to], from)
}

// ConnectionState maps the state to the connection state observers see.
func (s State) ConnectionState() hfp.ConnectionState {
	switch s {
	case StateConnecting:
		return hfp.StateConnecting
	case StateDisconnecting:
		return hfp.StateDisconnecting
	case StateConnected, StateAudioConnecting, StateAudioOn, StateAudioDisconnecting:
		return hfp.StateConnected
	default:
		return hfp.StateDisconnected
	}
}

// AudioState maps the state to the audio state observers see.
// AudioDisconnecting reports AudioConnected: the link is still up until the
// stack confirms the teardown.
func (s State) AudioState() hfp.AudioState {
	switch s {
	case StateAudioConnecting:
		return hfp.AudioConnecting
	case StateAudioOn, StateAudioDisconnecting:
		return hfp.AudioConnected
	default:
		return hfp.AudioDisconnected
	}
}

// pending reports whether s is a transient state guarded by a timeout.
func (s State) pending() bool {
	switch s {
	case StateConnecting, StateDisconnecting, StateAudioConnecting, StateAudioDisconnecting:
		return true
	}
	return false
}

// connectedFamily reports whether the service level connection is up.
func (s State) connectedFamily() bool {
	switch s {
	case StateConnected, StateAudioConnecting, StateAudioOn, StateAudioDisconnecting:
		return true
	}
	return false
}
