// Package headset implements the audio gateway side of the Hands-Free and
// Headset profiles: one state machine per remote device and a Service that
// coordinates them.
//
// # State machines
//
// Each device moves through Disconnected, Connecting, Connected,
// Disconnecting, AudioConnecting, AudioOn and AudioDisconnecting. Entering a
// state from anything but one of its legal predecessors panics with a
// *TransitionError. Pending states are bounded by Config.ConnectTimeout and
// fall back to the nearest stable state when the stack never answers.
// Commands received while pending are deferred and replayed, in order, after
// the next transition.
//
// # Loop
//
// All state machines of a Service share one goroutine. Stack events,
// commands and timeouts are posted to it and handled one at a time, so a
// state machine never needs a lock for its own fields.
//
// # Service
//
// The Service owns the device table, the active device, voice recognition,
// virtual calls and headset initiated dialing, guarded by one mutex. Only
// the active device may carry SCO audio, and only while a call, voice
// recognition or virtual call wants it (see SetForceScoAudio and
// SetAudioRouteAllowed).
//
// The radio stack is reached through Native; telephony, audio and platform
// services are injected through Options. Publisher receives every state
// change, active device change, vendor event and HF indicator. Publisher
// methods may run with the service lock held and must not call back into
// the Service.
package headset
