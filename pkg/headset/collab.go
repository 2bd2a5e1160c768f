package headset

import (
	"github.com/haivivi/hfpag/pkg/hfp"
	"github.com/haivivi/hfpag/pkg/phonestate"
	"github.com/haivivi/hfpag/pkg/priority"
)

// Native is the link to the radio stack. Every call returns immediately;
// asynchronous outcomes come back through Service.StackEvent.
type Native interface {
	Init(maxConnections int, inbandRinging bool)
	Cleanup()

	ConnectHfp(device hfp.Address) bool
	DisconnectHfp(device hfp.Address) bool
	ConnectAudio(device hfp.Address) bool
	DisconnectAudio(device hfp.Address) bool
	StartVoiceRecognition(device hfp.Address) bool
	StopVoiceRecognition(device hfp.Address) bool
	SetVolume(device hfp.Address, volumeType hfp.VolumeType, volume int) bool

	// CindResponse answers AT+CIND? with the seven indicator values.
	CindResponse(device hfp.Address, service, numActive, numHeld int, callState hfp.CallState, signal, roam, battery int) bool
	AtResponseString(device hfp.Address, response string) bool
	AtResponseCode(device hfp.Address, code hfp.ATResponseCode, errorCode int) bool
	CopsResponse(device hfp.Address, operator string) bool
	// ClccResponse sends one +CLCC entry; an entry with Index 0 ends the list.
	ClccResponse(device hfp.Address, entry hfp.ClccEntry) bool
	NotifyDeviceStatus(device hfp.Address, state hfp.DeviceState) bool
	PhoneStateChange(device hfp.Address, state hfp.CallStateInfo) bool
	SendBsir(device hfp.Address, inband bool) bool

	SetScoAllowed(allowed bool) bool
	SetActiveDevice(device hfp.Address) bool
}

// Telephony is the phone side of calls.
type Telephony interface {
	AnswerCall(device hfp.Address) bool
	HangupCall(device hfp.Address) bool
	SendDTMF(device hfp.Address, code int) bool
	ProcessChld(chld int) bool
	// ListCurrentCalls starts an asynchronous enumeration answered through
	// Service.ClccResponse.
	ListCurrentCalls() bool
	// QueryPhoneState asks telephony to replay the current call state through
	// Service.PhoneStateChanged.
	QueryPhoneState() bool
	NetworkOperator() string
	SubscriberNumber() string
	Dial(number string) bool
}

// AudioSystem is the platform audio mixer.
type AudioSystem interface {
	SetParameters(kv string)
	SetStreamVolume(volume int, showUI bool)
}

// Platform holds system services used around voice recognition.
type Platform interface {
	ActivateVoiceRecognition() bool
	DeactivateVoiceRecognition() bool
	ExitIdle() bool
	AcquireWakeLock()
	ReleaseWakeLock()
}

// Adapter reports what the local controller knows about remote devices.
type Adapter interface {
	BondState(device hfp.Address) hfp.BondState
	RemoteUUIDs(device hfp.Address) []string
	RemoteName(device hfp.Address) string
	QuietMode() bool
}

// Phonebook answers the phonebook AT commands (+CSCS, +CPBS, +CPBR).
type Phonebook interface {
	// Handle returns the response lines and the final result code for a
	// normalized command.
	Handle(device hfp.Address, command string, cmdType int) ([]string, hfp.ATResponseCode)
	LastDialledNumber() (string, bool)
	// Reset drops per-device cursors.
	Reset(device hfp.Address)
}

// Publisher receives the events the service broadcasts.
type Publisher interface {
	ConnectionStateChanged(device hfp.Address, from, to hfp.ConnectionState)
	AudioStateChanged(device hfp.Address, from, to hfp.AudioState)
	ActiveDeviceChanged(device hfp.Address)
	VendorEvent(device hfp.Address, command string, companyID, cmdType int, args []any)
	HFIndicatorChanged(device hfp.Address, id, value int)
}

// Options wires a Service to its collaborators. Native and Adapter are
// required; the rest fall back to no-op implementations.
type Options struct {
	Native     Native
	Adapter    Adapter
	Telephony  Telephony
	Audio      AudioSystem
	Platform   Platform
	Phonebook  Phonebook
	Publisher  Publisher
	Priority   priority.Store
	Subscriber phonestate.Subscriber
}

// ============================================================================
// No-op collaborators
// ============================================================================

type nopTelephony struct{}

func (nopTelephony) AnswerCall(hfp.Address) bool    { return false }
func (nopTelephony) HangupCall(hfp.Address) bool    { return false }
func (nopTelephony) SendDTMF(hfp.Address, int) bool { return false }
func (nopTelephony) ProcessChld(int) bool           { return false }
func (nopTelephony) ListCurrentCalls() bool         { return false }
func (nopTelephony) QueryPhoneState() bool          { return false }
func (nopTelephony) NetworkOperator() string        { return "" }
func (nopTelephony) SubscriberNumber() string       { return "" }
func (nopTelephony) Dial(string) bool               { return false }

type nopAudio struct{}

func (nopAudio) SetParameters(string)      {}
func (nopAudio) SetStreamVolume(int, bool) {}

// nopPlatform cannot leave idle mode, so voice recognition requests fail.
type nopPlatform struct{}

func (nopPlatform) ActivateVoiceRecognition() bool   { return false }
func (nopPlatform) DeactivateVoiceRecognition() bool { return false }
func (nopPlatform) ExitIdle() bool                   { return false }
func (nopPlatform) AcquireWakeLock()                 {}
func (nopPlatform) ReleaseWakeLock()                 {}

type nopPhonebook struct{}

func (nopPhonebook) Handle(hfp.Address, string, int) ([]string, hfp.ATResponseCode) {
	return nil, hfp.ATResponseError
}
func (nopPhonebook) LastDialledNumber() (string, bool) { return "", false }
func (nopPhonebook) Reset(hfp.Address)                 {}

type nopPublisher struct{}

func (nopPublisher) ConnectionStateChanged(hfp.Address, hfp.ConnectionState, hfp.ConnectionState) {}
func (nopPublisher) AudioStateChanged(hfp.Address, hfp.AudioState, hfp.AudioState)                {}
func (nopPublisher) ActiveDeviceChanged(hfp.Address)                                              {}
func (nopPublisher) VendorEvent(hfp.Address, string, int, int, []any)                             {}
func (nopPublisher) HFIndicatorChanged(hfp.Address, int, int)                                     {}
