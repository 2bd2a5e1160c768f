package headset

import (
	"fmt"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// msgKind identifies a message handled by a state machine.
type msgKind int

const (
	msgConnect msgKind = iota + 1
	msgDisconnect
	msgConnectAudio
	msgDisconnectAudio
	msgVoiceRecognitionStart
	msgVoiceRecognitionStop
	msgScoVolumeChanged
	msgCallStateChanged
	msgDeviceStateChanged
	msgSendClccResponse
	msgSendVendorResultCode
	msgSendBSIR
	msgStackEvent
	msgDialingOutResult
	msgVoiceRecognitionResult
	msgClccResponseTimeout
	msgConnectTimeout
)

var msgNames = map[msgKind]string{
	msgConnect:                "CONNECT",
	msgDisconnect:             "DISCONNECT",
	msgConnectAudio:           "CONNECT_AUDIO",
	msgDisconnectAudio:        "DISCONNECT_AUDIO",
	msgVoiceRecognitionStart:  "VOICE_RECOGNITION_START",
	msgVoiceRecognitionStop:   "VOICE_RECOGNITION_STOP",
	msgScoVolumeChanged:       "SCO_VOLUME_CHANGED",
	msgCallStateChanged:       "CALL_STATE_CHANGED",
	msgDeviceStateChanged:     "DEVICE_STATE_CHANGED",
	msgSendClccResponse:       "SEND_CCLC_RESPONSE",
	msgSendVendorResultCode:   "SEND_VENDOR_SPECIFIC_RESULT_CODE",
	msgSendBSIR:               "SEND_BSIR",
	msgStackEvent:             "STACK_EVENT",
	msgDialingOutResult:       "DIALING_OUT_RESULT",
	msgVoiceRecognitionResult: "VOICE_RECOGNITION_RESULT",
	msgClccResponseTimeout:    "CLCC_RSP_TIMEOUT",
	msgConnectTimeout:         "CONNECT_TIMEOUT",
}

func (k msgKind) String() string {
	if s, ok := msgNames[k]; ok {
		return s
	}
	return fmt.Sprintf("MSG(%d)", int(k))
}

// message is one unit of work for a state machine. The meaning of arg and
// obj depends on kind:
//
//	SCO_VOLUME_CHANGED                arg = volume
//	CALL_STATE_CHANGED                obj = hfp.CallStateInfo
//	DEVICE_STATE_CHANGED              obj = hfp.DeviceState
//	SEND_CCLC_RESPONSE                obj = hfp.ClccEntry
//	SEND_VENDOR_SPECIFIC_RESULT_CODE  obj = vendorResultCode
//	SEND_BSIR                         arg = 1 in-band ringing on, 0 off
//	STACK_EVENT                       obj = *hfp.StackEvent
//	DIALING_OUT_RESULT                arg = 1 success, 0 failure
//	VOICE_RECOGNITION_RESULT          arg = 1 success, 0 failure
type message struct {
	kind   msgKind
	device hfp.Address
	arg    int
	obj    any
}

func (m message) String() string {
	if m.kind == msgStackEvent {
		if ev, ok := m.obj.(*hfp.StackEvent); ok {
			return fmt.Sprintf("%v(%v)", m.kind, ev.Type)
		}
	}
	return m.kind.String()
}

// vendorResultCode is the payload of SEND_VENDOR_SPECIFIC_RESULT_CODE.
type vendorResultCode struct {
	command string
	arg     string
}
