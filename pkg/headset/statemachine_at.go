package headset

import (
	"strconv"
	"strings"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

// VendorCmdTypeSet is the command type published with vendor specific
// events decoded from "+CMD=args" commands.
const VendorCmdTypeSet = 2

func (sm *stateMachine) respond(code hfp.ATResponseCode) {
	if !sm.svc.native.AtResponseCode(sm.device, code, 0) {
		sm.warnf("failed to send %v", code)
	}
}

func (sm *stateMachine) processAtChld(chld int) {
	sm.respond(resultCode(sm.svc.tel.ProcessChld(chld)))
}

func (sm *stateMachine) processAtCind() {
	call := sm.svc.phone.CallState()
	numActive, numHeld := call.NumActive, call.NumHeld
	if sm.svc.IsVirtualCallStarted() {
		numActive, numHeld = 1, 0
	}
	ds := sm.svc.phone.DeviceState()
	sm.svc.native.CindResponse(sm.device, ds.Service, numActive, numHeld, call.CallState,
		ds.Signal, ds.Roam, ds.BatteryCharge)
}

func (sm *stateMachine) processAtCops() {
	sm.svc.native.CopsResponse(sm.device, sm.svc.tel.NetworkOperator())
}

func (sm *stateMachine) processAtClcc() {
	if sm.svc.IsVirtualCallStarted() {
		number := sm.svc.tel.SubscriberNumber()
		sm.svc.native.ClccResponse(sm.device, hfp.ClccEntry{
			Index:  1,
			Number: number,
			Type:   atcmd.TOA(number),
		})
		sm.svc.native.ClccResponse(sm.device, hfp.TerminatingClcc)
		return
	}
	if !sm.svc.tel.ListCurrentCalls() {
		sm.errorf("processAtClcc: failed to list current calls")
		sm.svc.native.ClccResponse(sm.device, hfp.TerminatingClcc)
		return
	}
	sm.sendDelayed(msgClccResponseTimeout, timerClccResponse, sm.svc.cfg.ClccResponseTimeout)
}

// processSendClccResponse forwards a call list entry while the device is
// waiting for one. The terminating entry disarms the timeout.
func (sm *stateMachine) processSendClccResponse(e hfp.ClccEntry) {
	key := sm.timer(timerClccResponse)
	if !sm.svc.loop.pending(key) {
		return
	}
	if e.Index == 0 {
		sm.svc.loop.cancel(key)
	}
	sm.svc.native.ClccResponse(sm.device, e)
}

func (sm *stateMachine) processSubscriberNumberRequest() {
	number := sm.svc.tel.SubscriberNumber()
	if number == "" {
		sm.respond(hfp.ATResponseError)
		return
	}
	sm.svc.native.AtResponseString(sm.device, atcmd.FormatCNUM(number))
	sm.respond(hfp.ATResponseOK)
}

func (sm *stateMachine) processVrEvent(state hfp.VRState) {
	switch state {
	case hfp.VRStarted:
		if !sm.svc.startVoiceRecognitionByHeadset(sm.device) {
			sm.respond(hfp.ATResponseError)
		}
	case hfp.VRStopped:
		sm.respond(resultCode(sm.svc.stopVoiceRecognitionByHeadset(sm.device)))
	default:
		sm.errorf("processVrEvent: bad voice recognition state %d", int(state))
		sm.respond(hfp.ATResponseError)
	}
}

func (sm *stateMachine) processDialCall(number string) {
	if sm.svc.hasDeviceInitiatedDialingOut() {
		sm.warnf("processDialCall: already dialling")
		sm.respond(hfp.ATResponseError)
		return
	}
	target, dial := atcmd.ResolveDial(number)
	switch target {
	case atcmd.DialMemoryUnsupported:
		sm.warnf("processDialCall: unsupported memory location %s", number)
		sm.respond(hfp.ATResponseError)
		return
	case atcmd.DialLast:
		last, ok := sm.svc.phonebook.LastDialledNumber()
		if !ok {
			sm.warnf("processDialCall: last dialled number is unknown")
			sm.respond(hfp.ATResponseError)
			return
		}
		dial = last
	}
	if !sm.svc.dialOutgoingCall(sm.device, dial) {
		sm.warnf("processDialCall: failed to dial %s", dial)
		sm.respond(hfp.ATResponseError)
		return
	}
	sm.needDialingOutReply = true
}

// processVolumeEvent honors gain reports from the active device only.
func (sm *stateMachine) processVolumeEvent(t hfp.VolumeType, volume int) {
	if sm.svc.ActiveDevice() != sm.device {
		sm.warnf("processVolumeEvent: ignored, not the active device")
		return
	}
	switch t {
	case hfp.VolumeSpeaker:
		sm.speakerVolume = volume
		sm.svc.audio.SetStreamVolume(volume, sm.cur == StateAudioOn)
	case hfp.VolumeMic:
		sm.micVolume = volume
	default:
		sm.errorf("processVolumeEvent: bad volume type %d", int(t))
	}
}

func (sm *stateMachine) processNoiseReductionEvent(enable bool) {
	prev := sm.audioParam(audioParamNrec)
	next := audioFeatureOff
	if enable {
		next = audioFeatureOn
	}
	sm.audioParams[audioParamNrec] = next
	sm.infof("processNoiseReductionEvent: %s -> %s", prev, next)
	if prev != next && sm.cur.AudioState() == hfp.AudioConnected {
		sm.setAudioParameters()
	}
}

func (sm *stateMachine) processWBSEvent(cfg hfp.WBSConfig) {
	prev := sm.audioParam(audioParamWbs)
	switch cfg {
	case hfp.WBSYes:
		sm.audioParams[audioParamWbs] = audioFeatureOn
	case hfp.WBSNo, hfp.WBSNone:
		sm.audioParams[audioParamWbs] = audioFeatureOff
	default:
		sm.errorf("processWBSEvent: unknown config %d", int(cfg))
		return
	}
	next := sm.audioParams[audioParamWbs]
	sm.infof("processWBSEvent: %s -> %s", prev, next)
	if prev != next && sm.cur.AudioState() == hfp.AudioConnected {
		sm.setAudioParameters()
	}
}

// processAtBind publishes every supported indicator the device announces.
func (sm *stateMachine) processAtBind(s string) {
	for tok := range strings.SplitSeq(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			sm.errorf("processAtBind: bad indicator %q", tok)
			continue
		}
		switch id {
		case hfp.HFIndicatorEnhancedDriverSafety, hfp.HFIndicatorBatteryLevel:
			sm.debugf("processAtBind: indicator %d supported", id)
			sm.svc.pub.HFIndicatorChanged(sm.device, id, -1)
		default:
			sm.debugf("processAtBind: indicator %d not supported", id)
		}
	}
}

func (sm *stateMachine) processAtBiev(id, value int) {
	sm.svc.pub.HFIndicatorChanged(sm.device, id, value)
}

func (sm *stateMachine) processUnknownAt(s string) {
	cmd := atcmd.Normalize(s)
	typ := atcmd.CommandType(cmd)
	if atcmd.IsPhonebook(cmd) {
		lines, code := sm.svc.phonebook.Handle(sm.device, cmd, typ)
		for _, l := range lines {
			sm.svc.native.AtResponseString(sm.device, l)
		}
		sm.respond(code)
		return
	}
	sm.processVendorSpecificAt(cmd)
}

func (sm *stateMachine) processVendorSpecificAt(cmd string) {
	v, ok := atcmd.ParseVendor(cmd)
	if !ok {
		sm.warnf("processVendorSpecificAt: unsupported command %q", cmd)
		sm.respond(hfp.ATResponseError)
		return
	}
	if v.Command == atcmd.VendorXAPL {
		if reply, ok := atcmd.XAPLReply(v.Args); ok {
			sm.svc.native.AtResponseString(sm.device, reply)
		} else {
			sm.warnf("processVendorSpecificAt: malformed +XAPL arguments")
		}
	}
	sm.svc.pub.VendorEvent(sm.device, v.Command, v.CompanyID, VendorCmdTypeSet, v.Args)
	sm.respond(hfp.ATResponseOK)
}

// processKeyPressed handles the headset button. The stack has already
// answered the command, so nothing is sent back.
func (sm *stateMachine) processKeyPressed() {
	switch {
	case sm.svc.phone.IsRinging():
		sm.svc.answerCall(sm.device)
	case sm.svc.phone.IsInCall():
		if sm.cur.AudioState() == hfp.AudioDisconnected {
			if !sm.svc.SetActiveDevice(sm.device) {
				sm.warnf("processKeyPressed: failed to set active device")
			}
		} else {
			sm.svc.hangupCall(sm.device)
		}
	case sm.cur.AudioState() != hfp.AudioDisconnected:
		if !sm.svc.native.DisconnectAudio(sm.device) {
			sm.warnf("processKeyPressed: failed to disconnect audio")
		}
	default:
		if sm.svc.hasDeviceInitiatedDialingOut() {
			sm.warnf("processKeyPressed: already dialling")
			return
		}
		number, ok := sm.svc.phonebook.LastDialledNumber()
		if !ok {
			sm.warnf("processKeyPressed: last dialled number is unknown")
			return
		}
		if !sm.svc.dialOutgoingCall(sm.device, number) {
			sm.warnf("processKeyPressed: failed to dial %s", number)
		}
	}
}
