package headset

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/haivivi/hfpag/pkg/hfp"
	"github.com/haivivi/hfpag/pkg/phonestate"
)

// Audio parameter keys and values pushed to the AudioSystem.
const (
	audioParamName = "bt_headset_name"
	audioParamNrec = "bt_headset_nrec"
	audioParamWbs  = "bt_wbs"

	audioFeatureOn  = "on"
	audioFeatureOff = "off"
)

// stateMachine tracks one remote device. Everything except the atomics runs
// on the service loop.
type stateMachine struct {
	device hfp.Address
	svc    *Service

	state        atomic.Int32
	connectingTS atomic.Int64
	quit         atomic.Bool

	cur      State
	prev     State
	dest     State
	hasDest  bool
	deferred []message

	indicators          *hfp.AgIndicatorEnableState
	audioParams         map[string]string
	needDialingOutReply bool
	speakerVolume       int
	micVolume           int
}

// newStateMachine creates a machine in the Disconnected state. It must be
// called before the machine is reachable from the loop.
func newStateMachine(device hfp.Address, svc *Service) *stateMachine {
	sm := &stateMachine{
		device:      device,
		svc:         svc,
		audioParams: make(map[string]string),
	}
	sm.transitionTo(StateDisconnected)
	sm.performTransition()
	return sm
}

// ============================================================================
// Observers (any goroutine)
// ============================================================================

// State returns the current state.
func (sm *stateMachine) State() State {
	return State(sm.state.Load())
}

// ConnectionState returns the public connection state.
func (sm *stateMachine) ConnectionState() hfp.ConnectionState {
	return sm.State().ConnectionState()
}

// AudioState returns the public audio state.
func (sm *stateMachine) AudioState() hfp.AudioState {
	return sm.State().AudioState()
}

// ConnectingTimestamp returns when the machine last entered Connecting, or
// zero.
func (sm *stateMachine) ConnectingTimestamp() time.Time {
	ns := sm.connectingTS.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ============================================================================
// Messaging
// ============================================================================

func (sm *stateMachine) send(kind msgKind) {
	sm.sendMessage(message{kind: kind, device: sm.device})
}

func (sm *stateMachine) sendArg(kind msgKind, arg int) {
	sm.sendMessage(message{kind: kind, device: sm.device, arg: arg})
}

func (sm *stateMachine) sendObj(kind msgKind, obj any) {
	sm.sendMessage(message{kind: kind, device: sm.device, obj: obj})
}

func (sm *stateMachine) sendMessage(m message) {
	sm.svc.loop.post(func() { sm.dispatch(m) })
}

func (sm *stateMachine) timer(kind int) timerKey {
	return timerKey{owner: sm, kind: kind}
}

func (sm *stateMachine) sendDelayed(kind msgKind, timer int, d time.Duration) {
	m := message{kind: kind, device: sm.device}
	sm.svc.loop.schedule(sm.timer(timer), d, func() { sm.dispatch(m) })
}

// doQuit stops the machine from handling further messages and disarms its
// timers.
func (sm *stateMachine) doQuit() {
	sm.quit.Store(true)
	sm.svc.loop.cancel(sm.timer(timerConnect))
	sm.svc.loop.cancel(sm.timer(timerClccResponse))
}

func (sm *stateMachine) deferMessage(m message) {
	sm.debugf("defer %v", m)
	sm.deferred = append(sm.deferred, m)
}

func (sm *stateMachine) hasDeferredMessages(kind msgKind) bool {
	return slices.ContainsFunc(sm.deferred, func(m message) bool { return m.kind == kind })
}

func (sm *stateMachine) removeDeferredMessages(kind msgKind) {
	sm.deferred = slices.DeleteFunc(sm.deferred, func(m message) bool { return m.kind == kind })
}

// dispatch runs m through the current state, then applies any transition the
// handler requested.
func (sm *stateMachine) dispatch(m message) {
	if sm.quit.Load() {
		return
	}
	sm.debugf("process %v", m)
	switch sm.cur {
	case StateDisconnected:
		sm.processDisconnected(m)
	case StateConnecting:
		sm.processConnecting(m)
	case StateDisconnecting:
		sm.processDisconnecting(m)
	case StateConnected:
		sm.processConnected(m)
	case StateAudioConnecting:
		sm.processAudioConnecting(m)
	case StateAudioOn:
		sm.processAudioOn(m)
	case StateAudioDisconnecting:
		sm.processAudioDisconnecting(m)
	default:
		sm.errorf("no handler for %v", m)
	}
	sm.performTransition()
}

// ============================================================================
// Transitions
// ============================================================================

func (sm *stateMachine) transitionTo(s State) {
	sm.dest = s
	sm.hasDest = true
}

func (sm *stateMachine) performTransition() {
	for sm.hasDest {
		dest := sm.dest
		sm.hasDest = false

		sm.exit(sm.cur)
		sm.prev, sm.cur = sm.cur, dest
		sm.state.Store(int32(dest))
		sm.enter(dest)

		if len(sm.deferred) > 0 {
			replay := make([]func(), 0, len(sm.deferred))
			for _, m := range sm.deferred {
				replay = append(replay, func() { sm.dispatch(m) })
			}
			sm.deferred = nil
			sm.svc.loop.postFront(replay...)
		}
	}
}

func (sm *stateMachine) enter(s State) {
	if !LegalPredecessor(sm.prev, s) {
		panic(&TransitionError{Device: sm.device, From: sm.prev, To: s})
	}
	sm.debugf("enter from %v", sm.prev)
	switch s {
	case StateDisconnected:
		sm.enterDisconnected()
	case StateConnecting:
		sm.connectingTS.Store(time.Now().UnixNano())
		sm.sendDelayed(msgConnectTimeout, timerConnect, sm.svc.cfg.ConnectTimeout)
		sm.broadcastStateTransitions()
	case StateConnected:
		sm.enterConnected()
	case StateAudioOn:
		sm.enterAudioOn()
	case StateDisconnecting, StateAudioConnecting, StateAudioDisconnecting:
		sm.sendDelayed(msgConnectTimeout, timerConnect, sm.svc.cfg.ConnectTimeout)
		sm.broadcastStateTransitions()
	}
}

func (sm *stateMachine) exit(s State) {
	if s.pending() {
		sm.svc.loop.cancel(sm.timer(timerConnect))
	}
}

func (sm *stateMachine) enterDisconnected() {
	sm.connectingTS.Store(0)
	sm.svc.phonebook.Reset(sm.device)
	sm.updateAgIndicatorEnableState(nil)
	sm.needDialingOutReply = false
	clear(sm.audioParams)
	sm.svc.loop.cancel(sm.timer(timerClccResponse))
	sm.broadcastStateTransitions()
	if sm.prev != stateNone && sm.svc.adapter.BondState(sm.device) == hfp.BondNone {
		sm.svc.loop.post(func() { sm.svc.removeStateMachine(sm.device) })
	}
}

func (sm *stateMachine) enterConnected() {
	if sm.prev == StateConnecting {
		sm.updateAgIndicatorEnableState(&hfp.DefaultAgIndicatorEnableState)
		sm.processNoiseReductionEvent(false)
		if !sm.svc.tel.QueryPhoneState() {
			sm.warnf("failed to query phone state")
		}
		sm.removeDeferredMessages(msgConnect)
	}
	sm.broadcastStateTransitions()
}

func (sm *stateMachine) enterAudioOn() {
	sm.removeDeferredMessages(msgConnectAudio)
	if sm.svc.ActiveDevice() != sm.device && !sm.hasDeferredMessages(msgDisconnectAudio) {
		sm.svc.SetActiveDevice(sm.device)
	}
	sm.setAudioParameters()
	sm.broadcastStateTransitions()
}

// ============================================================================
// Broadcasts
// ============================================================================

func (sm *stateMachine) broadcastStateTransitions() {
	if sm.prev == stateNone {
		return
	}
	prevAudio, curAudio := sm.prev.AudioState(), sm.cur.AudioState()
	if prevAudio != curAudio || (sm.prev == StateAudioDisconnecting && sm.cur == StateAudioOn) {
		sm.broadcastAudioState(prevAudio, curAudio)
	}
	prevConn, curConn := sm.prev.ConnectionState(), sm.cur.ConnectionState()
	if prevConn != curConn {
		sm.broadcastConnectionState(prevConn, curConn)
	}
}

func (sm *stateMachine) broadcastConnectionState(from, to hfp.ConnectionState) {
	sm.debugf("connection state %v -> %v", from, to)
	sm.svc.onConnectionStateChanged(sm.device, from, to)
	sm.svc.pub.ConnectionStateChanged(sm.device, from, to)
}

func (sm *stateMachine) broadcastAudioState(from, to hfp.AudioState) {
	sm.debugf("audio state %v -> %v", from, to)
	sm.svc.onAudioStateChanged(sm.device, from, to)
	sm.svc.pub.AudioStateChanged(sm.device, from, to)
}

// ============================================================================
// Disconnected
// ============================================================================

func (sm *stateMachine) processDisconnected(m message) {
	switch m.kind {
	case msgConnect:
		if !sm.svc.native.ConnectHfp(sm.device) {
			sm.errorf("CONNECT failed for connectHfp(%v)", sm.device)
			sm.broadcastConnectionState(hfp.StateDisconnected, hfp.StateDisconnected)
			return
		}
		sm.transitionTo(StateConnecting)
	case msgDisconnect:
		sm.warnf("DISCONNECT ignored, device=%v", sm.device)
	case msgCallStateChanged:
		sm.debugf("ignoring CALL_STATE_CHANGED event")
	case msgDeviceStateChanged:
		sm.debugf("ignoring DEVICE_STATE_CHANGED event")
	case msgStackEvent:
		ev := m.obj.(*hfp.StackEvent)
		if ev.Type != hfp.EventConnectionStateChanged {
			sm.errorf("unexpected stack event: %v", ev)
			return
		}
		sm.processConnectionEvent(hfp.StackConnectionState(ev.Int1))
	default:
		sm.errorf("unhandled %v", m)
	}
}

// ============================================================================
// Connecting
// ============================================================================

func (sm *stateMachine) processConnecting(m message) {
	switch m.kind {
	case msgConnect, msgConnectAudio, msgDisconnect, msgDisconnectAudio:
		sm.deferMessage(m)
	case msgConnectTimeout:
		sm.warnf("CONNECT_TIMEOUT")
		sm.transitionTo(StateDisconnected)
	case msgCallStateChanged:
		sm.debugf("ignoring CALL_STATE_CHANGED event")
	case msgDeviceStateChanged:
		sm.debugf("ignoring DEVICE_STATE_CHANGED event")
	case msgSendClccResponse:
		sm.processSendClccResponse(m.obj.(hfp.ClccEntry))
	case msgClccResponseTimeout:
		sm.warnf("CLCC_RSP_TIMEOUT, terminating call list")
		sm.svc.native.ClccResponse(sm.device, hfp.TerminatingClcc)
	case msgStackEvent:
		ev := m.obj.(*hfp.StackEvent)
		switch ev.Type {
		case hfp.EventConnectionStateChanged:
			sm.processConnectionEvent(hfp.StackConnectionState(ev.Int1))
		case hfp.EventATChld:
			sm.processAtChld(ev.Int1)
		case hfp.EventATCind:
			sm.processAtCind()
		case hfp.EventWBS:
			sm.processWBSEvent(hfp.WBSConfig(ev.Int1))
		case hfp.EventBIND:
			sm.processAtBind(ev.Str)
		// Not expected before the service level connection is up, but some
		// stacks send them early.
		case hfp.EventVRStateChanged:
			sm.warnf("unexpected VR event, state=%d", ev.Int1)
			sm.processVrEvent(hfp.VRState(ev.Int1))
		case hfp.EventDialCall:
			sm.warnf("unexpected dial event")
			sm.processDialCall(ev.Str)
		case hfp.EventSubscriberNumberRequest:
			sm.warnf("unexpected subscriber number event")
			sm.processSubscriberNumberRequest()
		case hfp.EventATCops:
			sm.warnf("unexpected COPS event")
			sm.processAtCops()
		case hfp.EventATClcc:
			sm.warnf("unexpected CLCC event")
			sm.processAtClcc()
		case hfp.EventUnknownAT:
			sm.warnf("unexpected unknown AT event, cmd=%s", ev.Str)
			sm.processUnknownAt(ev.Str)
		case hfp.EventKeyPressed:
			sm.warnf("unexpected key-press event")
			sm.processKeyPressed()
		case hfp.EventBIEV:
			sm.warnf("unexpected BIEV event, indId=%d, indValue=%d", ev.Int1, ev.Int2)
			sm.processAtBiev(ev.Int1, ev.Int2)
		case hfp.EventVolumeChanged:
			sm.warnf("unexpected volume event")
			sm.processVolumeEvent(hfp.VolumeType(ev.Int1), ev.Int2)
		case hfp.EventAnswerCall:
			sm.warnf("unexpected answer event")
			sm.svc.answerCall(sm.device)
		case hfp.EventHangupCall:
			sm.warnf("unexpected hangup event")
			sm.svc.hangupCall(sm.device)
		default:
			sm.errorf("unexpected stack event: %v", ev)
		}
	default:
		sm.errorf("unhandled %v", m)
	}
}

// ============================================================================
// Disconnecting
// ============================================================================

func (sm *stateMachine) processDisconnecting(m message) {
	switch m.kind {
	case msgConnect, msgConnectAudio, msgDisconnect, msgDisconnectAudio:
		sm.deferMessage(m)
	case msgConnectTimeout:
		sm.errorf("timeout")
		sm.transitionTo(StateDisconnected)
	case msgStackEvent:
		ev := m.obj.(*hfp.StackEvent)
		if ev.Type != hfp.EventConnectionStateChanged {
			sm.errorf("unexpected stack event: %v", ev)
			return
		}
		sm.processConnectionEvent(hfp.StackConnectionState(ev.Int1))
	default:
		sm.errorf("unhandled %v", m)
	}
}

// ============================================================================
// Connected
// ============================================================================

func (sm *stateMachine) processConnected(m message) {
	switch m.kind {
	case msgConnect:
		sm.warnf("CONNECT, ignored, device=%v", sm.device)
	case msgDisconnect:
		sm.debugf("DISCONNECT from device=%v", sm.device)
		if !sm.svc.native.DisconnectHfp(sm.device) {
			sm.errorf("DISCONNECT from %v failed", sm.device)
			sm.broadcastConnectionState(hfp.StateConnected, hfp.StateConnected)
			return
		}
		sm.transitionTo(StateDisconnecting)
	case msgConnectAudio:
		sm.debugf("CONNECT_AUDIO, device=%v", sm.device)
		sm.svc.audio.SetParameters("A2dpSuspended=true")
		if !sm.svc.native.ConnectAudio(sm.device) {
			sm.svc.audio.SetParameters("A2dpSuspended=false")
			sm.errorf("failed to connect SCO audio for %v", sm.device)
			sm.broadcastAudioState(hfp.AudioDisconnected, hfp.AudioDisconnected)
			return
		}
		sm.transitionTo(StateAudioConnecting)
	case msgDisconnectAudio:
		sm.debugf("ignoring DISCONNECT_AUDIO, device=%v", sm.device)
	default:
		sm.processConnectedBase(m)
	}
}

// ============================================================================
// AudioConnecting
// ============================================================================

func (sm *stateMachine) processAudioConnecting(m message) {
	switch m.kind {
	case msgConnect, msgConnectAudio, msgDisconnect, msgDisconnectAudio:
		sm.deferMessage(m)
	case msgConnectTimeout:
		sm.warnf("CONNECT_TIMEOUT")
		sm.transitionTo(StateConnected)
	default:
		sm.processConnectedBase(m)
	}
}

// ============================================================================
// AudioOn
// ============================================================================

func (sm *stateMachine) processAudioOn(m message) {
	switch m.kind {
	case msgConnect:
		sm.warnf("CONNECT, ignored, device=%v", sm.device)
	case msgDisconnect:
		sm.debugf("DISCONNECT, device=%v", sm.device)
		if !sm.svc.native.DisconnectAudio(sm.device) {
			sm.warnf("DISCONNECT failed to disconnect audio, device=%v", sm.device)
		}
		// Tear down the service level connection once audio is gone.
		sm.deferMessage(m)
		sm.transitionTo(StateAudioDisconnecting)
	case msgConnectAudio:
		sm.warnf("CONNECT_AUDIO, ignored, device=%v", sm.device)
	case msgDisconnectAudio:
		if !sm.svc.native.DisconnectAudio(sm.device) {
			sm.errorf("failed to disconnect audio, device=%v", sm.device)
			sm.broadcastAudioState(hfp.AudioConnected, hfp.AudioConnected)
			return
		}
		sm.transitionTo(StateAudioDisconnecting)
	case msgScoVolumeChanged:
		sm.processScoVolume(m.arg)
	case msgStackEvent:
		ev := m.obj.(*hfp.StackEvent)
		if ev.Type == hfp.EventWBS {
			sm.errorf("cannot change WBS state when audio is connected: %v", ev)
			return
		}
		sm.processConnectedBase(m)
	default:
		sm.processConnectedBase(m)
	}
}

func (sm *stateMachine) processScoVolume(volume int) {
	if sm.speakerVolume == volume {
		return
	}
	sm.speakerVolume = volume
	if !sm.svc.native.SetVolume(sm.device, hfp.VolumeSpeaker, volume) {
		sm.warnf("failed to set speaker volume %d", volume)
	}
}

// ============================================================================
// AudioDisconnecting
// ============================================================================

func (sm *stateMachine) processAudioDisconnecting(m message) {
	switch m.kind {
	case msgConnect, msgConnectAudio, msgDisconnect, msgDisconnectAudio:
		sm.deferMessage(m)
	case msgConnectTimeout:
		sm.warnf("CONNECT_TIMEOUT")
		sm.transitionTo(StateAudioOn)
	default:
		sm.processConnectedBase(m)
	}
}

// ============================================================================
// Shared by every state with a service level connection
// ============================================================================

func (sm *stateMachine) processConnectedBase(m message) {
	switch m.kind {
	case msgConnect, msgDisconnect, msgConnectAudio, msgDisconnectAudio, msgConnectTimeout:
		sm.errorf("ignored %v, should be handled by the state", m)
	case msgVoiceRecognitionStart:
		if !sm.svc.native.StartVoiceRecognition(sm.device) {
			sm.warnf("failed to start voice recognition")
		}
	case msgVoiceRecognitionStop:
		if !sm.svc.native.StopVoiceRecognition(sm.device) {
			sm.warnf("failed to stop voice recognition")
		}
	case msgCallStateChanged:
		if !sm.svc.native.PhoneStateChange(sm.device, m.obj.(hfp.CallStateInfo)) {
			sm.warnf("failed to update phone state")
		}
	case msgDeviceStateChanged:
		if !sm.svc.native.NotifyDeviceStatus(sm.device, m.obj.(hfp.DeviceState)) {
			sm.warnf("failed to notify device status")
		}
	case msgSendClccResponse:
		sm.processSendClccResponse(m.obj.(hfp.ClccEntry))
	case msgClccResponseTimeout:
		sm.warnf("CLCC_RSP_TIMEOUT, terminating call list")
		sm.svc.native.ClccResponse(sm.device, hfp.TerminatingClcc)
	case msgSendVendorResultCode:
		rc := m.obj.(vendorResultCode)
		sm.svc.native.AtResponseString(sm.device, rc.command+": "+rc.arg)
	case msgSendBSIR:
		if !sm.svc.native.SendBsir(sm.device, m.arg == 1) {
			sm.warnf("failed to send BSIR %d", m.arg)
		}
	case msgVoiceRecognitionResult:
		sm.svc.native.AtResponseCode(sm.device, resultCode(m.arg == 1), 0)
	case msgDialingOutResult:
		if sm.needDialingOutReply {
			sm.needDialingOutReply = false
			sm.svc.native.AtResponseCode(sm.device, resultCode(m.arg == 1), 0)
		}
	case msgStackEvent:
		sm.processStackEvent(m.obj.(*hfp.StackEvent))
	default:
		sm.errorf("unhandled %v", m)
	}
}

func (sm *stateMachine) processStackEvent(ev *hfp.StackEvent) {
	switch ev.Type {
	case hfp.EventConnectionStateChanged:
		sm.processConnectionEvent(hfp.StackConnectionState(ev.Int1))
	case hfp.EventAudioStateChanged:
		sm.processAudioEvent(hfp.StackAudioState(ev.Int1))
	case hfp.EventVRStateChanged:
		sm.processVrEvent(hfp.VRState(ev.Int1))
	case hfp.EventAnswerCall:
		sm.svc.answerCall(sm.device)
	case hfp.EventHangupCall:
		sm.svc.hangupCall(sm.device)
	case hfp.EventVolumeChanged:
		sm.processVolumeEvent(hfp.VolumeType(ev.Int1), ev.Int2)
	case hfp.EventDialCall:
		sm.processDialCall(ev.Str)
	case hfp.EventSendDTMF:
		if !sm.svc.tel.SendDTMF(sm.device, ev.Int1) {
			sm.warnf("failed to send DTMF %d", ev.Int1)
		}
	case hfp.EventNoiseReduction:
		sm.processNoiseReductionEvent(ev.Int1 == 1)
	case hfp.EventWBS:
		sm.processWBSEvent(hfp.WBSConfig(ev.Int1))
	case hfp.EventATChld:
		sm.processAtChld(ev.Int1)
	case hfp.EventSubscriberNumberRequest:
		sm.processSubscriberNumberRequest()
	case hfp.EventATCind:
		sm.processAtCind()
	case hfp.EventATCops:
		sm.processAtCops()
	case hfp.EventATClcc:
		sm.processAtClcc()
	case hfp.EventUnknownAT:
		sm.processUnknownAt(ev.Str)
	case hfp.EventKeyPressed:
		sm.processKeyPressed()
	case hfp.EventBIND:
		sm.processAtBind(ev.Str)
	case hfp.EventBIEV:
		sm.processAtBiev(ev.Int1, ev.Int2)
	case hfp.EventBIA:
		sm.updateAgIndicatorEnableState(ev.Indicators)
	default:
		sm.errorf("unknown stack event: %v", ev)
	}
}

// processConnectionEvent applies a stack connection state report.
func (sm *stateMachine) processConnectionEvent(st hfp.StackConnectionState) {
	switch sm.cur {
	case StateDisconnected:
		switch st {
		case hfp.StackConnected, hfp.StackConnecting:
			if sm.svc.okToAcceptConnection(sm.device) {
				sm.infof("incoming connection %v", st)
				sm.transitionTo(StateConnecting)
				return
			}
			sm.infof("incoming connection %v rejected", st)
			if !sm.svc.native.DisconnectHfp(sm.device) {
				sm.errorf("failed to disconnect rejected device")
			}
			sm.broadcastConnectionState(hfp.StateDisconnected, hfp.StateDisconnected)
		case hfp.StackDisconnected, hfp.StackDisconnecting:
			sm.warnf("ignore %v", st)
		default:
			sm.errorf("incorrect state: %v", st)
		}

	case StateConnecting:
		switch st {
		case hfp.StackDisconnected:
			sm.warnf("disconnected")
			sm.transitionTo(StateDisconnected)
		case hfp.StackConnected:
			sm.debugf("RFCOMM connected")
		case hfp.StackSLCConnected:
			sm.debugf("SLC connected")
			sm.transitionTo(StateConnected)
		case hfp.StackConnecting:
		case hfp.StackDisconnecting:
			sm.debugf("disconnecting")
		default:
			sm.errorf("incorrect state: %v", st)
		}

	case StateDisconnecting:
		switch st {
		case hfp.StackDisconnected:
			sm.debugf("processConnectionEvent: disconnected")
			sm.transitionTo(StateDisconnected)
		case hfp.StackSLCConnected:
			sm.warnf("processConnectionEvent: SLC connected again")
			sm.transitionTo(StateConnected)
		default:
			sm.errorf("processConnectionEvent: bad state: %v", st)
		}

	case StateConnected, StateAudioConnecting, StateAudioOn, StateAudioDisconnecting:
		switch st {
		case hfp.StackConnected:
			sm.errorf("processConnectionEvent: RFCOMM connected again, shouldn't happen")
		case hfp.StackSLCConnected:
			sm.errorf("processConnectionEvent: SLC connected again, shouldn't happen")
		case hfp.StackDisconnecting:
			sm.infof("processConnectionEvent: disconnecting")
			sm.transitionTo(StateDisconnecting)
		case hfp.StackDisconnected:
			sm.infof("processConnectionEvent: disconnected")
			sm.transitionTo(StateDisconnected)
		default:
			sm.errorf("processConnectionEvent: bad state: %v", st)
		}
	}
}

// processAudioEvent applies a stack audio state report.
func (sm *stateMachine) processAudioEvent(st hfp.StackAudioState) {
	switch sm.cur {
	case StateConnected:
		switch st {
		case hfp.StackAudioConnected, hfp.StackAudioConnecting:
			if !sm.svc.isScoAcceptable(sm.device) {
				sm.warnf("processAudioEvent: reject incoming audio %v", st)
				if !sm.svc.native.DisconnectAudio(sm.device) {
					sm.errorf("processAudioEvent: failed to disconnect audio")
				}
				sm.broadcastAudioState(hfp.AudioDisconnected, hfp.AudioDisconnected)
				return
			}
			if st == hfp.StackAudioConnected {
				sm.infof("processAudioEvent: audio connected")
				sm.transitionTo(StateAudioOn)
			} else {
				sm.infof("processAudioEvent: audio connecting")
				sm.transitionTo(StateAudioConnecting)
			}
		case hfp.StackAudioDisconnected, hfp.StackAudioDisconnecting:
			sm.debugf("processAudioEvent: ignore %v", st)
		default:
			sm.errorf("processAudioEvent: bad state: %v", st)
		}

	case StateAudioConnecting:
		switch st {
		case hfp.StackAudioDisconnected:
			sm.warnf("processAudioEvent: audio connection failed")
			sm.transitionTo(StateConnected)
		case hfp.StackAudioConnecting:
		case hfp.StackAudioConnected:
			sm.infof("processAudioEvent: audio connected")
			sm.transitionTo(StateAudioOn)
		default:
			sm.errorf("processAudioEvent: bad state: %v", st)
		}

	case StateAudioOn:
		switch st {
		case hfp.StackAudioDisconnected:
			sm.infof("processAudioEvent: audio disconnected by remote")
			sm.transitionTo(StateConnected)
		case hfp.StackAudioDisconnecting:
			sm.infof("processAudioEvent: audio being disconnected by remote")
			sm.transitionTo(StateAudioDisconnecting)
		default:
			sm.errorf("processAudioEvent: bad state: %v", st)
		}

	case StateAudioDisconnecting:
		switch st {
		case hfp.StackAudioDisconnected:
			sm.infof("processAudioEvent: audio disconnected")
			sm.transitionTo(StateConnected)
		case hfp.StackAudioDisconnecting:
		case hfp.StackAudioConnected:
			sm.warnf("processAudioEvent: audio disconnection failed")
			sm.transitionTo(StateAudioOn)
		default:
			sm.errorf("processAudioEvent: bad state: %v", st)
		}

	default:
		sm.errorf("processAudioEvent: unexpected %v", st)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func resultCode(ok bool) hfp.ATResponseCode {
	if ok {
		return hfp.ATResponseOK
	}
	return hfp.ATResponseError
}

// updateAgIndicatorEnableState subscribes the device to the telephony
// notifications its enabled indicators need.
func (sm *stateMachine) updateAgIndicatorEnableState(s *hfp.AgIndicatorEnableState) {
	if equalIndicators(sm.indicators, s) {
		sm.debugf("updateAgIndicatorEnableState, no change")
		return
	}
	events := phonestate.ListenNone
	if s != nil && s.Service {
		events |= phonestate.ListenServiceState
	}
	if s != nil && s.Signal {
		events |= phonestate.ListenSignalStrength
	}
	if s != nil {
		cp := *s
		sm.indicators = &cp
	} else {
		sm.indicators = nil
	}
	sm.svc.phone.Listen(sm.device, events)
}

func equalIndicators(a, b *hfp.AgIndicatorEnableState) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (sm *stateMachine) deviceName() string {
	if name := sm.svc.adapter.RemoteName(sm.device); name != "" {
		return name
	}
	return "<unknown>"
}

func (sm *stateMachine) audioParam(key string) string {
	if v, ok := sm.audioParams[key]; ok {
		return v
	}
	return audioFeatureOff
}

func (sm *stateMachine) setAudioParameters() {
	kv := fmt.Sprintf("%s=%s;%s=%s;%s=%s",
		audioParamName, sm.deviceName(),
		audioParamNrec, sm.audioParam(audioParamNrec),
		audioParamWbs, sm.audioParam(audioParamWbs))
	sm.infof("setAudioParameters: %s", kv)
	sm.svc.audio.SetParameters(kv)
}

func (sm *stateMachine) logPrefix(format string) string {
	return "[" + sm.device.String() + "] " + sm.cur.String() + ": " + format
}

func (sm *stateMachine) debugf(format string, args ...any) {
	sm.svc.log.DebugPrintf(sm.logPrefix(format), args...)
}

func (sm *stateMachine) infof(format string, args ...any) {
	sm.svc.log.InfoPrintf(sm.logPrefix(format), args...)
}

func (sm *stateMachine) warnf(format string, args ...any) {
	sm.svc.log.WarnPrintf(sm.logPrefix(format), args...)
}

func (sm *stateMachine) errorf(format string, args ...any) {
	sm.svc.log.ErrorPrintf(sm.logPrefix(format), args...)
}
