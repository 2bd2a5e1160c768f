package headset

import (
	"fmt"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

// StackEvent routes an event from the radio stack to the device's state
// machine. A connection event announcing an incoming connection creates the
// machine; any other event for an unknown device fails with
// ErrNoStateMachine.
func (s *Service) StackEvent(ev hfp.StackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := s.machines[ev.Device]
	if sm == nil && ev.Type == hfp.EventConnectionStateChanged {
		switch hfp.StackConnectionState(ev.Int1) {
		case hfp.StackConnected, hfp.StackConnecting:
			sm = s.machineLocked(ev.Device)
		}
	}
	if sm == nil {
		s.log.ErrorPrintf("state machine not found for stack event: %v", &ev)
		return fmt.Errorf("%w %v", ErrNoStateMachine, ev.Device)
	}
	sm.sendObj(msgStackEvent, &ev)
	return nil
}

// ============================================================================
// Telephony
// ============================================================================

// PhoneStateChanged is called by telephony whenever the call state changes.
func (s *Service) PhoneStateChanged(info hfp.CallStateInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phoneStateChangedLocked(info, false)
}

func (s *Service) phoneStateChangedLocked(info hfp.CallStateInfo, virtual bool) {
	s.log.DebugPrintf("phoneStateChanged: active=%d, held=%d, state=%v, virtual=%t",
		info.NumActive, info.NumHeld, info.CallState, virtual)
	if info.NumActive+info.NumHeld > 0 || info.CallState != hfp.CallIdle {
		if !virtual && s.virtualCall {
			s.stopScoUsingVirtualVoiceCallLocked()
		}
		if s.vrStarted {
			s.stopVoiceRecognitionLocked(s.active)
		}
	}
	if s.dialOut != nil {
		switch info.CallState {
		case hfp.CallDialing:
			s.loop.cancel(s.timer(timerDialingOut))
			if sm := s.machines[*s.dialOut]; sm != nil {
				sm.sendArg(msgDialingOutResult, 1)
			}
		case hfp.CallActive, hfp.CallIdle:
			if !s.loop.pending(s.timer(timerDialingOut)) {
				s.dialOut = nil
			}
		}
	}

	s.loop.post(func() {
		wasIdle := s.phone.IsCallIdle()
		s.phone.UpdateCallState(info)
		if info.CallState != hfp.CallDisconnected && wasIdle && !s.phone.IsCallIdle() {
			s.audio.SetParameters("A2dpSuspended=true")
		}
	})
	for _, sm := range s.connectedMachinesLocked() {
		sm.sendObj(msgCallStateChanged, info)
	}
	s.loop.post(func() {
		if info.CallState == hfp.CallIdle && !s.IsAudioOn() {
			s.audio.SetParameters("A2dpSuspended=false")
		}
	})
}

// ClccResponse delivers one call list entry from telephony to every
// connecting or connected device waiting for one. Index 0 ends the list.
func (s *Service) ClccResponse(entry hfp.ClccEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sm := range s.clccMachinesLocked() {
		sm.sendObj(msgSendClccResponse, entry)
	}
}

// SendVendorSpecificResultCode sends "<command>: <arg>" to device. Only
// +ANDROID is allowed.
func (s *Service) SendVendorSpecificResultCode(device hfp.Address, command, arg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := s.machines[device]
	if sm == nil {
		s.log.WarnPrintf("sendVendorSpecificResultCode: %v was never connected", device)
		return false
	}
	if sm.ConnectionState() != hfp.StateConnected {
		return false
	}
	if command != atcmd.VendorAndroid {
		s.log.WarnPrintf("sendVendorSpecificResultCode: %s is not allowed", command)
		return false
	}
	sm.sendObj(msgSendVendorResultCode, vendorResultCode{command: command, arg: arg})
	return true
}

// BatteryChanged reports the local battery level out of scale. The value is
// scaled to the 0..5 battery indicator.
func (s *Service) BatteryChanged(level, scale int) {
	if level < 0 || scale <= 0 {
		s.log.ErrorPrintf("bad battery level %d/%d", level, scale)
		return
	}
	// Rounded level*5/scale.
	s.phone.SetBatteryCharge((level*10 + scale) / (2 * scale))
}

// onDeviceStateChanged is the phone state tracker's sink.
func (s *Service) onDeviceStateChanged(ds hfp.DeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sm := range s.connectedMachinesLocked() {
		sm.sendObj(msgDeviceStateChanged, ds)
	}
}

// ============================================================================
// State machine callbacks (run on the loop)
// ============================================================================

func (s *Service) onConnectionStateChanged(device hfp.Address, from, to hfp.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	connected := s.connectedMachinesLocked()
	if from != hfp.StateConnected && to == hfp.StateConnected && len(connected) > 1 {
		s.inbandRuntimeDisable = true
		if s.cfg.InbandRingingSupported {
			for _, sm := range connected {
				sm.sendArg(msgSendBSIR, 0)
			}
		}
	}
	if from != hfp.StateDisconnected && to == hfp.StateDisconnected {
		if len(connected) <= 1 {
			s.inbandRuntimeDisable = false
			if s.cfg.InbandRingingSupported {
				for _, sm := range connected {
					sm.sendArg(msgSendBSIR, 1)
				}
			}
		}
		if device == s.active {
			s.setActiveDeviceLocked(hfp.Address{})
		}
	}
}

func (s *Service) onAudioStateChanged(device hfp.Address, from, to hfp.AudioState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to != hfp.AudioDisconnected {
		return
	}
	if s.vrStarted && !s.stopVoiceRecognitionByHeadsetLocked(device) {
		s.log.WarnPrintf("onAudioStateChanged: failed to stop voice recognition on %v", device)
	}
	if s.virtualCall && !s.stopScoUsingVirtualVoiceCallLocked() {
		s.log.WarnPrintf("onAudioStateChanged: failed to stop virtual call on %v", device)
	}
	if s.phone.IsCallIdle() {
		s.audio.SetParameters("A2dpSuspended=false")
	}
	if !s.active.IsZero() && s.active != device && s.shouldPersistAudioLocked() {
		if !s.connectAudioLocked(s.active) {
			s.log.WarnPrintf("onAudioStateChanged: failed to connect audio to %v", s.active)
		}
	}
}
