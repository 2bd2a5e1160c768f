package headset

import (
	"github.com/haivivi/hfpag/pkg/hfp"
)

// ============================================================================
// Active device
// ============================================================================

// SetActiveDevice routes audio to device. The zero address clears the
// active device, ending voice recognition, virtual calls and audio on the
// previous one. A new active device must be connected; if switching fails
// halfway the previous device is restored.
func (s *Service) SetActiveDevice(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setActiveDeviceLocked(device)
}

func (s *Service) setActiveDeviceLocked(device hfp.Address) bool {
	s.log.InfoPrintf("setActiveDevice: %v", device)
	if device.IsZero() {
		if s.vrStarted && !s.stopVoiceRecognitionLocked(s.active) {
			s.log.WarnPrintf("setActiveDevice: fail to stopVoiceRecognition from %v", s.active)
		}
		if s.virtualCall && !s.stopScoUsingVirtualVoiceCallLocked() {
			s.log.WarnPrintf("setActiveDevice: fail to stopScoUsingVirtualVoiceCall from %v", s.active)
		}
		if s.audioStateLocked(s.active) != hfp.AudioDisconnected && !s.disconnectAudioLocked(s.active) {
			s.log.WarnPrintf("setActiveDevice: disconnectAudio failed on %v", s.active)
		}
		s.active = hfp.Address{}
		s.pub.ActiveDeviceChanged(hfp.Address{})
		return true
	}
	if device == s.active {
		s.log.InfoPrintf("setActiveDevice: %v is already active", device)
		return true
	}
	sm := s.machines[device]
	if sm == nil || sm.ConnectionState() != hfp.StateConnected {
		s.log.ErrorPrintf("setActiveDevice: cannot set %v as active, not connected", device)
		return false
	}
	if !s.native.SetActiveDevice(device) {
		s.log.ErrorPrintf("setActiveDevice: native refused %v", device)
		return false
	}
	prev := s.active
	s.active = device
	switch {
	case s.audioStateLocked(prev) != hfp.AudioDisconnected:
		if !s.disconnectAudioLocked(prev) {
			s.log.ErrorPrintf("setActiveDevice: fail to disconnectAudio from %v", prev)
			s.active = prev
			s.native.SetActiveDevice(prev)
			return false
		}
		s.pub.ActiveDeviceChanged(s.active)
	case s.shouldPersistAudioLocked():
		s.pub.ActiveDeviceChanged(s.active)
		if !s.connectAudioLocked(s.active) {
			s.log.ErrorPrintf("setActiveDevice: fail to connectAudio to %v", s.active)
			s.active = prev
			s.native.SetActiveDevice(prev)
			s.pub.ActiveDeviceChanged(prev)
			return false
		}
	default:
		s.pub.ActiveDeviceChanged(s.active)
	}
	return true
}

// ============================================================================
// Audio
// ============================================================================

// isScoAcceptable reports whether a SCO link to device may exist now.
func (s *Service) isScoAcceptable(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isScoAcceptableLocked(device)
}

func (s *Service) isScoAcceptableLocked(device hfp.Address) bool {
	if device.IsZero() || device != s.active {
		s.log.WarnPrintf("isScoAcceptable: rejected SCO since %v is not the active device %v", device, s.active)
		return false
	}
	if s.forceSco {
		return true
	}
	if !s.audioRouteAllowed {
		s.log.WarnPrintf("isScoAcceptable: rejected SCO since audio route is not allowed")
		return false
	}
	if s.vrStarted || s.virtualCall {
		return true
	}
	if s.phone.IsRinging() && s.isInbandRingingEnabledLocked() {
		return true
	}
	if s.phone.IsInCall() {
		return true
	}
	s.log.WarnPrintf("isScoAcceptable: rejected SCO, inCall=%t, voiceRecognition=%t, ringing=%t, inbandRinging=%t, virtualCall=%t",
		s.phone.IsInCall(), s.vrStarted, s.phone.IsRinging(), s.isInbandRingingEnabledLocked(), s.virtualCall)
	return false
}

// shouldPersistAudioLocked reports whether a real call wants audio on the
// active device.
func (s *Service) shouldPersistAudioLocked() bool {
	return !s.virtualCall && (s.phone.IsInCall() || (s.phone.IsRinging() && s.isInbandRingingEnabledLocked()))
}

// isAudioModeIdleLocked reports whether nothing owns the call audio path.
func (s *Service) isAudioModeIdleLocked() bool {
	return s.phone.IsCallIdle() && !s.virtualCall
}

// IsInbandRingingEnabled reports whether ring tones go over SCO.
func (s *Service) IsInbandRingingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isInbandRingingEnabledLocked()
}

func (s *Service) isInbandRingingEnabledLocked() bool {
	return s.cfg.InbandRingingSupported && !s.inbandRuntimeDisable
}

// ConnectAudio opens audio to the active device.
func (s *Service) ConnectAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.IsZero() {
		s.log.WarnPrintf("connectAudio: no active device")
		return false
	}
	return s.connectAudioLocked(s.active)
}

func (s *Service) connectAudioLocked(device hfp.Address) bool {
	s.log.InfoPrintf("connectAudio: device=%v", device)
	if device != s.active {
		s.log.WarnPrintf("connectAudio: %v is not active (active device is %v)", device, s.active)
		return false
	}
	if !s.isScoAcceptableLocked(device) {
		s.log.WarnPrintf("connectAudio: rejected SCO to %v", device)
		return false
	}
	sm := s.machines[device]
	if sm == nil {
		s.log.WarnPrintf("connectAudio: %v was never connected", device)
		return false
	}
	if cs := sm.ConnectionState(); cs != hfp.StateConnected && cs != hfp.StateConnecting {
		s.log.WarnPrintf("connectAudio: profile not connected, %v is %v", device, cs)
		return false
	}
	if sm.AudioState() != hfp.AudioDisconnected {
		s.log.WarnPrintf("connectAudio: audio is not idle for %v", device)
		return true
	}
	if s.isAudioOnLocked() {
		s.log.WarnPrintf("connectAudio: audio is not available on another device")
		return false
	}
	sm.send(msgConnectAudio)
	return true
}

// DisconnectAudio closes audio on every device that has it. It reports
// whether any device was asked to.
func (s *Service) DisconnectAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectAllAudioLocked()
}

func (s *Service) disconnectAllAudioLocked() bool {
	result := false
	for _, dev := range s.nonIdleAudioLocked() {
		if s.disconnectAudioLocked(dev) {
			result = true
		} else {
			s.log.ErrorPrintf("disconnectAudio: failed to disconnect audio from %v", dev)
		}
	}
	return result
}

func (s *Service) disconnectAudioLocked(device hfp.Address) bool {
	sm := s.machines[device]
	if sm == nil {
		s.log.WarnPrintf("disconnectAudio: %v was never connected", device)
		return false
	}
	if sm.AudioState() == hfp.AudioDisconnected {
		s.log.WarnPrintf("disconnectAudio: audio is already disconnected for %v", device)
		return false
	}
	sm.send(msgDisconnectAudio)
	return true
}

// SetAudioRouteAllowed allows or forbids SCO links.
func (s *Service) SetAudioRouteAllowed(allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioRouteAllowed = allowed
	s.native.SetScoAllowed(allowed)
}

// AudioRouteAllowed reports whether SCO links are allowed.
func (s *Service) AudioRouteAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioRouteAllowed
}

// SetForceScoAudio accepts SCO to the active device regardless of calls.
func (s *Service) SetForceScoAudio(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceSco = force
}

// ScoVolumeChanged pushes a local SCO stream volume change to the active
// device.
func (s *Service) ScoVolumeChanged(volume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm := s.machines[s.active]; sm != nil {
		sm.sendArg(msgScoVolumeChanged, volume)
	}
}

// ============================================================================
// Voice recognition
// ============================================================================

// StartVoiceRecognition starts a voice recognition session on device, or on
// the active device when device is zero. If a headset is waiting for the
// platform to confirm its own request, that request is completed instead.
func (s *Service) StartVoiceRecognition(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.InfoPrintf("startVoiceRecognition: device=%v", device)
	if s.vrStarted {
		ok := s.stopVoiceRecognitionLocked(s.active)
		s.log.WarnPrintf("startVoiceRecognition: voice recognition is still active, stopped it (%t)", ok)
		s.vrStarted = false
		return false
	}
	if !s.isAudioModeIdleLocked() {
		s.log.WarnPrintf("startVoiceRecognition: audio mode not idle, active device is %v", s.active)
		return false
	}
	if s.isAudioOnLocked() {
		ok := s.disconnectAllAudioLocked()
		s.log.WarnPrintf("startVoiceRecognition: audio is still active, disconnected it (%t)", ok)
		return false
	}
	if device.IsZero() {
		device = s.active
	}
	pendingByHeadset := false
	if s.vrRequest != nil {
		if *s.vrRequest != device {
			s.log.WarnPrintf("startVoiceRecognition: device %v is not the same as requesting device %v, using requesting device", device, *s.vrRequest)
			device = *s.vrRequest
		}
		s.loop.cancel(s.timer(timerVoiceRecognition))
		s.vrRequest = nil
		s.releaseWakeLockLocked()
		pendingByHeadset = true
	}
	if device != s.active && !s.setActiveDeviceLocked(device) {
		s.log.WarnPrintf("startVoiceRecognition: failed to set %v as active", device)
		return false
	}
	sm := s.machines[device]
	if sm == nil {
		s.log.ErrorPrintf("startVoiceRecognition: %v is not connected", device)
		return false
	}
	if cs := sm.ConnectionState(); cs != hfp.StateConnected && cs != hfp.StateConnecting {
		s.log.ErrorPrintf("startVoiceRecognition: %v is %v", device, cs)
		return false
	}
	s.vrStarted = true
	if pendingByHeadset {
		sm.sendArg(msgVoiceRecognitionResult, 1)
	} else {
		sm.send(msgVoiceRecognitionStart)
	}
	sm.send(msgConnectAudio)
	return true
}

// StopVoiceRecognition ends the voice recognition session on device, which
// must be the active device.
func (s *Service) StopVoiceRecognition(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopVoiceRecognitionLocked(device)
}

func (s *Service) stopVoiceRecognitionLocked(device hfp.Address) bool {
	s.log.InfoPrintf("stopVoiceRecognition: device=%v", device)
	if device != s.active {
		s.log.WarnPrintf("stopVoiceRecognition: requested device %v is not active, active device is %v", device, s.active)
		return false
	}
	if !s.vrStarted {
		s.log.WarnPrintf("stopVoiceRecognition: voice recognition was not started")
		return false
	}
	sm := s.machines[device]
	if sm == nil {
		s.log.ErrorPrintf("stopVoiceRecognition: %v is not connected", device)
		return false
	}
	sm.send(msgVoiceRecognitionStop)
	s.vrStarted = false
	sm.send(msgDisconnectAudio)
	return true
}

// startVoiceRecognitionByHeadset handles AT+BVRA=1. The session starts when
// the platform calls StartVoiceRecognition; until then a timeout guards the
// request.
func (s *Service) startVoiceRecognitionByHeadset(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.InfoPrintf("startVoiceRecognitionByHeadset: device=%v", device)
	if s.vrStarted {
		ok := s.stopVoiceRecognitionLocked(s.active)
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: voice recognition is still active, stopped it (%t)", ok)
		s.vrStarted = false
	}
	if device.IsZero() {
		return false
	}
	if !s.isAudioModeIdleLocked() {
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: audio mode not idle")
		return false
	}
	if s.isAudioOnLocked() {
		ok := s.disconnectAllAudioLocked()
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: audio is still active, disconnected it (%t)", ok)
		return false
	}
	if s.vrRequest != nil {
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: a request from %v is already pending", *s.vrRequest)
		return false
	}
	if !s.setActiveDeviceLocked(device) {
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: failed to set %v as active", device)
		return false
	}
	if !s.plat.ExitIdle() {
		s.log.ErrorPrintf("startVoiceRecognitionByHeadset: failed to exit idle mode")
		return false
	}
	if !s.plat.ActivateVoiceRecognition() {
		s.log.WarnPrintf("startVoiceRecognitionByHeadset: failed to activate voice recognition")
		return false
	}
	dev := device
	s.vrRequest = &dev
	s.loop.schedule(s.timer(timerVoiceRecognition), s.cfg.VoiceRecognitionTimeout, func() {
		s.onVoiceRecognitionTimeout(dev)
	})
	if !s.wakeLockHeld {
		s.plat.AcquireWakeLock()
		s.wakeLockHeld = true
	}
	return true
}

func (s *Service) onVoiceRecognitionTimeout(device hfp.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WarnPrintf("voice recognition start timed out for %v", device)
	s.releaseWakeLockLocked()
	s.vrRequest = nil
	if sm := s.machines[device]; sm != nil {
		sm.sendArg(msgVoiceRecognitionResult, 0)
	}
}

// stopVoiceRecognitionByHeadset handles AT+BVRA=0.
func (s *Service) stopVoiceRecognitionByHeadset(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopVoiceRecognitionByHeadsetLocked(device)
}

func (s *Service) stopVoiceRecognitionByHeadsetLocked(device hfp.Address) bool {
	s.log.InfoPrintf("stopVoiceRecognitionByHeadset: device=%v", device)
	if device != s.active {
		s.log.WarnPrintf("stopVoiceRecognitionByHeadset: %v is not active, active device is %v", device, s.active)
		return false
	}
	if !s.vrStarted && s.vrRequest == nil {
		s.log.WarnPrintf("stopVoiceRecognitionByHeadset: voice recognition not started")
		return false
	}
	if s.vrRequest != nil {
		s.releaseWakeLockLocked()
		s.loop.cancel(s.timer(timerVoiceRecognition))
		s.vrRequest = nil
	}
	if s.vrStarted {
		if !s.disconnectAllAudioLocked() {
			s.log.WarnPrintf("stopVoiceRecognitionByHeadset: failed to disconnect audio from %v", device)
		}
		s.vrStarted = false
	}
	if !s.plat.DeactivateVoiceRecognition() {
		s.log.WarnPrintf("stopVoiceRecognitionByHeadset: failed to deactivate voice recognition")
		return false
	}
	return true
}

func (s *Service) releaseWakeLockLocked() {
	if s.wakeLockHeld {
		s.plat.ReleaseWakeLock()
		s.wakeLockHeld = false
	}
}

// ============================================================================
// Virtual call
// ============================================================================

// StartScoUsingVirtualVoiceCall opens audio to the active device by faking
// an outgoing call that becomes active.
func (s *Service) StartScoUsingVirtualVoiceCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.InfoPrintf("startScoUsingVirtualVoiceCall")
	if s.vrStarted {
		ok := s.stopVoiceRecognitionLocked(s.active)
		s.log.WarnPrintf("startScoUsingVirtualVoiceCall: voice recognition is still active, stopped it (%t)", ok)
	}
	if !s.isAudioModeIdleLocked() {
		s.log.WarnPrintf("startScoUsingVirtualVoiceCall: audio mode not idle, active device is %v", s.active)
		return false
	}
	if s.isAudioOnLocked() {
		ok := s.disconnectAllAudioLocked()
		s.log.WarnPrintf("startScoUsingVirtualVoiceCall: audio is still active, disconnected it (%t)", ok)
		return false
	}
	if s.active.IsZero() {
		s.log.WarnPrintf("startScoUsingVirtualVoiceCall: no active device")
		return false
	}
	s.virtualCall = true
	s.phoneStateChangedLocked(hfp.CallStateInfo{CallState: hfp.CallDialing}, true)
	s.phoneStateChangedLocked(hfp.CallStateInfo{CallState: hfp.CallAlerting}, true)
	s.phoneStateChangedLocked(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle}, true)
	return true
}

// StopScoUsingVirtualVoiceCall ends the fake call.
func (s *Service) StopScoUsingVirtualVoiceCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopScoUsingVirtualVoiceCallLocked()
}

func (s *Service) stopScoUsingVirtualVoiceCallLocked() bool {
	s.log.InfoPrintf("stopScoUsingVirtualVoiceCall")
	if !s.virtualCall {
		s.log.WarnPrintf("stopScoUsingVirtualVoiceCall: virtual call not started")
		return false
	}
	s.virtualCall = false
	s.phoneStateChangedLocked(hfp.CallStateInfo{CallState: hfp.CallIdle}, true)
	return true
}

// IsVirtualCallStarted reports whether a virtual call holds the audio path.
func (s *Service) IsVirtualCallStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.virtualCall
}

// ============================================================================
// Calls requested by headsets
// ============================================================================

// answerCall answers the ringing call and routes it to device.
func (s *Service) answerCall(device hfp.Address) {
	s.SetActiveDevice(device)
	if !s.tel.AnswerCall(device) {
		s.log.WarnPrintf("answerCall: telephony failed for %v", device)
	}
}

// hangupCall ends the virtual call if there is one, the real call otherwise.
func (s *Service) hangupCall(device hfp.Address) {
	if s.IsVirtualCallStarted() {
		s.StopScoUsingVirtualVoiceCall()
		return
	}
	if !s.tel.HangupCall(device) {
		s.log.WarnPrintf("hangupCall: telephony failed for %v", device)
	}
}

// dialOutgoingCall dials number for device. Only one headset initiated dial
// may be pending; it completes when telephony reports a dialing call or the
// dial timeout fires.
func (s *Service) dialOutgoingCall(device hfp.Address, number string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialOut != nil {
		s.log.ErrorPrintf("dialOutgoingCall: already dialling for %v", *s.dialOut)
		return false
	}
	if s.virtualCall && !s.stopScoUsingVirtualVoiceCallLocked() {
		s.log.ErrorPrintf("dialOutgoingCall: failed to stop current virtual call")
		return false
	}
	if !s.setActiveDeviceLocked(device) {
		s.log.ErrorPrintf("dialOutgoingCall: failed to set %v as active", device)
		return false
	}
	if !s.tel.Dial(number) {
		s.log.ErrorPrintf("dialOutgoingCall: telephony failed to dial %s", number)
		return false
	}
	dev := device
	s.dialOut = &dev
	s.loop.schedule(s.timer(timerDialingOut), s.cfg.DialingOutTimeout, func() {
		s.onDialingOutTimeout(dev)
	})
	return true
}

func (s *Service) onDialingOutTimeout(device hfp.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WarnPrintf("dialing out timed out for %v", device)
	s.dialOut = nil
	if sm := s.machines[device]; sm != nil {
		sm.sendArg(msgDialingOutResult, 0)
	}
}

// hasDeviceInitiatedDialingOut reports whether a headset initiated dial is
// pending.
func (s *Service) hasDeviceInitiatedDialingOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialOut != nil
}
