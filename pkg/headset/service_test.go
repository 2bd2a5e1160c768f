package headset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

var addrC = hfp.MustParseAddress("00:00:00:00:00:0C")

// ============================================================================
// Lifecycle
// ============================================================================

func TestService_StartStop(t *testing.T) {
	h := newHarness(t, nil)
	h.expectNative("Init 2 true")
	if err := h.svc.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v; want ErrAlreadyStarted", err)
	}

	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	if err := h.svc.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	h.expectNative("DisconnectHfp " + addrA.String())
	h.expectNative("Cleanup")
	h.expectRec("Active " + hfp.Address{}.String())
	if got := h.svc.ConnectedDevices(); len(got) != 0 {
		t.Errorf("ConnectedDevices() = %v after Stop", got)
	}
	if err := h.svc.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop() = %v; want ErrNotStarted", err)
	}
	if err := h.svc.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start() after Stop = %v; want ErrAlreadyStarted", err)
	}
}

func TestService_StopReleasesPendingVoiceRecognition(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	h.expectRec("AcquireWakeLock")

	h.svc.Stop()
	h.expectRec("ReleaseWakeLock")
}

func TestService_StopWithoutStart(t *testing.T) {
	svc, err := New(DefaultConfig(), Options{Native: newMockNative(&recorder{}), Adapter: newMockAdapter()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() = %v; want ErrNotStarted", err)
	}
}

// ============================================================================
// Connection admission
// ============================================================================

func TestService_ConnectRejections(t *testing.T) {
	t.Run("priority off", func(t *testing.T) {
		h := newHarness(t, nil)
		h.svc.SetPriority(context.Background(), addrA, hfp.PriorityOff)
		if h.svc.Connect(addrA) {
			t.Error("Connect() = true")
		}
		h.flush()
		h.expectNoNative("ConnectHfp " + addrA.String())
	})
	t.Run("no headset profile", func(t *testing.T) {
		h := newHarness(t, nil)
		h.adapter.setUUIDs(addrA, []string{hfp.UUIDHeadsetAG})
		if h.svc.Connect(addrA) {
			t.Error("Connect() = true")
		}
	})
	t.Run("headset profile only", func(t *testing.T) {
		h := newHarness(t, nil)
		h.adapter.setUUIDs(addrA, []string{hfp.UUIDHeadset})
		if !h.svc.Connect(addrA) {
			t.Error("Connect() = false")
		}
	})
	t.Run("already connecting", func(t *testing.T) {
		h := newHarness(t, nil)
		h.svc.Connect(addrA)
		h.flush()
		if h.svc.Connect(addrA) {
			t.Error("Connect() = true")
		}
	})
	t.Run("already connected", func(t *testing.T) {
		h := newHarness(t, nil)
		h.connect(addrA)
		if h.svc.Connect(addrA) {
			t.Error("Connect() = true")
		}
	})
	t.Run("limit reached", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.MaxConnections = 2 })
		h.connect(addrA)
		h.connect(addrB)
		if h.svc.Connect(addrC) {
			t.Error("Connect() = true")
		}
		h.flush()
		h.expectNoNative("DisconnectHfp " + addrA.String())
		h.expectNoNative("DisconnectHfp " + addrB.String())
	})
}

func TestService_SingleSlotHandover(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.nativeRec.reset()
	h.rec.reset()

	if !h.svc.Connect(addrB) {
		t.Fatal("Connect(B) = false")
	}
	h.flush()

	disc := h.nativeRec.index("DisconnectHfp " + addrA.String())
	conn := h.nativeRec.index("ConnectHfp " + addrB.String())
	if disc < 0 || conn < 0 || disc > conn {
		t.Errorf("native calls %q: want DisconnectHfp(A) before ConnectHfp(B)", h.nativeRec.all())
	}
	cleared := h.rec.index("Active " + hfp.Address{}.String())
	connecting := h.rec.index(connEntry(addrB, hfp.StateDisconnected, hfp.StateConnecting))
	if cleared < 0 || connecting < 0 || cleared > connecting {
		t.Errorf("events %q: want active device cleared before B connects", h.rec.all())
	}
	h.expectState(addrA, StateDisconnecting)
	h.expectState(addrB, StateConnecting)
}

func TestService_DevicesMatchingConnectionStates(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnections = 3 })
	h.connect(addrB)
	time.Sleep(time.Millisecond)
	h.connect(addrA)
	h.svc.Connect(addrC)
	h.flush()

	got := h.svc.DevicesMatchingConnectionStates(hfp.StateConnected)
	if want := []hfp.Address{addrB, addrA}; !slices.Equal(got, want) {
		t.Errorf("connected = %v; want %v", got, want)
	}
	got = h.svc.DevicesMatchingConnectionStates(hfp.StateConnecting, hfp.StateConnected)
	if want := []hfp.Address{addrB, addrA, addrC}; !slices.Equal(got, want) {
		t.Errorf("connecting or connected = %v; want %v", got, want)
	}
	if got := h.svc.ConnectionState(addrC); got != hfp.StateConnecting {
		t.Errorf("ConnectionState(C) = %v", got)
	}
	if got := h.svc.ConnectionState(hfp.MustParseAddress("00:00:00:00:00:FF")); got != hfp.StateDisconnected {
		t.Errorf("ConnectionState(unknown) = %v", got)
	}
}

func TestService_InbandRingingFollowsConnections(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnections = 2 })
	h.connect(addrA)
	h.expectNoNative(fmt.Sprintf("SendBsir %v false", addrA))
	if !h.svc.IsInbandRingingEnabled() {
		t.Fatal("in-band ringing disabled with one device")
	}

	h.connect(addrB)
	h.expectNative(fmt.Sprintf("SendBsir %v false", addrA))
	h.expectNative(fmt.Sprintf("SendBsir %v false", addrB))
	if h.svc.IsInbandRingingEnabled() {
		t.Error("in-band ringing enabled with two devices")
	}

	h.svc.Disconnect(addrB)
	h.flush()
	h.connEvent(addrB, hfp.StackDisconnected)
	h.expectNative(fmt.Sprintf("SendBsir %v true", addrA))
	h.expectNoNative(fmt.Sprintf("SendBsir %v true", addrB))
	if !h.svc.IsInbandRingingEnabled() {
		t.Error("in-band ringing still disabled with one device")
	}
}

func TestService_InbandRingingUnsupported(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxConnections = 2
		c.InbandRingingSupported = false
	})
	h.expectNative("Init 3 false")
	h.connect(addrA)
	h.connect(addrB)
	if n := h.nativeRec.countPrefix("SendBsir"); n != 0 {
		t.Errorf("SendBsir called %d times", n)
	}
	if h.svc.IsInbandRingingEnabled() {
		t.Error("IsInbandRingingEnabled() = true")
	}
}

// ============================================================================
// Active device
// ============================================================================

func TestService_SetActiveDevice(t *testing.T) {
	h := newHarness(t, nil)
	if h.svc.SetActiveDevice(addrA) {
		t.Error("SetActiveDevice(unknown) = true")
	}

	h.connect(addrA)
	h.native.setFail("SetActiveDevice", true)
	if h.svc.SetActiveDevice(addrA) {
		t.Error("SetActiveDevice() = true with native failure")
	}
	if got := h.svc.ActiveDevice(); !got.IsZero() {
		t.Errorf("ActiveDevice() = %v", got)
	}

	h.native.setFail("SetActiveDevice", false)
	if !h.svc.SetActiveDevice(addrA) {
		t.Fatal("SetActiveDevice() = false")
	}
	h.expectRec("Active " + addrA.String())
	if !h.svc.SetActiveDevice(addrA) {
		t.Error("SetActiveDevice(same) = false")
	}
	if n := h.rec.count("Active " + addrA.String()); n != 1 {
		t.Errorf("Active broadcast %d times; want 1", n)
	}

	if !h.svc.SetActiveDevice(hfp.Address{}) {
		t.Error("SetActiveDevice(zero) = false")
	}
	if got := h.svc.ActiveDevice(); !got.IsZero() {
		t.Errorf("ActiveDevice() = %v after clear", got)
	}
}

func TestService_SetActiveDeviceConnectsCallAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.PhoneStateChanged(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle})
	h.flush()

	if !h.svc.SetActiveDevice(addrA) {
		t.Fatal("SetActiveDevice() = false")
	}
	h.flush()
	h.expectNative("ConnectAudio " + addrA.String())
	h.expectState(addrA, StateAudioConnecting)
}

func TestService_SetActiveDeviceRollback(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetAudioRouteAllowed(false)
	h.expectNative("SetScoAllowed false")
	h.svc.PhoneStateChanged(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle})
	h.flush()

	if h.svc.SetActiveDevice(addrA) {
		t.Fatal("SetActiveDevice() = true although audio cannot be routed")
	}
	if got := h.svc.ActiveDevice(); !got.IsZero() {
		t.Errorf("ActiveDevice() = %v; want rolled back", got)
	}
	set := h.nativeRec.index("SetActiveDevice " + addrA.String())
	reset := h.nativeRec.index("SetActiveDevice " + hfp.Address{}.String())
	if set < 0 || reset < set {
		t.Errorf("native calls %q: want A then zero", h.nativeRec.all())
	}
	events := h.rec.all()
	a := slices.Index(events, "Active "+addrA.String())
	zero := slices.Index(events, "Active "+hfp.Address{}.String())
	if a < 0 || zero < a {
		t.Errorf("events %q: want A then zero", events)
	}
}

func TestService_SingleActiveAudio(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnections = 2 })
	h.connect(addrA)
	h.connect(addrB)
	h.audioOn(addrA)

	if !h.svc.SetActiveDevice(addrB) {
		t.Fatal("SetActiveDevice(B) = false")
	}
	h.flush()
	h.expectNative("DisconnectAudio " + addrA.String())
	h.expectState(addrA, StateAudioDisconnecting)
	h.expectRec("Active " + addrB.String())

	// A still holds the SCO link.
	if h.svc.ConnectAudio() {
		t.Error("ConnectAudio() = true while another device has audio")
	}

	h.audioEvent(addrA, hfp.StackAudioDisconnected)
	h.expectState(addrA, StateConnected)
	h.expectNoNative("ConnectAudio " + addrB.String())

	if !h.svc.ConnectAudio() {
		t.Fatal("ConnectAudio() = false")
	}
	h.flush()
	h.expectState(addrB, StateAudioConnecting)
	h.audioEvent(addrB, hfp.StackAudioConnected)
	h.expectState(addrB, StateAudioOn)
	if got := h.svc.AudioState(addrA); got != hfp.AudioDisconnected {
		t.Errorf("AudioState(A) = %v", got)
	}
}

func TestService_ClearActiveDeviceDisconnectsAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.audioOn(addrA)

	h.svc.SetActiveDevice(hfp.Address{})
	h.flush()
	h.expectState(addrA, StateAudioDisconnecting)
	h.expectRec("Active " + hfp.Address{}.String())
}

func TestService_ActiveDeviceClearedOnDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.connEvent(addrA, hfp.StackDisconnected)
	if got := h.svc.ActiveDevice(); !got.IsZero() {
		t.Errorf("ActiveDevice() = %v after disconnect", got)
	}
}

func TestService_ConnectAudioChecks(t *testing.T) {
	h := newHarness(t, nil)
	if h.svc.ConnectAudio() {
		t.Error("ConnectAudio() = true without active device")
	}
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	if h.svc.ConnectAudio() {
		t.Error("ConnectAudio() = true without a reason for audio")
	}
	h.svc.SetForceScoAudio(true)
	if !h.svc.ConnectAudio() {
		t.Error("ConnectAudio() = false with forced SCO")
	}
	h.flush()
	// Audio already on its way.
	if !h.svc.ConnectAudio() {
		t.Error("ConnectAudio() = false while connecting")
	}
	h.flush()
	if n := h.nativeRec.count("ConnectAudio " + addrA.String()); n != 1 {
		t.Errorf("ConnectAudio called %d times; want 1", n)
	}
	if !h.svc.DisconnectAudio() {
		t.Error("DisconnectAudio() = false with audio connecting")
	}
}

func TestService_IsScoAcceptable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Service)
		dev   hfp.Address
		want  bool
	}{
		{"not active", func(*Service) {}, addrB, false},
		{"idle", func(*Service) {}, addrA, false},
		{"forced", func(s *Service) { s.forceSco = true }, addrA, true},
		{"forced overrides route", func(s *Service) {
			s.forceSco = true
			s.audioRouteAllowed = false
		}, addrA, true},
		{"forced needs active", func(s *Service) { s.forceSco = true }, addrB, false},
		{"route not allowed in call", func(s *Service) {
			s.audioRouteAllowed = false
			s.phone.UpdateCallState(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle})
		}, addrA, false},
		{"voice recognition", func(s *Service) { s.vrStarted = true }, addrA, true},
		{"virtual call", func(s *Service) { s.virtualCall = true }, addrA, true},
		{"in call", func(s *Service) {
			s.phone.UpdateCallState(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle})
		}, addrA, true},
		{"dialing", func(s *Service) {
			s.phone.UpdateCallState(hfp.CallStateInfo{CallState: hfp.CallDialing})
		}, addrA, true},
		{"ringing in-band", func(s *Service) {
			s.phone.UpdateCallState(hfp.CallStateInfo{CallState: hfp.CallIncoming})
		}, addrA, true},
		{"ringing in-band disabled", func(s *Service) {
			s.inbandRuntimeDisable = true
			s.phone.UpdateCallState(hfp.CallStateInfo{CallState: hfp.CallIncoming})
		}, addrA, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.connect(addrA)
			h.svc.SetActiveDevice(addrA)
			h.withLock(tt.setup)
			if got := h.svc.isScoAcceptable(tt.dev); got != tt.want {
				t.Errorf("isScoAcceptable(%v) = %t; want %t", tt.dev, got, tt.want)
			}
			// Keep Stop from tearing down state the test invented.
			h.withLock(func(s *Service) {
				s.vrStarted = false
				s.virtualCall = false
			})
		})
	}
	t.Run("zero address", func(t *testing.T) {
		h := newHarness(t, nil)
		h.svc.SetForceScoAudio(true)
		if h.svc.isScoAcceptable(hfp.Address{}) {
			t.Error("isScoAcceptable(zero) = true")
		}
	})
}

// ============================================================================
// Voice recognition
// ============================================================================

func TestService_StartVoiceRecognition(t *testing.T) {
	h := newHarness(t, nil)
	if h.svc.StartVoiceRecognition(hfp.Address{}) {
		t.Error("StartVoiceRecognition() = true without any device")
	}

	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	if !h.svc.StartVoiceRecognition(hfp.Address{}) {
		t.Fatal("StartVoiceRecognition() = false")
	}
	h.flush()
	vr := h.nativeRec.index("StartVoiceRecognition " + addrA.String())
	audio := h.nativeRec.index("ConnectAudio " + addrA.String())
	if vr < 0 || audio < 0 || vr > audio {
		t.Errorf("native calls %q: want StartVoiceRecognition then ConnectAudio", h.nativeRec.all())
	}
	h.expectState(addrA, StateAudioConnecting)
	h.audioEvent(addrA, hfp.StackAudioConnected)
	h.expectState(addrA, StateAudioOn)
	if !h.svc.Snapshot().VoiceRecognition {
		t.Error("snapshot does not show voice recognition")
	}

	if !h.svc.StopVoiceRecognition(addrA) {
		t.Fatal("StopVoiceRecognition() = false")
	}
	h.flush()
	h.expectNative("StopVoiceRecognition " + addrA.String())
	h.expectState(addrA, StateAudioDisconnecting)
	if h.svc.StopVoiceRecognition(addrA) {
		t.Error("second StopVoiceRecognition() = true")
	}
}

func TestService_StartVoiceRecognitionSwitchesActive(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxConnections = 2 })
	h.connect(addrA)
	h.connect(addrB)
	h.svc.SetActiveDevice(addrA)

	if !h.svc.StartVoiceRecognition(addrB) {
		t.Fatal("StartVoiceRecognition(B) = false")
	}
	h.flush()
	if got := h.svc.ActiveDevice(); got != addrB {
		t.Errorf("ActiveDevice() = %v; want %v", got, addrB)
	}
	h.expectNative("StartVoiceRecognition " + addrB.String())
	if h.svc.StopVoiceRecognition(addrA) {
		t.Error("StopVoiceRecognition(inactive) = true")
	}
}

func TestService_StartVoiceRecognitionRefused(t *testing.T) {
	t.Run("in call", func(t *testing.T) {
		h := newHarness(t, nil)
		h.connect(addrA)
		h.svc.SetActiveDevice(addrA)
		h.svc.PhoneStateChanged(hfp.CallStateInfo{NumActive: 1, CallState: hfp.CallIdle})
		h.flush()
		if h.svc.StartVoiceRecognition(addrA) {
			t.Error("StartVoiceRecognition() = true during a call")
		}
	})
	t.Run("audio on", func(t *testing.T) {
		h := newHarness(t, nil)
		h.connect(addrA)
		h.audioOn(addrA)
		h.nativeRec.reset()
		if h.svc.StartVoiceRecognition(addrA) {
			t.Error("StartVoiceRecognition() = true with audio up")
		}
		h.flush()
		h.expectNative("DisconnectAudio " + addrA.String())
		h.expectNoNative("StartVoiceRecognition " + addrA.String())
	})
	t.Run("already started", func(t *testing.T) {
		h := newHarness(t, nil)
		h.connect(addrA)
		h.svc.SetActiveDevice(addrA)
		h.svc.StartVoiceRecognition(addrA)
		h.flush()
		if h.svc.StartVoiceRecognition(addrA) {
			t.Error("second StartVoiceRecognition() = true")
		}
		h.flush()
		h.expectNative("StopVoiceRecognition " + addrA.String())
	})
}

func TestService_VoiceRecognitionByHeadsetTimeout(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.VoiceRecognitionTimeout = 30 * time.Millisecond })
	h.connect(addrA)

	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	h.expectRec("ActivateVoiceRecognition")
	h.expectRec("AcquireWakeLock")
	h.expectNoNative(codeEntry(addrA, hfp.ATResponseError))
	if got := h.svc.ActiveDevice(); got != addrA {
		t.Errorf("ActiveDevice() = %v; want requesting device", got)
	}

	waitFor(t, time.Second, "voice recognition timeout", func() bool {
		return h.nativeRec.count(codeEntry(addrA, hfp.ATResponseError)) == 1
	})
	h.expectRec("ReleaseWakeLock")

	h.withLock(func(s *Service) {
		if s.vrRequest != nil {
			t.Error("request still pending after timeout")
		}
	})
}

func TestService_VoiceRecognitionByHeadsetWithoutPlatform(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.withLock(func(s *Service) { s.plat = nopPlatform{} })

	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	h.expectNative(codeEntry(addrA, hfp.ATResponseError))
	if n := h.rec.count("AcquireWakeLock"); n != 0 {
		t.Errorf("AcquireWakeLock called %d times", n)
	}
	h.withLock(func(s *Service) {
		if s.vrRequest != nil {
			t.Error("request pending without a platform")
		}
	})
}

func TestService_VoiceRecognitionByHeadsetConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)

	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	if !h.svc.StartVoiceRecognition(hfp.Address{}) {
		t.Fatal("StartVoiceRecognition() = false")
	}
	h.flush()
	h.expectNative(codeEntry(addrA, hfp.ATResponseOK))
	h.expectNoNative("StartVoiceRecognition " + addrA.String())
	h.expectNative("ConnectAudio " + addrA.String())
	h.expectRec("ReleaseWakeLock")
	if h.svc.loop.pending(h.svc.timer(timerVoiceRecognition)) {
		t.Error("voice recognition timer still armed")
	}

	// Audio is acceptable for the session.
	h.audioEvent(addrA, hfp.StackAudioConnected)
	h.expectState(addrA, StateAudioOn)

	// Headset stops it.
	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStopped)})
	h.expectRec("DeactivateVoiceRecognition")
	if n := h.nativeRec.count(codeEntry(addrA, hfp.ATResponseOK)); n != 2 {
		t.Errorf("OK sent %d times; want 2", n)
	}
	h.expectState(addrA, StateAudioDisconnecting)
}

func TestService_VoiceRecognitionByHeadsetRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.plat.mu.Lock()
	h.plat.activate = false
	h.plat.mu.Unlock()
	h.connect(addrA)

	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	h.expectNative(codeEntry(addrA, hfp.ATResponseError))
	if n := h.rec.count("AcquireWakeLock"); n != 0 {
		t.Error("wake lock taken for a refused request")
	}
}

func TestService_VoiceRecognitionByHeadsetCanceled(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)

	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStarted)})
	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStopped)})
	h.expectRec("ReleaseWakeLock")
	h.expectNative(codeEntry(addrA, hfp.ATResponseOK))
	if h.svc.loop.pending(h.svc.timer(timerVoiceRecognition)) {
		t.Error("voice recognition timer still armed")
	}

	// Nothing left to stop.
	h.event(hfp.StackEvent{Type: hfp.EventVRStateChanged, Device: addrA, Int1: int(hfp.VRStopped)})
	h.expectNative(codeEntry(addrA, hfp.ATResponseError))
}

func TestService_VoiceRecognitionEndsOnCall(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.svc.StartVoiceRecognition(addrA)
	h.flush()

	h.svc.PhoneStateChanged(hfp.CallStateInfo{CallState: hfp.CallIncoming})
	h.flush()
	h.expectNative("StopVoiceRecognition " + addrA.String())
	if h.svc.Snapshot().VoiceRecognition {
		t.Error("voice recognition still on after incoming call")
	}
}

// ============================================================================
// Virtual call
// ============================================================================

func TestService_VirtualCall(t *testing.T) {
	h := newHarness(t, nil)
	if h.svc.StartScoUsingVirtualVoiceCall() {
		t.Error("StartScoUsingVirtualVoiceCall() = true without active device")
	}

	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	if !h.svc.StartScoUsingVirtualVoiceCall() {
		t.Fatal("StartScoUsingVirtualVoiceCall() = false")
	}
	h.flush()
	if !h.svc.IsVirtualCallStarted() {
		t.Fatal("IsVirtualCallStarted() = false")
	}
	var got []string
	for _, e := range h.nativeRec.all() {
		if strings.HasPrefix(e, "PhoneStateChange") {
			got = append(got, e)
		}
	}
	want := []string{
		fmt.Sprintf("PhoneStateChange %v 0 0 %v", addrA, hfp.CallDialing),
		fmt.Sprintf("PhoneStateChange %v 0 0 %v", addrA, hfp.CallAlerting),
		fmt.Sprintf("PhoneStateChange %v 1 0 %v", addrA, hfp.CallIdle),
	}
	if !slices.Equal(got, want) {
		t.Errorf("phone state pushes = %q; want %q", got, want)
	}

	// The fake call looks like a real one to the device.
	h.event(hfp.StackEvent{Type: hfp.EventATCind, Device: addrA})
	h.expectNative(fmt.Sprintf("CindResponse %v 0 1 0 %v 0 0 0", addrA, hfp.CallIdle))

	h.tel.mu.Lock()
	h.tel.subscriber = "+15551234"
	h.tel.mu.Unlock()
	h.event(hfp.StackEvent{Type: hfp.EventATClcc, Device: addrA})
	h.expectNative(fmt.Sprintf("ClccResponse %v 1 +15551234", addrA))
	h.expectNative(fmt.Sprintf("ClccResponse %v 0 ", addrA))
	if n := h.rec.count("ListCurrentCalls"); n != 0 {
		t.Error("telephony asked for calls during a virtual call")
	}

	h.audioEvent(addrA, hfp.StackAudioConnected)
	h.expectState(addrA, StateAudioOn)
	if h.svc.StartScoUsingVirtualVoiceCall() {
		t.Error("second StartScoUsingVirtualVoiceCall() = true")
	}

	// Hanging up from the headset ends the virtual call, not a real one.
	h.event(hfp.StackEvent{Type: hfp.EventHangupCall, Device: addrA})
	if h.svc.IsVirtualCallStarted() {
		t.Error("virtual call still started after hangup")
	}
	if n := h.rec.count("HangupCall " + addrA.String()); n != 0 {
		t.Error("telephony hangup called for a virtual call")
	}
	if h.svc.StopScoUsingVirtualVoiceCall() {
		t.Error("StopScoUsingVirtualVoiceCall() = true when not started")
	}
}

func TestService_VirtualCallEndsWithAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.svc.StartScoUsingVirtualVoiceCall()
	h.flush()
	h.audioEvent(addrA, hfp.StackAudioConnected)
	h.audioEvent(addrA, hfp.StackAudioDisconnected)
	if h.svc.IsVirtualCallStarted() {
		t.Error("virtual call survived audio disconnect")
	}
}

func TestService_VirtualCallEndsOnRealCall(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.svc.StartScoUsingVirtualVoiceCall()
	h.flush()

	h.svc.PhoneStateChanged(hfp.CallStateInfo{CallState: hfp.CallIncoming})
	h.flush()
	if h.svc.IsVirtualCallStarted() {
		t.Error("virtual call survived an incoming call")
	}
	if !h.svc.PhoneState().IsRinging() {
		t.Error("tracker does not show the incoming call")
	}
}

// ============================================================================
// Misc
// ============================================================================

func TestService_BatteryChanged(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		level, scale int
		want         int
	}{
		{50, 100, 3},
		{100, 100, 5},
		{0, 100, 0},
		{19, 100, 1},
		{1, 3, 2},
		{-1, 100, 2},
		{5, 0, 2},
	}
	for _, tt := range tests {
		h.svc.BatteryChanged(tt.level, tt.scale)
		if got := h.svc.PhoneState().DeviceState().BatteryCharge; got != tt.want {
			t.Errorf("BatteryChanged(%d, %d): battery = %d; want %d", tt.level, tt.scale, got, tt.want)
		}
	}
}

func TestService_SendVendorSpecificResultCode(t *testing.T) {
	h := newHarness(t, nil)
	if h.svc.SendVendorSpecificResultCode(addrA, atcmd.VendorAndroid, "x") {
		t.Error("SendVendorSpecificResultCode(unknown) = true")
	}
	h.svc.Connect(addrA)
	h.flush()
	if h.svc.SendVendorSpecificResultCode(addrA, atcmd.VendorAndroid, "x") {
		t.Error("SendVendorSpecificResultCode(connecting) = true")
	}
	h.connEvent(addrA, hfp.StackSLCConnected)
	if h.svc.SendVendorSpecificResultCode(addrA, "+XAPL", "x") {
		t.Error("SendVendorSpecificResultCode(+XAPL) = true")
	}
	if !h.svc.SendVendorSpecificResultCode(addrA, atcmd.VendorAndroid, "hello") {
		t.Fatal("SendVendorSpecificResultCode() = false")
	}
	h.flush()
	h.expectNative(fmt.Sprintf("AtResponseString %v +ANDROID: hello", addrA))
}

func TestService_Priority(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if got := h.svc.Priority(addrA); got != hfp.PriorityUndefined {
		t.Errorf("Priority() = %v; want undefined", got)
	}
	if err := h.svc.SetPriority(ctx, addrA, hfp.PriorityAutoConnect); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if got := h.svc.Priority(addrA); got != hfp.PriorityAutoConnect {
		t.Errorf("Priority() = %v; want auto connect", got)
	}
	if err := h.svc.SetPriority(ctx, addrA, hfp.PriorityUndefined); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if got := h.svc.Priority(addrA); got != hfp.PriorityUndefined {
		t.Errorf("Priority() = %v after reset; want undefined", got)
	}
}

func TestService_Snapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(addrA)
	h.svc.SetActiveDevice(addrA)
	h.svc.SetPriority(context.Background(), addrA, hfp.PriorityOn)

	snap := h.svc.Snapshot()
	if snap.ActiveDevice != addrA || !snap.AudioRouteAllowed || !snap.InbandRinging {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Devices) != 1 {
		t.Fatalf("devices = %+v", snap.Devices)
	}
	d := snap.Devices[0]
	if d.Device != addrA || d.State != "Connected" || !d.Active || d.Priority != hfp.PriorityOn.String() {
		t.Errorf("device = %+v", d)
	}
	if d.Connection != hfp.StateConnected.String() || d.Audio != hfp.AudioDisconnected.String() {
		t.Errorf("device = %+v", d)
	}

	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"active_device":"00:00:00:00:00:0A"`) {
		t.Errorf("json = %s", b)
	}
}

func TestService_AudioRouteAllowed(t *testing.T) {
	h := newHarness(t, nil)
	if !h.svc.AudioRouteAllowed() {
		t.Error("AudioRouteAllowed() = false by default")
	}
	h.svc.SetAudioRouteAllowed(false)
	if h.svc.AudioRouteAllowed() {
		t.Error("AudioRouteAllowed() = true")
	}
	h.svc.SetAudioRouteAllowed(true)
	h.expectNative("SetScoAllowed true")
}
