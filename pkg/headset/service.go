package headset

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/hfpag/pkg/hfp"
	"github.com/haivivi/hfpag/pkg/phonestate"
	"github.com/haivivi/hfpag/pkg/priority"
)

// Service coordinates the state machines of every remote device. It owns
// the device table, the active device and the voice sessions (voice
// recognition, virtual call, headset initiated dial).
//
// State machines run on a single loop goroutine. Service methods may be
// called from any goroutine; they take the service lock and only post work
// to the loop, so they never wait for a state machine.
type Service struct {
	cfg       Config
	log       Logger
	native    Native
	tel       Telephony
	audio     AudioSystem
	plat      Platform
	adapter   Adapter
	phonebook Phonebook
	pub       Publisher
	prio      priority.Store
	phone     *phonestate.Tracker
	loop      *loop

	mu                   sync.Mutex
	started              bool
	stopped              bool
	machines             map[hfp.Address]*stateMachine
	active               hfp.Address
	forceSco             bool
	audioRouteAllowed    bool
	inbandRuntimeDisable bool
	vrStarted            bool
	virtualCall          bool
	wakeLockHeld         bool

	// vrRequest is set while a voice recognition start requested by a
	// headset waits for the platform.
	vrRequest *hfp.Address
	// dialOut is set from a headset initiated dial until the call shows up.
	dialOut *hfp.Address
}

// New creates a Service. Start must be called before any device can be
// connected.
func New(cfg Config, opts Options) (*Service, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if opts.Native == nil {
		return nil, errors.New("headset: Options.Native is required")
	}
	if opts.Adapter == nil {
		return nil, errors.New("headset: Options.Adapter is required")
	}
	s := &Service{
		cfg:               cfg,
		log:               cfg.Logger,
		native:            opts.Native,
		tel:               opts.Telephony,
		audio:             opts.Audio,
		plat:              opts.Platform,
		adapter:           opts.Adapter,
		phonebook:         opts.Phonebook,
		pub:               opts.Publisher,
		prio:              opts.Priority,
		loop:              newLoop(),
		machines:          make(map[hfp.Address]*stateMachine),
		audioRouteAllowed: true,
	}
	if s.tel == nil {
		s.tel = nopTelephony{}
	}
	if s.audio == nil {
		s.audio = nopAudio{}
	}
	if s.plat == nil {
		s.plat = nopPlatform{}
	}
	if s.phonebook == nil {
		s.phonebook = nopPhonebook{}
	}
	if s.pub == nil {
		s.pub = nopPublisher{}
	}
	if s.prio == nil {
		s.prio = priority.NewMemory()
	}
	s.phone = phonestate.New(opts.Subscriber, s.onDeviceStateChanged)
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// PhoneState returns the tracker telephony reports indicator changes to.
func (s *Service) PhoneState() *phonestate.Tracker {
	return s.phone
}

// Start initializes the native layer and runs the loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return ErrAlreadyStarted
	}
	s.started = true
	s.native.Init(s.cfg.MaxConnections+1, s.cfg.InbandRingingSupported)
	s.loop.start()
	s.log.InfoPrintf("started, max connections %d", s.cfg.MaxConnections)
	return nil
}

// Stop disconnects every device, stops the loop and releases the native
// layer. A stopped Service cannot be restarted.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	s.setActiveDeviceLocked(hfp.Address{})
	for dev, sm := range s.machines {
		if sm.ConnectionState() != hfp.StateDisconnected {
			if !s.native.DisconnectHfp(dev) {
				s.log.WarnPrintf("stop: failed to disconnect %v", dev)
			}
		}
		sm.doQuit()
	}
	clear(s.machines)
	if s.vrRequest != nil {
		s.loop.cancel(s.timer(timerVoiceRecognition))
		s.vrRequest = nil
	}
	s.releaseWakeLockLocked()
	if s.dialOut != nil {
		s.loop.cancel(s.timer(timerDialingOut))
		s.dialOut = nil
	}
	s.mu.Unlock()

	s.loop.stop()
	s.native.Cleanup()
	s.log.InfoPrintf("stopped")
	return nil
}

func (s *Service) timer(kind int) timerKey {
	return timerKey{owner: s, kind: kind}
}

// ============================================================================
// Connection
// ============================================================================

// Connect starts a connection to device. It returns false when the device
// is not allowed to connect, does not offer a headset profile, is already
// connecting or connected, or the connection limit is reached.
func (s *Service) Connect(device hfp.Address) bool {
	if s.Priority(device) == hfp.PriorityOff {
		s.log.WarnPrintf("connect: %v has priority off", device)
		return false
	}
	if !hasHeadsetUUID(s.adapter.RemoteUUIDs(device)) {
		s.log.ErrorPrintf("connect: %v offers no headset profile", device)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.InfoPrintf("connect: device=%v", device)
	sm := s.machineLocked(device)
	switch sm.ConnectionState() {
	case hfp.StateConnected, hfp.StateConnecting:
		s.log.WarnPrintf("connect: %v is already %v", device, sm.ConnectionState())
		return false
	}
	existing := s.devicesMatchingLocked(hfp.StateConnecting, hfp.StateConnected)
	if len(existing) >= s.cfg.MaxConnections {
		if s.cfg.MaxConnections != 1 {
			s.log.ErrorPrintf("connect: max connection %d reached, rejecting %v", s.cfg.MaxConnections, device)
			return false
		}
		// A single slot is handed over: the old device's DISCONNECT is
		// queued ahead of the new CONNECT.
		for _, d := range existing {
			s.disconnectLocked(d)
		}
		s.setActiveDeviceLocked(hfp.Address{})
	}
	sm.send(msgConnect)
	return true
}

// Disconnect tears down the connection to device.
func (s *Service) Disconnect(device hfp.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.InfoPrintf("disconnect: device=%v", device)
	return s.disconnectLocked(device)
}

func (s *Service) disconnectLocked(device hfp.Address) bool {
	sm := s.machines[device]
	if sm == nil {
		s.log.WarnPrintf("disconnect: %v is not connected", device)
		return false
	}
	switch cs := sm.ConnectionState(); cs {
	case hfp.StateConnected, hfp.StateConnecting:
	default:
		s.log.WarnPrintf("disconnect: %v is %v", device, cs)
		return false
	}
	sm.send(msgDisconnect)
	return true
}

// machineLocked returns the state machine of device, creating it if needed.
func (s *Service) machineLocked(device hfp.Address) *stateMachine {
	if sm := s.machines[device]; sm != nil {
		return sm
	}
	sm := newStateMachine(device, s)
	s.machines[device] = sm
	return sm
}

// okToAcceptConnection decides whether an incoming connection may proceed.
func (s *Service) okToAcceptConnection(device hfp.Address) bool {
	if s.adapter.QuietMode() {
		s.log.WarnPrintf("rejecting %v: quiet mode", device)
		return false
	}
	p := s.Priority(device)
	bond := s.adapter.BondState(device)
	bonded := bond == hfp.BondBonded || bond == hfp.BondBonding
	allowed := (p == hfp.PriorityUndefined && bonded) ||
		((p == hfp.PriorityOn || p == hfp.PriorityAutoConnect) && bonded)
	if !allowed {
		s.log.WarnPrintf("rejecting %v: priority %v, bond state %v", device, p, bond)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.devicesMatchingLocked(hfp.StateConnecting, hfp.StateConnected)); n >= s.cfg.MaxConnections {
		s.log.WarnPrintf("rejecting %v: max connection %d reached", device, s.cfg.MaxConnections)
		return false
	}
	return true
}

func hasHeadsetUUID(uuids []string) bool {
	return slices.ContainsFunc(uuids, func(u string) bool {
		return slices.Contains(hfp.HeadsetUUIDs, u)
	})
}

// removeStateMachine forgets device. It runs on the loop.
func (s *Service) removeStateMachine(device hfp.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := s.machines[device]
	if sm == nil {
		return
	}
	s.log.InfoPrintf("removing state machine for %v", device)
	sm.doQuit()
	delete(s.machines, device)
}

// BondStateChanged removes the machine of a disconnected device that lost
// its pairing.
func (s *Service) BondStateChanged(device hfp.Address, state hfp.BondState) {
	if state != hfp.BondNone {
		return
	}
	s.loop.post(func() {
		s.mu.Lock()
		sm := s.machines[device]
		remove := sm != nil && sm.ConnectionState() == hfp.StateDisconnected
		s.mu.Unlock()
		if remove {
			s.removeStateMachine(device)
		}
	})
}

// ============================================================================
// Priority
// ============================================================================

// Priority returns the connection policy of device.
func (s *Service) Priority(device hfp.Address) hfp.Priority {
	return priority.Lookup(context.Background(), s.prio, device)
}

// SetPriority persists the connection policy of device.
func (s *Service) SetPriority(ctx context.Context, device hfp.Address, p hfp.Priority) error {
	if p == hfp.PriorityUndefined {
		return s.prio.Delete(ctx, device)
	}
	return s.prio.Set(ctx, device, p)
}

// ============================================================================
// Queries
// ============================================================================

// ConnectedDevices returns the devices with a service level connection.
func (s *Service) ConnectedDevices() []hfp.Address {
	return s.DevicesMatchingConnectionStates(hfp.StateConnected)
}

// DevicesMatchingConnectionStates returns the known devices in any of the
// given states, oldest connection attempt first.
func (s *Service) DevicesMatchingConnectionStates(states ...hfp.ConnectionState) []hfp.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devicesMatchingLocked(states...)
}

func (s *Service) devicesMatchingLocked(states ...hfp.ConnectionState) []hfp.Address {
	var sms []*stateMachine
	for _, sm := range s.machines {
		if slices.Contains(states, sm.ConnectionState()) {
			sms = append(sms, sm)
		}
	}
	slices.SortFunc(sms, func(a, b *stateMachine) int {
		if c := a.ConnectingTimestamp().Compare(b.ConnectingTimestamp()); c != 0 {
			return c
		}
		return cmp.Compare(a.device.String(), b.device.String())
	})
	out := make([]hfp.Address, len(sms))
	for i, sm := range sms {
		out[i] = sm.device
	}
	return out
}

func (s *Service) connectedMachinesLocked() []*stateMachine {
	var out []*stateMachine
	for _, sm := range s.machines {
		if sm.ConnectionState() == hfp.StateConnected {
			out = append(out, sm)
		}
	}
	return out
}

// clccMachinesLocked returns the machines that may have a CLCC query
// outstanding. Some stacks send AT+CLCC before the service level
// connection is reported up.
func (s *Service) clccMachinesLocked() []*stateMachine {
	var out []*stateMachine
	for _, sm := range s.machines {
		switch sm.ConnectionState() {
		case hfp.StateConnecting, hfp.StateConnected:
			out = append(out, sm)
		}
	}
	return out
}

// ConnectionState returns the connection state of device.
func (s *Service) ConnectionState(device hfp.Address) hfp.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm := s.machines[device]; sm != nil {
		return sm.ConnectionState()
	}
	return hfp.StateDisconnected
}

// AudioState returns the audio state of device.
func (s *Service) AudioState(device hfp.Address) hfp.AudioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioStateLocked(device)
}

func (s *Service) audioStateLocked(device hfp.Address) hfp.AudioState {
	if sm := s.machines[device]; sm != nil {
		return sm.AudioState()
	}
	return hfp.AudioDisconnected
}

// State returns the internal state of device's machine. Unlike AudioState it
// tells AudioDisconnecting from AudioOn.
func (s *Service) State(device hfp.Address) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm := s.machines[device]; sm != nil {
		return sm.State()
	}
	return StateDisconnected
}

// IsAudioConnected reports whether device has a SCO link.
func (s *Service) IsAudioConnected(device hfp.Address) bool {
	return s.AudioState(device) == hfp.AudioConnected
}

// IsAudioOn reports whether any device has audio that is not idle.
func (s *Service) IsAudioOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAudioOnLocked()
}

func (s *Service) isAudioOnLocked() bool {
	return len(s.nonIdleAudioLocked()) > 0
}

func (s *Service) nonIdleAudioLocked() []hfp.Address {
	var out []hfp.Address
	for dev, sm := range s.machines {
		if sm.AudioState() != hfp.AudioDisconnected {
			out = append(out, dev)
		}
	}
	return out
}

// ActiveDevice returns the device audio is routed to, or the zero address.
func (s *Service) ActiveDevice() hfp.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// DeviceSnapshot is the state of one device.
type DeviceSnapshot struct {
	Device         hfp.Address `json:"device" yaml:"device"`
	State          string      `json:"state" yaml:"state"`
	Connection     string      `json:"connection" yaml:"connection"`
	Audio          string      `json:"audio" yaml:"audio"`
	Active         bool        `json:"active" yaml:"active"`
	Priority       string      `json:"priority" yaml:"priority"`
	ConnectingTime time.Time   `json:"connecting_time,omitzero" yaml:"connecting_time,omitempty"`
}

// Snapshot is a point-in-time dump of the service.
type Snapshot struct {
	ActiveDevice      hfp.Address         `json:"active_device" yaml:"active_device"`
	AudioRouteAllowed bool                `json:"audio_route_allowed" yaml:"audio_route_allowed"`
	ForceScoAudio     bool                `json:"force_sco_audio" yaml:"force_sco_audio"`
	InbandRinging     bool                `json:"inband_ringing" yaml:"inband_ringing"`
	VoiceRecognition  bool                `json:"voice_recognition" yaml:"voice_recognition"`
	VirtualCall       bool                `json:"virtual_call" yaml:"virtual_call"`
	DialingOut        bool                `json:"dialing_out" yaml:"dialing_out"`
	Devices           []DeviceSnapshot    `json:"devices" yaml:"devices"`
	Phone             phonestate.Snapshot `json:"phone" yaml:"phone"`
}

// Snapshot returns the current state of the service and its devices.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ActiveDevice:      s.active,
		AudioRouteAllowed: s.audioRouteAllowed,
		ForceScoAudio:     s.forceSco,
		InbandRinging:     s.isInbandRingingEnabledLocked(),
		VoiceRecognition:  s.vrStarted,
		VirtualCall:       s.virtualCall,
		DialingOut:        s.dialOut != nil,
	}
	for dev, sm := range s.machines {
		st := sm.State()
		snap.Devices = append(snap.Devices, DeviceSnapshot{
			Device:         dev,
			State:          st.String(),
			Connection:     st.ConnectionState().String(),
			Audio:          st.AudioState().String(),
			Active:         dev == s.active,
			ConnectingTime: sm.ConnectingTimestamp(),
		})
	}
	s.mu.Unlock()

	slices.SortFunc(snap.Devices, func(a, b DeviceSnapshot) int {
		return cmp.Compare(a.Device.String(), b.Device.String())
	})
	for i := range snap.Devices {
		snap.Devices[i].Priority = s.Priority(snap.Devices[i].Device).String()
	}
	snap.Phone = s.phone.Snapshot()
	return snap
}
