package bluez

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

// link is the platform side of the backend: profile registration, profile
// connection requests, SCO sockets and device properties.
type link interface {
	register(b *Backend) error
	unregister()
	connectProfile(device hfp.Address) error
	disconnectProfile(device hfp.Address) error
	dialSCO(device hfp.Address) (io.ReadWriteCloser, error)

	bondState(device hfp.Address) hfp.BondState
	remoteUUIDs(device hfp.Address) []string
	remoteName(device hfp.Address) string
	watchBonds(ctx context.Context, fn func(hfp.Address, hfp.BondState)) error

	close() error
}

// Handler receives the stack events of every device, in order. It is
// called from a dedicated goroutine.
type Handler func(ev hfp.StackEvent)

// Backend is the BlueZ implementation of headset.Native and
// headset.Adapter.
type Backend struct {
	cfg  Config
	link link

	mu         sync.Mutex
	handler    Handler
	sessions   map[hfp.Address]*session
	sco        map[hfp.Address]io.ReadWriteCloser
	scoDialing map[hfp.Address]bool
	scoAllowed bool
	active     hfp.Address
	maxConn    int
	inband     bool
	closed     bool

	qmu    sync.Mutex
	queue  []hfp.StackEvent
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	closer sync.Once
}

func newBackend(cfg Config, l link) *Backend {
	cfg.normalize()
	b := &Backend{
		cfg:        cfg,
		link:       l,
		sessions:   make(map[hfp.Address]*session),
		sco:        make(map[hfp.Address]io.ReadWriteCloser),
		scoDialing: make(map[hfp.Address]bool),
		scoAllowed: true,
		maxConn:    1,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

// SetHandler installs the receiver of stack events. It must be called
// before Init.
func (b *Backend) SetHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// WatchBondState calls fn whenever a device is paired or unpaired, until
// ctx is done.
func (b *Backend) WatchBondState(ctx context.Context, fn func(hfp.Address, hfp.BondState)) error {
	return b.link.watchBonds(ctx, fn)
}

// emit queues ev for the handler. It never blocks, so it is safe to call
// while the caller holds locks the handler needs.
func (b *Backend) emit(ev hfp.StackEvent) {
	b.qmu.Lock()
	b.queue = append(b.queue, ev)
	b.qmu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Backend) emitConnection(device hfp.Address, st hfp.StackConnectionState) {
	b.emit(hfp.StackEvent{Type: hfp.EventConnectionStateChanged, Device: device, Int1: int(st)})
}

func (b *Backend) emitAudio(device hfp.Address, st hfp.StackAudioState) {
	b.emit(hfp.StackEvent{Type: hfp.EventAudioStateChanged, Device: device, Int1: int(st)})
}

func (b *Backend) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.qmu.Lock()
			if len(b.queue) == 0 {
				b.qmu.Unlock()
				break
			}
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.qmu.Unlock()

			b.mu.Lock()
			h := b.handler
			b.mu.Unlock()
			if h != nil {
				b.deliver(h, ev)
			}
		}
	}
}

func (b *Backend) deliver(h Handler, ev hfp.StackEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bluez: handler panic", "event", ev.String(), "panic", r)
		}
	}()
	h(ev)
}

// adopt takes ownership of an RFCOMM channel accepted by the profile.
func (b *Backend) adopt(device hfp.Address, rw io.ReadWriteCloser) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		rw.Close()
		return ErrClosed
	}
	if b.sessions[device] != nil {
		b.mu.Unlock()
		rw.Close()
		slog.Warn("bluez: duplicate connection rejected", "device", device)
		return errAlreadyConnected
	}
	if len(b.sessions) >= b.maxConn {
		b.mu.Unlock()
		rw.Close()
		slog.Warn("bluez: connection limit reached", "device", device, "max", b.maxConn)
		return errTooManyConnections
	}
	features := b.cfg.Features
	if !b.inband {
		features &^= atcmd.AGFeatureInbandRing
	}
	s := newSession(device, rw, features, b.emit)
	b.sessions[device] = s
	b.mu.Unlock()

	slog.Info("bluez: rfcomm connected", "device", device)
	b.emitConnection(device, hfp.StackConnected)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		s.run()
		s.close()
		b.mu.Lock()
		if b.sessions[device] == s {
			delete(b.sessions, device)
		}
		sco := b.sco[device]
		delete(b.sco, device)
		b.mu.Unlock()
		if sco != nil {
			sco.Close()
		}
		slog.Info("bluez: rfcomm disconnected", "device", device)
		b.emitConnection(device, hfp.StackDisconnected)
	}()
	return nil
}

func (b *Backend) session(device hfp.Address) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[device]
}

// ============================================================================
// headset.Native
// ============================================================================

// Init registers the gateway profile with BlueZ.
func (b *Backend) Init(maxConnections int, inbandRinging bool) {
	b.mu.Lock()
	b.maxConn = maxConnections
	b.inband = inbandRinging
	b.mu.Unlock()
	if err := b.link.register(b); err != nil {
		slog.Error("bluez: register profile", "error", err)
		return
	}
	slog.Info("bluez: profile registered", "adapter", b.cfg.Adapter, "channel", b.cfg.Channel,
		"max_connections", maxConnections, "inband", inbandRinging)
}

// Cleanup unregisters the profile and drops every link.
func (b *Backend) Cleanup() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	scos := make([]io.Closer, 0, len(b.sco))
	for d, c := range b.sco {
		scos = append(scos, c)
		delete(b.sco, d)
	}
	b.mu.Unlock()

	b.link.unregister()
	for _, c := range scos {
		c.Close()
	}
	for _, s := range sessions {
		s.close()
	}
}

// Close cleans up and releases the bus connection. Pending events are
// dropped.
func (b *Backend) Close() error {
	b.Cleanup()
	b.closer.Do(func() { close(b.done) })
	b.wg.Wait()
	return b.link.close()
}

func (b *Backend) ConnectHfp(device hfp.Address) bool {
	b.mu.Lock()
	if b.closed || b.sessions[device] != nil {
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()

	b.emitConnection(device, hfp.StackConnecting)
	go func() {
		if err := b.link.connectProfile(device); err != nil {
			slog.Warn("bluez: connect profile", "device", device, "error", err)
			if b.session(device) == nil {
				b.emitConnection(device, hfp.StackDisconnected)
			}
		}
	}()
	return true
}

func (b *Backend) DisconnectHfp(device hfp.Address) bool {
	s := b.session(device)
	if s == nil {
		return false
	}
	b.emitConnection(device, hfp.StackDisconnecting)
	go func() {
		s.close()
		if err := b.link.disconnectProfile(device); err != nil {
			slog.Debug("bluez: disconnect profile", "device", device, "error", err)
		}
	}()
	return true
}

func (b *Backend) ConnectAudio(device hfp.Address) bool {
	return b.openSCO(device, false)
}

// openSCO dials the audio link of device. With activeOnly set, it only
// does so for the active device, or for the sole connected device when
// none is active.
func (b *Backend) openSCO(device hfp.Address, activeOnly bool) bool {
	b.mu.Lock()
	s := b.sessions[device]
	_, busy := b.sco[device]
	busy = busy || b.scoDialing[device]
	allowed := b.scoAllowed
	if activeOnly && b.active != device && (!b.active.IsZero() || len(b.sessions) != 1) {
		allowed = false
	}
	if s == nil || !s.ready() || busy || !allowed {
		b.mu.Unlock()
		return false
	}
	b.scoDialing[device] = true
	b.mu.Unlock()

	b.emitAudio(device, hfp.StackAudioConnecting)
	go func() {
		conn, err := b.link.dialSCO(device)
		b.mu.Lock()
		delete(b.scoDialing, device)
		if err != nil {
			b.mu.Unlock()
			slog.Warn("bluez: sco connect", "device", device, "error", err)
			b.emitAudio(device, hfp.StackAudioDisconnected)
			return
		}
		if b.closed || b.sessions[device] != s {
			b.mu.Unlock()
			conn.Close()
			b.emitAudio(device, hfp.StackAudioDisconnected)
			return
		}
		b.sco[device] = conn
		b.mu.Unlock()
		b.emitAudio(device, hfp.StackAudioConnected)
		b.drainSCO(device, conn)
	}()
	return true
}

// drainSCO consumes the audio link until it closes, then reports it down.
func (b *Backend) drainSCO(device hfp.Address, conn io.ReadWriteCloser) {
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	b.mu.Lock()
	if b.sco[device] == conn {
		delete(b.sco, device)
	}
	b.mu.Unlock()
	conn.Close()
	b.emitAudio(device, hfp.StackAudioDisconnected)
}

func (b *Backend) DisconnectAudio(device hfp.Address) bool {
	b.mu.Lock()
	conn := b.sco[device]
	delete(b.sco, device)
	b.mu.Unlock()
	if conn == nil {
		return false
	}
	b.emitAudio(device, hfp.StackAudioDisconnecting)
	conn.Close()
	return true
}

func (b *Backend) withSession(device hfp.Address, fn func(*session) bool) bool {
	s := b.session(device)
	if s == nil {
		return false
	}
	return fn(s)
}

func (b *Backend) StartVoiceRecognition(device hfp.Address) bool {
	return b.withSession(device, func(s *session) bool { return s.send(atcmd.FormatBVRA(true)) })
}

func (b *Backend) StopVoiceRecognition(device hfp.Address) bool {
	return b.withSession(device, func(s *session) bool { return s.send(atcmd.FormatBVRA(false)) })
}

func (b *Backend) SetVolume(device hfp.Address, volumeType hfp.VolumeType, volume int) bool {
	return b.withSession(device, func(s *session) bool {
		if volumeType == hfp.VolumeMic {
			return s.send(atcmd.FormatVGM(volume))
		}
		return s.send(atcmd.FormatVGS(volume))
	})
}

func (b *Backend) CindResponse(device hfp.Address, service, numActive, numHeld int, callState hfp.CallState, signal, roam, battery int) bool {
	return b.withSession(device, func(s *session) bool {
		return s.cindResponse(atcmd.CIND{
			Service:   service,
			NumActive: numActive,
			NumHeld:   numHeld,
			CallState: callState,
			Signal:    signal,
			Roam:      roam,
			Battery:   battery,
		})
	})
}

func (b *Backend) AtResponseString(device hfp.Address, response string) bool {
	return b.withSession(device, func(s *session) bool { return s.send(response) })
}

func (b *Backend) AtResponseCode(device hfp.Address, code hfp.ATResponseCode, errorCode int) bool {
	return b.withSession(device, func(s *session) bool { return s.responseCode(code, errorCode) })
}

func (b *Backend) CopsResponse(device hfp.Address, operator string) bool {
	return b.withSession(device, func(s *session) bool { return s.send(atcmd.FormatCOPS(operator), atcmd.OK) })
}

func (b *Backend) ClccResponse(device hfp.Address, entry hfp.ClccEntry) bool {
	return b.withSession(device, func(s *session) bool {
		if entry.Index == 0 {
			return s.send(atcmd.OK)
		}
		return s.send(atcmd.FormatCLCC(entry))
	})
}

func (b *Backend) NotifyDeviceStatus(device hfp.Address, state hfp.DeviceState) bool {
	return b.withSession(device, func(s *session) bool { return s.deviceStatus(state) })
}

// PhoneStateChange updates the call indicators of device. When a call
// starts alerting or becomes active, the audio link of the active device
// is opened as well.
func (b *Backend) PhoneStateChange(device hfp.Address, state hfp.CallStateInfo) bool {
	s := b.session(device)
	if s == nil {
		return false
	}
	ok := s.phoneState(state)
	if s.callStarted(state) && b.openSCO(device, true) {
		slog.Info("bluez: opening audio for call", "device", device, "call_state", state.CallState)
	}
	return ok
}

func (b *Backend) SendBsir(device hfp.Address, inband bool) bool {
	return b.withSession(device, func(s *session) bool { return s.send(atcmd.FormatBSIR(inband)) })
}

func (b *Backend) SetScoAllowed(allowed bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scoAllowed = allowed
	return true
}

func (b *Backend) SetActiveDevice(device hfp.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !device.IsZero() && b.sessions[device] == nil {
		return false
	}
	b.active = device
	return true
}

// ActiveDevice returns the device last made active by the service.
func (b *Backend) ActiveDevice() hfp.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// ============================================================================
// headset.Adapter
// ============================================================================

func (b *Backend) BondState(device hfp.Address) hfp.BondState { return b.link.bondState(device) }
func (b *Backend) RemoteUUIDs(device hfp.Address) []string    { return b.link.remoteUUIDs(device) }
func (b *Backend) RemoteName(device hfp.Address) string       { return b.link.remoteName(device) }

// QuietMode is always false: BlueZ has no equivalent setting.
func (b *Backend) QuietMode() bool { return false }
