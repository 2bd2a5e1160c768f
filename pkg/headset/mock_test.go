package headset

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/hfpag/pkg/hfp"
)

var (
	addrA = hfp.MustParseAddress("00:00:00:00:00:0A")
	addrB = hfp.MustParseAddress("00:00:00:00:00:0B")
)

// recorder is a shared, ordered log of collaborator calls.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

func (r *recorder) count(entry string) int {
	n := 0
	for _, e := range r.all() {
		if e == entry {
			n++
		}
	}
	return n
}

func (r *recorder) countPrefix(prefix string) int {
	n := 0
	for _, e := range r.all() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// index returns the position of the first entry equal to entry, or -1.
func (r *recorder) index(entry string) int {
	return slices.Index(r.all(), entry)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// ============================================================================
// mockNative
// ============================================================================

type mockNative struct {
	rec *recorder

	mu   sync.Mutex
	fail map[string]bool
}

func newMockNative(rec *recorder) *mockNative {
	return &mockNative{rec: rec, fail: make(map[string]bool)}
}

func (m *mockNative) setFail(method string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = fail
}

func (m *mockNative) call(method string, format string, args ...any) bool {
	m.rec.add(method+" "+format, args...)
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.fail[method]
}

func (m *mockNative) Init(maxConnections int, inband bool) {
	m.rec.add("Init %d %t", maxConnections, inband)
}

func (m *mockNative) Cleanup() { m.rec.add("Cleanup") }

func (m *mockNative) ConnectHfp(d hfp.Address) bool    { return m.call("ConnectHfp", "%v", d) }
func (m *mockNative) DisconnectHfp(d hfp.Address) bool { return m.call("DisconnectHfp", "%v", d) }
func (m *mockNative) ConnectAudio(d hfp.Address) bool  { return m.call("ConnectAudio", "%v", d) }
func (m *mockNative) DisconnectAudio(d hfp.Address) bool {
	return m.call("DisconnectAudio", "%v", d)
}
func (m *mockNative) StartVoiceRecognition(d hfp.Address) bool {
	return m.call("StartVoiceRecognition", "%v", d)
}
func (m *mockNative) StopVoiceRecognition(d hfp.Address) bool {
	return m.call("StopVoiceRecognition", "%v", d)
}
func (m *mockNative) SetVolume(d hfp.Address, t hfp.VolumeType, v int) bool {
	return m.call("SetVolume", "%v %d %d", d, t, v)
}
func (m *mockNative) CindResponse(d hfp.Address, service, numActive, numHeld int, cs hfp.CallState, signal, roam, battery int) bool {
	return m.call("CindResponse", "%v %d %d %d %v %d %d %d", d, service, numActive, numHeld, cs, signal, roam, battery)
}
func (m *mockNative) AtResponseString(d hfp.Address, s string) bool {
	return m.call("AtResponseString", "%v %s", d, s)
}
func (m *mockNative) AtResponseCode(d hfp.Address, c hfp.ATResponseCode, errCode int) bool {
	return m.call("AtResponseCode", "%v %v", d, c)
}
func (m *mockNative) CopsResponse(d hfp.Address, op string) bool {
	return m.call("CopsResponse", "%v %s", d, op)
}
func (m *mockNative) ClccResponse(d hfp.Address, e hfp.ClccEntry) bool {
	return m.call("ClccResponse", "%v %d %s", d, e.Index, e.Number)
}
func (m *mockNative) NotifyDeviceStatus(d hfp.Address, s hfp.DeviceState) bool {
	return m.call("NotifyDeviceStatus", "%v %d %d %d %d", d, s.Service, s.Roam, s.Signal, s.BatteryCharge)
}
func (m *mockNative) PhoneStateChange(d hfp.Address, s hfp.CallStateInfo) bool {
	return m.call("PhoneStateChange", "%v %d %d %v", d, s.NumActive, s.NumHeld, s.CallState)
}
func (m *mockNative) SendBsir(d hfp.Address, inband bool) bool {
	return m.call("SendBsir", "%v %t", d, inband)
}
func (m *mockNative) SetScoAllowed(allowed bool) bool {
	return m.call("SetScoAllowed", "%t", allowed)
}
func (m *mockNative) SetActiveDevice(d hfp.Address) bool {
	return m.call("SetActiveDevice", "%v", d)
}

// ============================================================================
// mockAdapter
// ============================================================================

type mockAdapter struct {
	mu    sync.Mutex
	bonds map[hfp.Address]hfp.BondState
	uuids map[hfp.Address][]string
	names map[hfp.Address]string
	quiet bool
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		bonds: make(map[hfp.Address]hfp.BondState),
		uuids: make(map[hfp.Address][]string),
		names: make(map[hfp.Address]string),
	}
}

func (m *mockAdapter) setBond(d hfp.Address, s hfp.BondState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonds[d] = s
}

func (m *mockAdapter) setUUIDs(d hfp.Address, uuids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uuids[d] = uuids
}

func (m *mockAdapter) BondState(d hfp.Address) hfp.BondState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bonds[d]; ok {
		return s
	}
	return hfp.BondBonded
}

func (m *mockAdapter) RemoteUUIDs(d hfp.Address) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.uuids[d]; ok {
		return u
	}
	return []string{hfp.UUIDHandsfree}
}

func (m *mockAdapter) RemoteName(d hfp.Address) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[d]
}

func (m *mockAdapter) QuietMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quiet
}

// ============================================================================
// mockTelephony
// ============================================================================

type mockTelephony struct {
	rec *recorder

	mu         sync.Mutex
	listCalls  bool
	dialOK     bool
	chldOK     bool
	operator   string
	subscriber string
}

func (m *mockTelephony) AnswerCall(d hfp.Address) bool {
	m.rec.add("AnswerCall %v", d)
	return true
}

func (m *mockTelephony) HangupCall(d hfp.Address) bool {
	m.rec.add("HangupCall %v", d)
	return true
}

func (m *mockTelephony) SendDTMF(d hfp.Address, code int) bool {
	m.rec.add("SendDTMF %v %d", d, code)
	return true
}

func (m *mockTelephony) ProcessChld(chld int) bool {
	m.rec.add("ProcessChld %d", chld)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chldOK
}

func (m *mockTelephony) ListCurrentCalls() bool {
	m.rec.add("ListCurrentCalls")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *mockTelephony) QueryPhoneState() bool {
	m.rec.add("QueryPhoneState")
	return true
}

func (m *mockTelephony) NetworkOperator() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operator
}

func (m *mockTelephony) SubscriberNumber() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriber
}

func (m *mockTelephony) Dial(number string) bool {
	m.rec.add("Dial %s", number)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dialOK
}

// ============================================================================
// mockAudio, mockPlatform, mockPhonebook
// ============================================================================

type mockAudio struct {
	rec *recorder
}

func (m *mockAudio) SetParameters(kv string) { m.rec.add("SetParameters %s", kv) }

func (m *mockAudio) SetStreamVolume(volume int, showUI bool) {
	m.rec.add("SetStreamVolume %d %t", volume, showUI)
}

type mockPlatform struct {
	rec *recorder

	mu       sync.Mutex
	activate bool
}

func (m *mockPlatform) ActivateVoiceRecognition() bool {
	m.rec.add("ActivateVoiceRecognition")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activate
}

func (m *mockPlatform) DeactivateVoiceRecognition() bool {
	m.rec.add("DeactivateVoiceRecognition")
	return true
}

func (m *mockPlatform) ExitIdle() bool   { return true }
func (m *mockPlatform) AcquireWakeLock() { m.rec.add("AcquireWakeLock") }
func (m *mockPlatform) ReleaseWakeLock() { m.rec.add("ReleaseWakeLock") }

type mockPhonebook struct {
	rec *recorder

	mu   sync.Mutex
	last string
}

func (m *mockPhonebook) Handle(d hfp.Address, cmd string, typ int) ([]string, hfp.ATResponseCode) {
	m.rec.add("Phonebook %v %s %d", d, cmd, typ)
	return []string{"+CPBR: 1,\"555\",129,\"Bob\""}, hfp.ATResponseOK
}

func (m *mockPhonebook) LastDialledNumber() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last != ""
}

func (m *mockPhonebook) Reset(hfp.Address) {}

// ============================================================================
// mockPublisher
// ============================================================================

type mockPublisher struct {
	rec *recorder
}

func (m *mockPublisher) ConnectionStateChanged(d hfp.Address, from, to hfp.ConnectionState) {
	m.rec.add("Connection %v %v->%v", d, from, to)
}

func (m *mockPublisher) AudioStateChanged(d hfp.Address, from, to hfp.AudioState) {
	m.rec.add("Audio %v %v->%v", d, from, to)
}

func (m *mockPublisher) ActiveDeviceChanged(d hfp.Address) {
	m.rec.add("Active %v", d)
}

func (m *mockPublisher) VendorEvent(d hfp.Address, cmd string, companyID, cmdType int, args []any) {
	m.rec.add("Vendor %v %s %d %d %v", d, cmd, companyID, cmdType, args)
}

func (m *mockPublisher) HFIndicatorChanged(d hfp.Address, id, value int) {
	m.rec.add("Indicator %v %d %d", d, id, value)
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	t         *testing.T
	svc       *Service
	native    *mockNative
	adapter   *mockAdapter
	tel       *mockTelephony
	plat      *mockPlatform
	phonebook *mockPhonebook

	// native records radio stack calls; rec records everything else.
	nativeRec *recorder
	rec       *recorder
}

// newHarness starts a Service wired to mocks. cfg may be nil.
func newHarness(t *testing.T, cfg func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		nativeRec: &recorder{},
		rec:       &recorder{},
		adapter:   newMockAdapter(),
	}
	h.native = newMockNative(h.nativeRec)
	h.tel = &mockTelephony{rec: h.rec, listCalls: true, dialOK: true, chldOK: true}
	h.plat = &mockPlatform{rec: h.rec, activate: true}
	h.phonebook = &mockPhonebook{rec: h.rec}

	c := DefaultConfig()
	c.MaxConnections = 1
	c.Logger = SlogLogger(slog.New(slog.DiscardHandler))
	if cfg != nil {
		cfg(&c)
	}
	svc, err := New(c, Options{
		Native:    h.native,
		Adapter:   h.adapter,
		Telephony: h.tel,
		Audio:     &mockAudio{rec: h.rec},
		Platform:  h.plat,
		Phonebook: h.phonebook,
		Publisher: &mockPublisher{rec: h.rec},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.svc = svc
	t.Cleanup(func() { svc.Stop() })
	return h
}

func (h *harness) flush() {
	h.svc.loop.flush()
}

func (h *harness) stack(ev hfp.StackEvent) {
	h.t.Helper()
	if err := h.svc.StackEvent(ev); err != nil {
		h.t.Fatalf("StackEvent(%v): %v", &ev, err)
	}
	h.flush()
}

func (h *harness) connEvent(d hfp.Address, st hfp.StackConnectionState) {
	h.t.Helper()
	h.stack(hfp.StackEvent{Type: hfp.EventConnectionStateChanged, Device: d, Int1: int(st)})
}

func (h *harness) audioEvent(d hfp.Address, st hfp.StackAudioState) {
	h.t.Helper()
	h.stack(hfp.StackEvent{Type: hfp.EventAudioStateChanged, Device: d, Int1: int(st)})
}

func (h *harness) expectState(d hfp.Address, want State) {
	h.t.Helper()
	if got := h.svc.State(d); got != want {
		h.t.Fatalf("State(%v) = %v; want %v", d, got, want)
	}
}

// connect brings d to Connected through an outgoing connection.
func (h *harness) connect(d hfp.Address) {
	h.t.Helper()
	if !h.svc.Connect(d) {
		h.t.Fatalf("Connect(%v) = false", d)
	}
	h.flush()
	h.expectState(d, StateConnecting)
	h.connEvent(d, hfp.StackConnected)
	h.connEvent(d, hfp.StackSLCConnected)
	h.expectState(d, StateConnected)
}

// audioOn makes d active and opens audio to it with SCO forced.
func (h *harness) audioOn(d hfp.Address) {
	h.t.Helper()
	h.svc.SetForceScoAudio(true)
	if !h.svc.SetActiveDevice(d) {
		h.t.Fatalf("SetActiveDevice(%v) = false", d)
	}
	if !h.svc.ConnectAudio() {
		h.t.Fatalf("ConnectAudio() = false")
	}
	h.flush()
	h.expectState(d, StateAudioConnecting)
	h.audioEvent(d, hfp.StackAudioConnected)
	h.expectState(d, StateAudioOn)
}

func (h *harness) expectNative(entry string) {
	h.t.Helper()
	if h.nativeRec.count(entry) == 0 {
		h.t.Fatalf("missing native call %q in %q", entry, h.nativeRec.all())
	}
}

func (h *harness) expectNoNative(entry string) {
	h.t.Helper()
	if n := h.nativeRec.count(entry); n != 0 {
		h.t.Fatalf("unexpected native call %q (%d times)", entry, n)
	}
}

func (h *harness) expectRec(entry string) {
	h.t.Helper()
	if h.rec.count(entry) == 0 {
		h.t.Fatalf("missing call %q in %q", entry, h.rec.all())
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
