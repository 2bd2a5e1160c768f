package commands

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/hfpag/pkg/broadcast"
	"github.com/haivivi/hfpag/pkg/headset"
	"github.com/haivivi/hfpag/pkg/hfp"
)

var (
	addrA = hfp.MustParseAddress("00:11:22:33:44:55")
	addrB = hfp.MustParseAddress("66:77:88:99:AA:BB")
)

// mockController records the calls of the HTTP API.
type mockController struct {
	mu       sync.Mutex
	calls    []string
	refuse   bool
	prioErr  error
	priority map[hfp.Address]hfp.Priority
	battery  [2]int
	snap     headset.Snapshot
}

func newMockController() *mockController {
	return &mockController{priority: make(map[hfp.Address]hfp.Priority)}
}

func (m *mockController) record(call string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return !m.refuse
}

func (m *mockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockController) Snapshot() headset.Snapshot { return m.snap }

func (m *mockController) Connect(d hfp.Address) bool    { return m.record("connect " + d.String()) }
func (m *mockController) Disconnect(d hfp.Address) bool { return m.record("disconnect " + d.String()) }
func (m *mockController) SetActiveDevice(d hfp.Address) bool {
	return m.record("active " + d.String())
}
func (m *mockController) ConnectAudio() bool    { return m.record("audio on") }
func (m *mockController) DisconnectAudio() bool { return m.record("audio off") }
func (m *mockController) StartScoUsingVirtualVoiceCall() bool {
	return m.record("virtual start")
}
func (m *mockController) StopScoUsingVirtualVoiceCall() bool {
	return m.record("virtual stop")
}

func (m *mockController) SetPriority(_ context.Context, d hfp.Address, p hfp.Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prioErr != nil {
		return m.prioErr
	}
	m.priority[d] = p
	return nil
}

func (m *mockController) BatteryChanged(level, scale int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battery = [2]int{level, scale}
}

func (m *mockController) Priority(d hfp.Address) hfp.Priority {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priority[d]
}

func (m *mockController) Battery() [2]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery
}

func newTestAPI(t *testing.T, ctl controller) (*httptest.Server, *apiClient) {
	t.Helper()
	srv := httptest.NewServer(newAPIServer(ctl, nil))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return srv, newAPIClient(u)
}

func TestAPI_Status(t *testing.T) {
	ctl := newMockController()
	ctl.snap = headset.Snapshot{
		ActiveDevice:      addrA,
		AudioRouteAllowed: true,
		Devices: []headset.DeviceSnapshot{
			{Device: addrA, State: "Connected", Connection: "connected", Audio: "audio_disconnected", Active: true, Priority: "on"},
		},
	}
	_, c := newTestAPI(t, ctl)

	snap, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.ActiveDevice != addrA {
		t.Errorf("ActiveDevice = %v; want %v", snap.ActiveDevice, addrA)
	}
	if len(snap.Devices) != 1 || snap.Devices[0].State != "Connected" || snap.Devices[0].Priority != "on" {
		t.Errorf("Devices = %+v", snap.Devices)
	}
}

func TestAPI_Actions(t *testing.T) {
	ctl := newMockController()
	_, c := newTestAPI(t, ctl)
	ctx := context.Background()

	steps := []struct {
		method, path string
	}{
		{"POST", "/devices/00:11:22:33:44:55/connect"},
		{"POST", "/devices/66:77:88:99:aa:bb/active"},
		{"POST", "/audio/connect"},
		{"POST", "/audio/disconnect"},
		{"POST", "/virtual-call/start"},
		{"POST", "/virtual-call/stop"},
		{"POST", "/devices/00:11:22:33:44:55/disconnect"},
	}
	for _, s := range steps {
		if err := c.Do(ctx, s.method, s.path, nil); err != nil {
			t.Fatalf("%s %s: %v", s.method, s.path, err)
		}
	}

	want := []string{
		"connect " + addrA.String(),
		"active " + addrB.String(),
		"audio on",
		"audio off",
		"virtual start",
		"virtual stop",
		"disconnect " + addrA.String(),
	}
	got := ctl.Calls()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

func TestAPI_Refused(t *testing.T) {
	ctl := newMockController()
	ctl.refuse = true
	_, c := newTestAPI(t, ctl)

	err := c.Do(context.Background(), "POST", "/devices/00:11:22:33:44:55/connect", nil)
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("err = %v; want refused", err)
	}
}

func TestAPI_BadRequests(t *testing.T) {
	ctl := newMockController()
	srv, _ := newTestAPI(t, ctl)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad address", "POST", "/devices/not-an-address/connect", "", http.StatusBadRequest},
		{"wrong method", "GET", "/audio/connect", "", http.StatusMethodNotAllowed},
		{"bad priority", "PUT", "/devices/00:11:22:33:44:55/priority", `{"priority":"sometimes"}`, http.StatusBadRequest},
		{"bad priority body", "PUT", "/devices/00:11:22:33:44:55/priority", `{`, http.StatusBadRequest},
		{"battery over scale", "POST", "/battery", `{"level":120,"scale":100}`, http.StatusBadRequest},
		{"battery zero scale", "POST", "/battery", `{"level":1,"scale":0}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d; want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if calls := ctl.Calls(); len(calls) != 0 {
		t.Errorf("controller called: %v", calls)
	}
}

func TestAPI_Priority(t *testing.T) {
	ctl := newMockController()
	_, c := newTestAPI(t, ctl)
	ctx := context.Background()

	if err := c.Do(ctx, "PUT", "/devices/00:11:22:33:44:55/priority", priorityRequest{Priority: "auto_connect"}); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if got := ctl.Priority(addrA); got != hfp.PriorityAutoConnect {
		t.Errorf("priority = %v; want auto_connect", got)
	}

	ctl.mu.Lock()
	ctl.prioErr = errors.New("disk full")
	ctl.mu.Unlock()
	err := c.Do(ctx, "PUT", "/devices/00:11:22:33:44:55/priority", priorityRequest{Priority: "off"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v; want disk full", err)
	}
}

func TestAPI_Battery(t *testing.T) {
	ctl := newMockController()
	_, c := newTestAPI(t, ctl)

	if err := c.Do(context.Background(), "POST", "/battery", batteryRequest{Level: 40, Scale: 100}); err != nil {
		t.Fatalf("battery: %v", err)
	}
	if got := ctl.Battery(); got != [2]int{40, 100} {
		t.Errorf("battery = %v; want [40 100]", got)
	}
}

func TestAPI_Events(t *testing.T) {
	hub := broadcast.NewHub(broadcast.HubConfig{})
	defer hub.Close()
	srv := httptest.NewServer(newAPIServer(newMockController(), hub))
	defer srv.Close()
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := broadcast.Dial(ctx, eventsURL(base), broadcast.MsgPack)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	broadcast.NewPublisher(hub).ConnectionStateChanged(addrA, hfp.StateConnecting, hfp.StateConnected)

	for ev, err := range conn.Events() {
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		if ev.Kind != broadcast.KindConnectionState || ev.Device != addrA.String() || ev.To != "connected" {
			t.Errorf("event = %+v", ev)
		}
		break
	}
}
