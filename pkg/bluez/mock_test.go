package bluez

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

var (
	addrA = hfp.MustParseAddress("00:00:00:00:00:0A")
	addrB = hfp.MustParseAddress("00:00:00:00:00:0B")
)

// mockLink records profile calls and hands out in-memory SCO links.
type mockLink struct {
	mu           sync.Mutex
	registered   bool
	unregistered bool
	connectErr   error
	scoErr       error
	connects     []hfp.Address
	disconnects  []hfp.Address
	scoPeers     []net.Conn
	bonds        map[hfp.Address]hfp.BondState
}

func (m *mockLink) register(*Backend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = true
	return nil
}

func (m *mockLink) unregister() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = true
}

func (m *mockLink) connectProfile(device hfp.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, device)
	return m.connectErr
}

func (m *mockLink) disconnectProfile(device hfp.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, device)
	return nil
}

func (m *mockLink) dialSCO(hfp.Address) (io.ReadWriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scoErr != nil {
		return nil, m.scoErr
	}
	local, remote := net.Pipe()
	m.scoPeers = append(m.scoPeers, remote)
	return local, nil
}

func (m *mockLink) lastSCOPeer() net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.scoPeers) == 0 {
		return nil
	}
	return m.scoPeers[len(m.scoPeers)-1]
}

func (m *mockLink) bondState(device hfp.Address) hfp.BondState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bonds[device]
}

func (m *mockLink) remoteUUIDs(hfp.Address) []string { return []string{hfp.UUIDHandsfree} }
func (m *mockLink) remoteName(hfp.Address) string    { return "Car Kit" }

func (m *mockLink) watchBonds(ctx context.Context, fn func(hfp.Address, hfp.BondState)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockLink) close() error { return nil }

// events collects the stack events delivered to the handler.
type events struct {
	ch chan hfp.StackEvent
}

func newEvents() *events {
	return &events{ch: make(chan hfp.StackEvent, 64)}
}

func (e *events) handle(ev hfp.StackEvent) { e.ch <- ev }

func (e *events) next(t *testing.T) hfp.StackEvent {
	t.Helper()
	select {
	case ev := <-e.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stack event")
	}
	return hfp.StackEvent{}
}

func (e *events) expect(t *testing.T, typ hfp.StackEventType, int1 int) hfp.StackEvent {
	t.Helper()
	ev := e.next(t)
	if ev.Type != typ || ev.Int1 != int1 {
		t.Fatalf("event = %v; want type %v int1 %d", &ev, typ, int1)
	}
	return ev
}

func (e *events) expectConn(t *testing.T, st hfp.StackConnectionState) {
	t.Helper()
	e.expect(t, hfp.EventConnectionStateChanged, int(st))
}

func (e *events) expectAudio(t *testing.T, st hfp.StackAudioState) {
	t.Helper()
	e.expect(t, hfp.EventAudioStateChanged, int(st))
}

func (e *events) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e.ch:
		t.Fatalf("unexpected event %v", &ev)
	case <-time.After(20 * time.Millisecond):
	}
}

// peer is the hands-free end of an RFCOMM channel.
type peer struct {
	conn  net.Conn
	lines chan string
}

func newPeer(conn net.Conn) *peer {
	p := &peer{conn: conn, lines: make(chan string, 64)}
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(conn)
		sc.Split(atcmd.Splitter)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
	return p
}

func (p *peer) send(t *testing.T, cmd string) {
	t.Helper()
	if _, err := p.conn.Write([]byte(cmd + "\r")); err != nil {
		t.Fatalf("write %q: %v", cmd, err)
	}
}

func (p *peer) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got, ok := <-p.lines:
			if !ok {
				t.Fatalf("channel closed; want %q", w)
			}
			if got != w {
				t.Fatalf("got %q; want %q", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func (p *peer) expectClosed(t *testing.T) {
	t.Helper()
	select {
	case l, ok := <-p.lines:
		if ok {
			t.Fatalf("unexpected line %q", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

type harness struct {
	b    *Backend
	link *mockLink
	ev   *events
}

func newHarness(t *testing.T, maxConn int, inband bool) *harness {
	t.Helper()
	l := &mockLink{bonds: make(map[hfp.Address]hfp.BondState)}
	b := newBackend(Config{}, l)
	ev := newEvents()
	b.SetHandler(ev.handle)
	b.Init(maxConn, inband)
	t.Cleanup(func() { b.Close() })
	return &harness{b: b, link: l, ev: ev}
}

// accept hands a new RFCOMM channel for device to the backend.
func (h *harness) accept(t *testing.T, device hfp.Address) *peer {
	t.Helper()
	local, remote := net.Pipe()
	if err := h.b.adopt(device, local); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	t.Cleanup(func() { remote.Close() })
	h.ev.expectConn(t, hfp.StackConnected)
	return newPeer(remote)
}

// slc runs the minimal handshake of a unit without optional features.
func (h *harness) slc(t *testing.T, p *peer) {
	t.Helper()
	p.send(t, "AT+BRSF=0")
	p.expect(t, atcmd.FormatBRSF(h.b.cfg.Features), atcmd.OK)
	p.send(t, "AT+CIND=?")
	p.expect(t, atcmd.CINDTest, atcmd.OK)
	p.send(t, "AT+CMER=3,0,0,1")
	p.expect(t, atcmd.OK)
	h.ev.expectConn(t, hfp.StackSLCConnected)
}

var errTest = errors.New("test failure")
