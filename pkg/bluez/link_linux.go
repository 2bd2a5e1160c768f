//go:build linux

package bluez

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Open connects to the system bus. The profile is registered by Init.
func Open(cfg Config) (*Backend, error) {
	cfg.normalize()
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	l := &dbusLink{
		bus:     bus,
		cfg:     cfg,
		path:    dbus.ObjectPath(cfg.ProfilePath),
		manager: bus.Object(bluezService, "/org/bluez"),
	}
	return newBackend(cfg, l), nil
}

type dbusLink struct {
	bus     *dbus.Conn
	cfg     Config
	path    dbus.ObjectPath
	manager dbus.BusObject

	registered bool
}

// profile implements org.bluez.Profile1.
type profile struct {
	b *Backend
}

func (p *profile) Release() *dbus.Error {
	slog.Info("bluez: profile released")
	return nil
}

// NewConnection adopts the RFCOMM socket of a connected hands-free unit.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	device, err := addressFromPath(dev)
	if err != nil {
		unix.Close(int(fd))
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []any{err.Error()}}
	}
	if err := unix.SetNonblock(int(fd), true); err != nil {
		unix.Close(int(fd))
		return &dbus.Error{Name: "org.bluez.Error.Failed", Body: []any{err.Error()}}
	}
	f := os.NewFile(uintptr(fd), "rfcomm:"+device.String())
	if err := p.b.adopt(device, f); err != nil {
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []any{err.Error()}}
	}
	return nil
}

func (p *profile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error {
	device, err := addressFromPath(dev)
	if err != nil {
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []any{err.Error()}}
	}
	p.b.DisconnectHfp(device)
	return nil
}

func (l *dbusLink) register(b *Backend) error {
	if l.registered {
		return nil
	}
	if err := l.bus.Export(&profile{b: b}, l.path, profileIface); err != nil {
		return fmt.Errorf("bluez: export profile: %w", err)
	}
	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant("Hands-Free Voice gateway"),
		"Role":                  dbus.MakeVariant("server"),
		"Channel":               dbus.MakeVariant(uint16(l.cfg.Channel)),
		"Features":              dbus.MakeVariant(sdpFeatures(l.cfg.Features)),
		"RequireAuthentication": dbus.MakeVariant(true),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(true),
	}
	if call := l.manager.Call(profileManagerIface+".RegisterProfile", 0, l.path, hfp.UUIDHandsfreeAG, opts); call.Err != nil {
		l.bus.Export(nil, l.path, profileIface)
		return fmt.Errorf("bluez: RegisterProfile: %w", call.Err)
	}
	l.registered = true
	return nil
}

func (l *dbusLink) unregister() {
	if !l.registered {
		return
	}
	l.registered = false
	if err := l.manager.Call(profileManagerIface+".UnregisterProfile", 0, l.path).Err; err != nil {
		slog.Warn("bluez: UnregisterProfile", "error", err)
	}
	l.bus.Export(nil, l.path, profileIface)
}

func (l *dbusLink) device(device hfp.Address) dbus.BusObject {
	return l.bus.Object(bluezService, devicePath(l.cfg.Adapter, device))
}

func (l *dbusLink) connectProfile(device hfp.Address) error {
	if err := l.device(device).Call(deviceIface+".ConnectProfile", 0, hfp.UUIDHandsfree).Err; err != nil {
		return fmt.Errorf("bluez: ConnectProfile %v: %w", device, err)
	}
	return nil
}

func (l *dbusLink) disconnectProfile(device hfp.Address) error {
	if err := l.device(device).Call(deviceIface+".DisconnectProfile", 0, hfp.UUIDHandsfree).Err; err != nil {
		return fmt.Errorf("bluez: DisconnectProfile %v: %w", device, err)
	}
	return nil
}

// rawSockaddrSCO is struct sockaddr_sco.
type rawSockaddrSCO struct {
	Family uint16
	Bdaddr [6]byte
}

// dialSCO opens a synchronous audio link to device. It blocks until the
// link is up or refused.
func (l *dbusLink) dialSCO(device hfp.Address) (io.ReadWriteCloser, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_SCO)
	if err != nil {
		return nil, fmt.Errorf("bluez: sco socket: %w", err)
	}
	sa := rawSockaddrSCO{Family: unix.AF_BLUETOOTH}
	// bdaddr_t is little endian.
	for i := range device {
		sa.Bdaddr[i] = device[len(device)-1-i]
	}
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("bluez: sco connect %v: %w", device, errno)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluez: sco nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), "sco:"+device.String()), nil
}

func (l *dbusLink) property(device hfp.Address, name string) (dbus.Variant, error) {
	return l.device(device).GetProperty(deviceIface + "." + name)
}

func (l *dbusLink) bondState(device hfp.Address) hfp.BondState {
	v, err := l.property(device, "Paired")
	if err != nil {
		return hfp.BondNone
	}
	if paired, _ := v.Value().(bool); paired {
		return hfp.BondBonded
	}
	return hfp.BondNone
}

func (l *dbusLink) remoteUUIDs(device hfp.Address) []string {
	v, err := l.property(device, "UUIDs")
	if err != nil {
		return nil
	}
	uuids, _ := v.Value().([]string)
	for i, u := range uuids {
		uuids[i] = strings.ToLower(u)
	}
	return uuids
}

func (l *dbusLink) remoteName(device hfp.Address) string {
	v, err := l.property(device, "Alias")
	if err != nil {
		return ""
	}
	name, _ := v.Value().(string)
	return name
}

// watchBonds follows PropertiesChanged signals of Device1 objects and
// reports changes of the Paired property.
func (l *dbusLink) watchBonds(ctx context.Context, fn func(hfp.Address, hfp.BondState)) error {
	match := []dbus.MatchOption{
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := l.bus.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}
	defer l.bus.RemoveMatchSignal(match...)

	ch := make(chan *dbus.Signal, 16)
	l.bus.Signal(ch)
	defer l.bus.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-ch:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			if iface, _ := sig.Body[0].(string); iface != deviceIface {
				continue
			}
			changed, _ := sig.Body[1].(map[string]dbus.Variant)
			v, ok := changed["Paired"]
			if !ok {
				continue
			}
			device, err := addressFromPath(sig.Path)
			if err != nil {
				continue
			}
			state := hfp.BondNone
			if paired, _ := v.Value().(bool); paired {
				state = hfp.BondBonded
			}
			fn(device, state)
		}
	}
}

func (l *dbusLink) close() error {
	return l.bus.Close()
}
