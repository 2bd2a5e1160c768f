// Package bluez connects the headset service to BlueZ on Linux.
//
// The Backend registers the Hands-Free audio gateway profile with
// org.bluez.ProfileManager1 and receives RFCOMM sockets through
// org.bluez.Profile1.NewConnection. Each socket carries one AT session: the
// service level connection handshake is answered here, every other command
// is decoded with package atcmd and handed to the service as a stack event.
// SCO audio links are opened directly on a Bluetooth socket.
//
// Backend implements headset.Native and headset.Adapter.
package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/haivivi/hfpag/pkg/atcmd"
	"github.com/haivivi/hfpag/pkg/hfp"
)

var (
	// ErrClosed is returned once the backend has been cleaned up.
	ErrClosed = errors.New("bluez: closed")
	// ErrUnsupported is returned by Open on platforms without BlueZ.
	ErrUnsupported = errors.New("bluez: unsupported platform")

	errAlreadyConnected   = errors.New("bluez: device already connected")
	errTooManyConnections = errors.New("bluez: too many connections")
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	propsIface          = "org.freedesktop.DBus.Properties"
)

// DefaultChannel is the RFCOMM channel the gateway profile listens on.
const DefaultChannel = 13

// DefaultFeatures are the AG features advertised in +BRSF.
const DefaultFeatures = atcmd.AGFeatureThreeWay |
	atcmd.AGFeatureVoiceRecog |
	atcmd.AGFeatureInbandRing |
	atcmd.AGFeatureRejectCall |
	atcmd.AGFeatureEnhancedStatus |
	atcmd.AGFeatureEnhancedControl |
	atcmd.AGFeatureExtendedErrors |
	atcmd.AGFeatureHFIndicators

// Config configures a Backend.
type Config struct {
	// Adapter is the local controller name, "hci0" by default.
	Adapter string
	// Channel is the RFCOMM server channel, DefaultChannel by default.
	Channel int
	// Features is the AG feature mask, DefaultFeatures by default.
	Features int
	// ProfilePath is the object path the Profile1 implementation is
	// exported on.
	ProfilePath string
}

func (c *Config) normalize() {
	if c.Adapter == "" {
		c.Adapter = "hci0"
	}
	if c.Channel <= 0 || c.Channel > 30 {
		c.Channel = DefaultChannel
	}
	if c.Features == 0 {
		c.Features = DefaultFeatures
	}
	if c.ProfilePath == "" {
		c.ProfilePath = "/org/haivivi/hfpag/profile"
	}
}

// sdpFeatures maps the +BRSF mask to the SupportedFeatures SDP attribute.
func sdpFeatures(brsf int) uint16 {
	f := uint16(brsf & 0x1f)
	if brsf&atcmd.AGFeatureCodecNegotiate != 0 {
		f |= 1 << 5
	}
	return f
}

// devicePath returns the BlueZ object path of a remote device.
func devicePath(adapter string, device hfp.Address) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter,
		strings.ReplaceAll(device.String(), ":", "_")))
}

// addressFromPath parses the device address from ".../dev_XX_XX_XX_XX_XX_XX".
func addressFromPath(p dbus.ObjectPath) (hfp.Address, error) {
	s := string(p)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return hfp.Address{}, fmt.Errorf("bluez: not a device path: %s", p)
	}
	return hfp.ParseAddress(strings.ReplaceAll(s[i+5:], "_", ":"))
}
