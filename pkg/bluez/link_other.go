//go:build !linux

package bluez

// Open always fails: BlueZ is only available on Linux.
func Open(cfg Config) (*Backend, error) {
	return nil, ErrUnsupported
}
