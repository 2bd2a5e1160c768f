package headset

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.MaxConnections != 1 {
		t.Errorf("MaxConnections = %d; want 1", c.MaxConnections)
	}
	if c.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v; want 30s", c.ConnectTimeout)
	}
	if c.ClccResponseTimeout != 5*time.Second {
		t.Errorf("ClccResponseTimeout = %v; want 5s", c.ClccResponseTimeout)
	}
	if c.VoiceRecognitionTimeout != 5*time.Second {
		t.Errorf("VoiceRecognitionTimeout = %v; want 5s", c.VoiceRecognitionTimeout)
	}
	if c.DialingOutTimeout != 10*time.Second {
		t.Errorf("DialingOutTimeout = %v; want 10s", c.DialingOutTimeout)
	}
	if !c.InbandRingingSupported {
		t.Error("InbandRingingSupported = false; want true")
	}
}

func TestConfigNormalize(t *testing.T) {
	c, err := Config{}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.MaxConnections != 1 || c.ConnectTimeout != 30*time.Second || c.DialingOutTimeout != 10*time.Second {
		t.Errorf("zero config not defaulted: %+v", c)
	}
	if c.Logger == nil {
		t.Error("Logger not defaulted")
	}
	if c.InbandRingingSupported {
		t.Error("InbandRingingSupported = true for a zero config")
	}
	c, err = DefaultConfig().normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !c.InbandRingingSupported {
		t.Error("InbandRingingSupported cleared by normalize")
	}

	c, err = Config{MaxConnections: 3, ConnectTimeout: time.Second}.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.MaxConnections != 3 || c.ConnectTimeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", c)
	}

	for _, n := range []int{-1, 6, 100} {
		if _, err := (Config{MaxConnections: n}).normalize(); err == nil {
			t.Errorf("MaxConnections=%d: expected error", n)
		}
	}
}

func TestNew_RequiresNativeAndAdapter(t *testing.T) {
	if _, err := New(DefaultConfig(), Options{Adapter: newMockAdapter()}); err == nil {
		t.Error("New without Native: expected error")
	}
	if _, err := New(DefaultConfig(), Options{Native: newMockNative(&recorder{})}); err == nil {
		t.Error("New without Adapter: expected error")
	}
	if _, err := New(Config{MaxConnections: 9}, Options{Native: newMockNative(&recorder{}), Adapter: newMockAdapter()}); err == nil {
		t.Error("New with bad MaxConnections: expected error")
	}
}
