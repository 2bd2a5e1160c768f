package hfp

import (
	"encoding/json"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, false},
		{"aa:bb:cc:dd:ee:01", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}, false},
		{"00-11-22-33-44-55", Address{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, false},
		{"00_11_22_33_44_55", Address{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, false},
		{" 00:11:22:33:44:55 ", Address{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, false},
		{"00:11:22:33:44", Address{}, true},
		{"00:11:22:33:44:5", Address{}, true},
		{"00:11:22:33:44:GG", Address{}, true},
		{"", Address{}, true},
	}

	for _, tc := range tests {
		got, err := ParseAddress(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseAddress(%q) error = %v; wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAddress(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestAddress_String(t *testing.T) {
	a := Address{0x0A, 0x1B, 0x2C, 0x3D, 0x4E, 0x5F}
	if got := a.String(); got != "0A:1B:2C:3D:4E:5F" {
		t.Errorf("String() = %q", got)
	}
	if !(Address{}).IsZero() {
		t.Error("zero address IsZero() = false")
	}
	if a.IsZero() {
		t.Error("IsZero() = true for non-zero address")
	}
}

func TestAddress_JSON(t *testing.T) {
	type wrap struct {
		Device Address `json:"device"`
		Active Address `json:"active"`
	}
	in := wrap{Device: MustParseAddress("01:02:03:04:05:06")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `{"device":"01:02:03:04:05:06","active":""}` {
		t.Errorf("Marshal = %s", data)
	}

	var out wrap
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if out != in {
		t.Errorf("Unmarshal = %+v; want %+v", out, in)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"undefined", PriorityUndefined},
		{"off", PriorityOff},
		{"on", PriorityOn},
		{"auto_connect", PriorityAutoConnect},
		{"auto", PriorityAutoConnect},
	}
	for _, tc := range tests {
		got, err := ParsePriority(tc.in)
		if err != nil {
			t.Errorf("ParsePriority(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePriority(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParsePriority("maybe"); err == nil {
		t.Error("ParsePriority(maybe) error = nil")
	}
}

func TestStackEventType_String(t *testing.T) {
	tests := []struct {
		typ  StackEventType
		want string
	}{
		{EventConnectionStateChanged, "CONNECTION_STATE_CHANGED"},
		{EventUnknownAT, "UNKNOWN_AT"},
		{EventBIA, "BIA"},
		{StackEventType(99), "EVENT(99)"},
	}
	for _, tc := range tests {
		if got := tc.typ.String(); got != tc.want {
			t.Errorf("StackEventType(%d).String() = %q; want %q", tc.typ, got, tc.want)
		}
	}
}

func TestStateStrings(t *testing.T) {
	if got := StackSLCConnected.String(); got != "SLC_CONNECTED" {
		t.Errorf("StackSLCConnected = %q", got)
	}
	if got := StackAudioDisconnecting.String(); got != "AUDIO_DISCONNECTING" {
		t.Errorf("StackAudioDisconnecting = %q", got)
	}
	if got := StateDisconnecting.String(); got != "disconnecting" {
		t.Errorf("StateDisconnecting = %q", got)
	}
	if got := AudioConnected.String(); got != "audio_connected" {
		t.Errorf("AudioConnected = %q", got)
	}
	if got := CallAlerting.String(); got != "alerting" {
		t.Errorf("CallAlerting = %q", got)
	}
	if got := ATResponseOK.String(); got != "OK" {
		t.Errorf("ATResponseOK = %q", got)
	}
}
