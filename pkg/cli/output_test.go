package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Device string `json:"device" yaml:"device"`
	Active bool   `json:"active" yaml:"active"`
}

func TestOutput(t *testing.T) {
	v := sample{Device: "00:00:00:00:00:0A", Active: true}
	tests := []struct {
		format OutputFormat
		check  func(t *testing.T, out string)
	}{
		{FormatJSON, func(t *testing.T, out string) {
			var got sample
			if err := json.Unmarshal([]byte(out), &got); err != nil || got != v {
				t.Errorf("json = %q (%v)", out, err)
			}
			if !strings.Contains(out, "\n  \"device\"") {
				t.Errorf("json not indented: %q", out)
			}
		}},
		{FormatYAML, func(t *testing.T, out string) {
			if !strings.Contains(out, "00:00:00:00:00:0A") || !strings.Contains(out, "active: true") {
				t.Errorf("yaml = %q", out)
			}
		}},
		{"", func(t *testing.T, out string) {
			if !strings.Contains(out, "active: true") {
				t.Errorf("default = %q", out)
			}
		}},
		{FormatText, func(t *testing.T, out string) {
			if !strings.Contains(out, "active: true") {
				t.Errorf("text fallback = %q", out)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(v, OutputOptions{Format: tt.format, Writer: &buf}); err != nil {
				t.Fatal(err)
			}
			tt.check(t, buf.String())
		})
	}
}

func TestOutput_Text(t *testing.T) {
	var buf bytes.Buffer
	Output("hello", OutputOptions{Format: FormatText, Writer: &buf})
	Output([]byte(" world"), OutputOptions{Format: FormatText, Writer: &buf})
	if buf.String() != "hello world" {
		t.Errorf("got %q", buf.String())
	}
}

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Output(map[string]int{"n": 1}, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"n": 1`) {
		t.Errorf("file = %q", data)
	}
}

func TestOutput_Unsupported(t *testing.T) {
	if err := Output(1, OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatYAML, "yaml": FormatYAML, "json": FormatJSON, "text": FormatText} {
		if got, err := ParseOutputFormat(in); err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("table"); err == nil {
		t.Error("ParseOutputFormat(table) succeeded")
	}
}

func TestDecode(t *testing.T) {
	var a, b []sample
	if err := Decode([]byte(`[{"device":"x","active":true}]`), "p.json", &a); err != nil || len(a) != 1 || !a[0].Active {
		t.Errorf("json decode = %v, %v", a, err)
	}
	if err := Decode([]byte("- device: y\n  active: false\n"), "p.yaml", &b); err != nil || len(b) != 1 || b[0].Device != "y" {
		t.Errorf("yaml decode = %v, %v", b, err)
	}
	if err := Decode([]byte("{"), "p.json", &a); err == nil {
		t.Error("bad json decoded")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yml")
	os.WriteFile(path, []byte("device: z\n"), 0o600)
	var s sample
	if err := LoadFile(path, &s); err != nil || s.Device != "z" {
		t.Fatalf("LoadFile = %+v, %v", s, err)
	}
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), &s); err == nil {
		t.Fatal("missing file loaded")
	}
}
