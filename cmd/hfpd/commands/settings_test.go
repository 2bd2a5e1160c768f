package commands

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
)

func newRunFlagsCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	return cmd
}

func TestResolveSettings_Defaults(t *testing.T) {
	st, err := resolveSettings(newRunFlagsCmd(t), &cli.Context{})
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	if st.MaxConnections != 1 {
		t.Errorf("MaxConnections = %d; want 1", st.MaxConnections)
	}
	if !st.InbandRinging {
		t.Error("InbandRinging = false; want true")
	}
	if st.Listen != defaultListen {
		t.Errorf("Listen = %q; want %q", st.Listen, defaultListen)
	}
	if st.DataDir != "" {
		t.Errorf("DataDir = %q; want empty", st.DataDir)
	}
}

func TestResolveSettings_ContextThenFlags(t *testing.T) {
	off := false
	ctx := &cli.Context{
		Adapter:          "hci1",
		Channel:          7,
		MaxConnections:   2,
		InbandRinging:    &off,
		Listen:           ":9000",
		DataDir:          "/var/lib/hfpd",
		Operator:         "Carrier",
		SubscriberNumber: "+15550100",
	}

	st, err := resolveSettings(newRunFlagsCmd(t), ctx)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	want := daemonSettings{
		Adapter:          "hci1",
		Channel:          7,
		MaxConnections:   2,
		InbandRinging:    false,
		Listen:           ":9000",
		DataDir:          "/var/lib/hfpd",
		Operator:         "Carrier",
		SubscriberNumber: "+15550100",
	}
	if st != want {
		t.Errorf("context only:\n got %+v\nwant %+v", st, want)
	}

	cmd := newRunFlagsCmd(t,
		"--adapter", "hci2",
		"--max-connections", "3",
		"--inband-ringing=true",
		"--listen", "127.0.0.1:1",
		"--number", "+15550199",
	)
	st, err = resolveSettings(cmd, ctx)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	want.Adapter = "hci2"
	want.MaxConnections = 3
	want.InbandRinging = true
	want.Listen = "127.0.0.1:1"
	want.SubscriberNumber = "+15550199"
	if st != want {
		t.Errorf("with flags:\n got %+v\nwant %+v", st, want)
	}
}

func TestResolveSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too many connections", []string{"--max-connections", "6"}},
		{"negative connections", []string{"--max-connections", "-1"}},
		{"channel", []string{"--channel", "31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveSettings(newRunFlagsCmd(t, tt.args...), &cli.Context{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		ctx    cli.Context
		want   string
		events string
	}{
		{"default", "", cli.Context{}, "http://" + defaultListen, "ws://" + defaultListen + "/events"},
		{"listen", "", cli.Context{Listen: "127.0.0.1:9000"}, "http://127.0.0.1:9000", "ws://127.0.0.1:9000/events"},
		{"server over listen", "", cli.Context{Listen: ":1", Server: "gw.local:7723"}, "http://gw.local:7723", "ws://gw.local:7723/events"},
		{"flag over context", "https://gw.example.com/hfp/", cli.Context{Server: "x:1"}, "https://gw.example.com/hfp", "wss://gw.example.com/hfp/events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "status"}
			cmd.Flags().String("server", "", "")
			if tt.flag != "" {
				if err := cmd.Flags().Set("server", tt.flag); err != nil {
					t.Fatal(err)
				}
			}
			u, err := serverURL(cmd, &tt.ctx)
			if err != nil {
				t.Fatalf("serverURL: %v", err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("serverURL = %q; want %q", got, tt.want)
			}
			if got := eventsURL(u); got != tt.events {
				t.Errorf("eventsURL = %q; want %q", got, tt.events)
			}
		})
	}
}

func TestServerURL_BadScheme(t *testing.T) {
	cmd := &cobra.Command{Use: "status"}
	cmd.Flags().String("server", "ftp://gw", "")
	if _, err := serverURL(cmd, &cli.Context{}); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestApplyAssignments(t *testing.T) {
	ctx := &cli.Context{}
	err := applyAssignments(ctx, []string{"adapter=hci1", "max_connections=2", "inband_ringing=false", "color=blue"})
	if err != nil {
		t.Fatalf("applyAssignments: %v", err)
	}
	if ctx.Adapter != "hci1" || ctx.MaxConnections != 2 {
		t.Errorf("ctx = %+v", ctx)
	}
	if ctx.InbandRinging == nil || *ctx.InbandRinging {
		t.Errorf("InbandRinging = %v; want false", ctx.InbandRinging)
	}
	if got := ctx.GetExtra("color"); got != "blue" {
		t.Errorf("extra color = %q; want blue", got)
	}

	for _, bad := range []string{"adapter", "=x", "channel=abc"} {
		if err := applyAssignments(&cli.Context{}, []string{bad}); err == nil {
			t.Errorf("applyAssignments(%q): expected error", bad)
		}
	}
}
