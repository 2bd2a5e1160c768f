package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
	"github.com/haivivi/hfpag/pkg/headset"
)

const statusWidth = 72

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running daemon",
	Long: `Show the gateway, device and phone state of a running daemon.

With -o yaml or -o json the raw snapshot is printed instead of the
framed view.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		base, err := serverURL(cmd, ctx)
		if err != nil {
			return err
		}
		snap, err := newAPIClient(base).Status(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat != string(cli.FormatText) {
			return outputResult(snap)
		}
		fmt.Println(renderStatus(snap, base.Host, cli.NewStyles(cli.DefaultTheme), statusWidth))
		return nil
	},
}

func init() {
	statusCmd.Flags().String("server", "", "daemon address (default: the context's server or listen)")
}

func renderStatus(snap headset.Snapshot, server string, st cli.Styles, width int) string {
	active := "none"
	if !snap.ActiveDevice.IsZero() {
		active = snap.ActiveDevice.String()
	}
	gateway := []string{
		"active device   " + active,
		"audio route     " + onOff(snap.AudioRouteAllowed, "allowed", "blocked"),
		"in-band ring    " + onOff(snap.InbandRinging, "on", "off"),
		"force sco       " + onOff(snap.ForceScoAudio, "on", "off"),
		"voice recog     " + onOff(snap.VoiceRecognition, "started", "stopped"),
		"virtual call    " + onOff(snap.VirtualCall, "started", "stopped"),
	}
	if snap.DialingOut {
		gateway = append(gateway, "dialing out     "+st.Warn.Render("pending"))
	}

	devices := make([]string, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		marker := " "
		if d.Active {
			marker = st.Good.Render("*")
		}
		devices = append(devices, fmt.Sprintf("%s %s  %s  %s  %s",
			marker, d.Device, st.State(d.State), st.State(d.Audio), st.Help.Render(d.Priority)))
	}

	p := snap.Phone
	phone := []string{
		fmt.Sprintf("service %d  roam %d  signal %d/5  battery %d/5", p.Service, p.Roam, p.Signal, p.Battery),
		fmt.Sprintf("call %s  active %d  held %d", p.CallState, p.NumActive, p.NumHeld),
	}
	if !p.SimLoaded {
		phone = append(phone, st.Warn.Render("no sim"))
	}

	return cli.Frame{
		Styles: st,
		Title:  "hfpd",
		Status: server,
		Sections: []cli.Section{
			{Label: "Gateway", Lines: gateway},
			{Label: "Devices", Lines: devices},
			{Label: "Phone", Lines: phone},
		},
		Help: strings.Join([]string{"* active", "-o yaml for raw output"}, "  "),
	}.Render(width)
}

func onOff(b bool, on, off string) string {
	if b {
		return on
	}
	return off
}
