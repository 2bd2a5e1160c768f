package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/broadcast"
	"github.com/haivivi/hfpag/pkg/cli"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the events of a running daemon",
	Long: `Follow connection, audio, active device, vendor and indicator events.

With -o json each event is printed as one JSON line.

Examples:
  hfpd watch
  hfpd watch --kind connection_state --kind audio_state
  hfpd watch --device 00:11:22:33:44:55 --codec msgpack`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		base, err := serverURL(cmd, ctx)
		if err != nil {
			return err
		}
		codecName, _ := cmd.Flags().GetString("codec")
		codec, err := broadcast.CodecByName(codecName)
		if err != nil {
			return err
		}
		kinds, _ := cmd.Flags().GetStringSlice("kind")
		device, _ := cmd.Flags().GetString("device")
		filter := eventFilter{kinds: kinds, device: strings.ToUpper(device)}

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		conn, err := broadcast.Dial(sigCtx, eventsURL(base), codec)
		if err != nil {
			return err
		}
		defer conn.Close()
		go func() {
			<-sigCtx.Done()
			conn.Close()
		}()

		st := cli.NewStyles(cli.DefaultTheme)
		jsonLines := outputFormat == string(cli.FormatJSON)
		fmt.Fprintln(os.Stderr, st.Help.Render("watching "+base.Host+", ctrl-c to stop"))
		for ev, err := range conn.Events() {
			if err != nil {
				if errors.Is(err, broadcast.ErrDecode) {
					fmt.Fprintln(os.Stderr, st.Bad.Render(err.Error()))
					continue
				}
				return err
			}
			if !filter.match(ev) {
				continue
			}
			if jsonLines {
				data, err := broadcast.JSON.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				continue
			}
			fmt.Println(formatEvent(ev, st))
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("server", "", "daemon address (default: the context's server or listen)")
	watchCmd.Flags().String("codec", "json", "wire codec: json or msgpack")
	watchCmd.Flags().StringSlice("kind", nil, "only show events of these kinds")
	watchCmd.Flags().String("device", "", "only show events of this device")
}

type eventFilter struct {
	kinds  []string
	device string
}

func (f eventFilter) match(ev *broadcast.Event) bool {
	if len(f.kinds) > 0 && !slices.Contains(f.kinds, string(ev.Kind)) {
		return false
	}
	if f.device != "" && ev.Device != f.device {
		return false
	}
	return true
}

// formatEvent renders one event as a colored log line.
func formatEvent(ev *broadcast.Event, st cli.Styles) string {
	ts := st.Help.Render(ev.Time.Local().Format("15:04:05.000"))
	kind := st.Label.Render(fmt.Sprintf("%-16s", ev.Kind))
	device := ev.Device
	if device == "" {
		device = "-"
	}

	var detail string
	switch ev.Kind {
	case broadcast.KindConnectionState, broadcast.KindAudioState:
		detail = st.State(ev.From) + " → " + st.State(ev.To)
	case broadcast.KindActiveDevice:
		if ev.Device == "" {
			detail = st.Help.Render("no active device")
		} else {
			detail = st.Good.Render("active")
		}
	case broadcast.KindVendorEvent:
		detail = fmt.Sprintf("%s company=%d type=%d args=%v", ev.Command, ev.CompanyID, ev.CommandType, ev.Args)
	case broadcast.KindHFIndicator:
		detail = fmt.Sprintf("indicator %d = %d", ev.IndicatorID, ev.IndicatorValue)
	}
	return strings.Join([]string{ts, kind, device, detail}, "  ")
}
