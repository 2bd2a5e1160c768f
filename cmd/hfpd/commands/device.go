package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
	"github.com/haivivi/hfpag/pkg/hfp"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Control devices of a running daemon",
}

func newDeviceActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := hfp.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Do(cmd.Context(), "POST", "/devices/"+device.String()+"/"+action, nil); err != nil {
				return err
			}
			cli.PrintSuccess("%s %v", use, device)
			return nil
		},
	}
}

var deviceBatteryCmd = &cobra.Command{
	Use:   "battery <level>",
	Short: "Report the battery level to connected devices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		scale, err := cmd.Flags().GetInt("scale")
		if err != nil {
			return err
		}
		c, err := daemonClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Do(cmd.Context(), "POST", "/battery", batteryRequest{Level: level, Scale: scale}); err != nil {
			return err
		}
		cli.PrintSuccess("battery %d/%d reported", level, scale)
		return nil
	},
}

var devicePriorityCmd = &cobra.Command{
	Use:   "priority <address> <off|on|auto_connect>",
	Short: "Set a device priority through the daemon",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := hfp.ParseAddress(args[0])
		if err != nil {
			return err
		}
		p, err := hfp.ParsePriority(args[1])
		if err != nil {
			return err
		}
		c, err := daemonClient(cmd)
		if err != nil {
			return err
		}
		path := "/devices/" + device.String() + "/priority"
		if err := c.Do(cmd.Context(), "PUT", path, priorityRequest{Priority: p.String()}); err != nil {
			return err
		}
		cli.PrintSuccess("%v priority set to %v", device, p)
		return nil
	},
}

func newActionCmd(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Do(cmd.Context(), method, path, nil); err != nil {
				return err
			}
			cli.PrintSuccess("%s", short)
			return nil
		},
	}
}

func init() {
	deviceBatteryCmd.Flags().Int("scale", 100, "full scale of the level")
	deviceCmd.PersistentFlags().String("server", "", "daemon address (default: the context's server or listen)")

	deviceCmd.AddCommand(newDeviceActionCmd("connect", "Connect a device", "connect"))
	deviceCmd.AddCommand(newDeviceActionCmd("disconnect", "Disconnect a device", "disconnect"))
	deviceCmd.AddCommand(newDeviceActionCmd("activate", "Make a device the active one", "active"))
	deviceCmd.AddCommand(devicePriorityCmd)
	deviceCmd.AddCommand(deviceBatteryCmd)
	deviceCmd.AddCommand(newActionCmd("audio-on", "Open audio on the active device", "POST", "/audio/connect"))
	deviceCmd.AddCommand(newActionCmd("audio-off", "Close audio on the active device", "POST", "/audio/disconnect"))
	deviceCmd.AddCommand(newActionCmd("virtual-call-start", "Start a virtual call", "POST", "/virtual-call/start"))
	deviceCmd.AddCommand(newActionCmd("virtual-call-stop", "Stop the virtual call", "POST", "/virtual-call/stop"))
}

func daemonClient(cmd *cobra.Command) (*apiClient, error) {
	ctx, err := getContext()
	if err != nil {
		return nil, err
	}
	base, err := serverURL(cmd, ctx)
	if err != nil {
		return nil, err
	}
	return newAPIClient(base), nil
}
