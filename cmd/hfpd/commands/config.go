package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context names one daemon setup: adapter, RFCOMM channel, connection
limit, listen address, data directory, operator and subscriber number.

Configuration is stored in ~/.hfpag/hfpd/config.yaml`,
}

var configContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage contexts",
}

var configContextSetCmd = &cobra.Command{
	Use:   "set <name> <key=value>...",
	Short: "Create or update a context",
	Long: `Create or update a context. Keys are the YAML field names:

  adapter, channel, max_connections, inband_ringing, listen, server,
  data_dir, operator, subscriber_number

Any other key is stored under extra.

Example:
  hfpd config context set car adapter=hci1 max_connections=2 inband_ringing=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg := getConfig()

		ctx, err := cfg.GetContext(name)
		if err != nil {
			ctx = &cli.Context{}
		}
		if err := applyAssignments(ctx, args[1:]); err != nil {
			return err
		}
		if err := cfg.SetContext(name, ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(name); err != nil {
				return err
			}
		}
		cli.PrintSuccess("Context %q saved", name)
		return nil
	},
}

var configContextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configContextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configContextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tADAPTER\tLISTEN\tDATA DIR")
		for _, name := range names {
			ctx, _ := cfg.GetContext(name)
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name,
				orDash(ctx.Adapter), orDash(ctx.Listen), orDash(ctx.DataDir))
		}
		return w.Flush()
	},
}

var configContextShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := contextName
		if len(args) > 0 {
			name = args[0]
		}
		ctx, err := getConfig().ResolveContext(name)
		if err != nil {
			return err
		}
		return outputResult(ctx)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(getConfig().Path())
		return nil
	},
}

func init() {
	configContextCmd.AddCommand(configContextSetCmd)
	configContextCmd.AddCommand(configContextUseCmd)
	configContextCmd.AddCommand(configContextDeleteCmd)
	configContextCmd.AddCommand(configContextListCmd)
	configContextCmd.AddCommand(configContextShowCmd)

	configCmd.AddCommand(configContextCmd)
	configCmd.AddCommand(configPathCmd)
}

// applyAssignments sets every key=value pair on ctx.
func applyAssignments(ctx *cli.Context, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid assignment %q, want key=value", pair)
		}
		if err := ctx.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
