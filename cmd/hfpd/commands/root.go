package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
)

const appName = "hfpd"

var (
	cfgFile      string
	contextName  string
	outputFormat string
	logLevel     string

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "hfpd",
	Short: "Bluetooth hands-free audio gateway",
	Long: `hfpd - hands-free profile audio gateway for BlueZ hosts.

The daemon registers the audio gateway profile with BlueZ, accepts
headsets and car kits, and publishes connection, audio and indicator
events over a WebSocket hub.

Configuration is stored in ~/.hfpag/hfpd/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Create a context and run the daemon
  hfpd config context set home adapter=hci0 listen=127.0.0.1:7723 data_dir=/var/lib/hfpd
  hfpd config context use home
  hfpd run

  # Follow events of a running daemon
  hfpd watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.hfpag/hfpd/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, yaml or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(priorityCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the selected context, or an empty one when none is
// configured so that flags and defaults still apply.
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	ctx, err := cfg.ResolveContext(contextName)
	if errors.Is(err, cli.ErrNoCurrentContext) {
		return &cli.Context{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

// setupLogging installs a text slog handler on stderr at the given level.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// outputResult writes result in the --output format.
func outputResult(result any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{Format: format})
}
