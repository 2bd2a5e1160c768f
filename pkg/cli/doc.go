// Package cli holds the pieces shared by the hfpd commands: named
// configuration contexts stored under ~/.hfpag/<app>/, result output as
// YAML or JSON, and lipgloss styles for terminal rendering.
//
// Contexts work like kubectl contexts. A context names one daemon setup
// (adapter, listen address, data directory, network identity) and one is
// current:
//
//	cfg, err := cli.LoadConfig("hfpd")
//	ctx, err := cfg.ResolveContext(name)
//	cli.Output(snapshot, cli.OutputOptions{Format: cli.FormatJSON})
package cli
