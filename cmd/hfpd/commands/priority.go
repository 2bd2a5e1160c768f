package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
	"github.com/haivivi/hfpag/pkg/hfp"
	"github.com/haivivi/hfpag/pkg/priority"
)

var priorityCmd = &cobra.Command{
	Use:   "priority",
	Short: "Read and write stored device priorities",
	Long: `Read and write the device priorities in the context's data directory.

Priorities are off, on or auto_connect. These commands open the database
directly, so they fail while a daemon holds it; use
"hfpd device priority" against a running daemon instead.`,
}

var priorityGetCmd = &cobra.Command{
	Use:   "get <address>",
	Short: "Show the priority of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := hfp.ParseAddress(args[0])
		if err != nil {
			return err
		}
		return withPriorityStore(cmd, func(ctx context.Context, s priority.Store) error {
			rec, err := s.Get(ctx, device)
			if errors.Is(err, priority.ErrNotFound) {
				rec = priority.Record{Device: device, Priority: hfp.PriorityUndefined}
			} else if err != nil {
				return err
			}
			return outputResult(newPriorityView(rec))
		})
	},
}

var prioritySetCmd = &cobra.Command{
	Use:   "set <address> <off|on|auto_connect>",
	Short: "Set the priority of a device",
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
		return withPriorityStore(cmd, func(ctx context.Context, s priority.Store) error {
			if err := s.Set(ctx, device, p); err != nil {
				return err
			}
			cli.PrintSuccess("%v priority set to %v", device, p)
			return nil
		})
	},
}

var priorityDeleteCmd = &cobra.Command{
	Use:   "delete <address>",
	Short: "Forget the priority of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := hfp.ParseAddress(args[0])
		if err != nil {
			return err
		}
		return withPriorityStore(cmd, func(ctx context.Context, s priority.Store) error {
			if err := s.Delete(ctx, device); err != nil {
				return err
			}
			cli.PrintSuccess("%v priority deleted", device)
			return nil
		})
	},
}

var priorityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPriorityStore(cmd, func(ctx context.Context, s priority.Store) error {
			records, err := collectRecords(ctx, s)
			if err != nil {
				return err
			}
			return outputResult(records)
		})
	},
}

var priorityImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Set priorities from a YAML or JSON file",
	Long: `Set priorities from a YAML or JSON file ("-" reads stdin):

  - device: "00:11:22:33:44:55"
    priority: auto_connect
  - device: "66:77:88:99:AA:BB"
    priority: off`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []priorityEntry
		if err := cli.LoadFile(args[0], &entries); err != nil {
			return err
		}
		return withPriorityStore(cmd, func(ctx context.Context, s priority.Store) error {
			n, err := importPriorities(ctx, s, entries)
			if err != nil {
				return err
			}
			cli.PrintSuccess("Imported %d priorities", n)
			return nil
		})
	},
}

func init() {
	priorityCmd.PersistentFlags().String("data-dir", "", "directory of the priority database (default: the context's data_dir)")

	priorityCmd.AddCommand(priorityGetCmd)
	priorityCmd.AddCommand(prioritySetCmd)
	priorityCmd.AddCommand(priorityDeleteCmd)
	priorityCmd.AddCommand(priorityListCmd)
	priorityCmd.AddCommand(priorityImportCmd)
}

// priorityEntry is one line of an import file.
type priorityEntry struct {
	Device   string `json:"device" yaml:"device"`
	Priority string `json:"priority" yaml:"priority"`
}

// importPriorities validates every entry before writing any of them.
func importPriorities(ctx context.Context, s priority.Store, entries []priorityEntry) (int, error) {
	type parsed struct {
		device hfp.Address
		p      hfp.Priority
	}
	all := make([]parsed, 0, len(entries))
	for i, e := range entries {
		device, err := hfp.ParseAddress(e.Device)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		p, err := hfp.ParsePriority(e.Priority)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		all = append(all, parsed{device, p})
	}
	for _, e := range all {
		if err := s.Set(ctx, e.device, e.p); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

// priorityView is a Record with the priority spelled out.
type priorityView struct {
	Device    string    `json:"device" yaml:"device"`
	Priority  string    `json:"priority" yaml:"priority"`
	UpdatedAt time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

func newPriorityView(rec priority.Record) priorityView {
	return priorityView{
		Device:    rec.Device.String(),
		Priority:  rec.Priority.String(),
		UpdatedAt: rec.UpdatedAt,
	}
}

func collectRecords(ctx context.Context, s priority.Store) ([]priorityView, error) {
	records := []priorityView{}
	for rec, err := range s.List(ctx) {
		if err != nil {
			return nil, err
		}
		records = append(records, newPriorityView(rec))
	}
	return records, nil
}

// withPriorityStore opens the on-disk store of the selected context for
// the duration of fn.
func withPriorityStore(cmd *cobra.Command, fn func(context.Context, priority.Store) error) error {
	dir, _ := cmd.Flags().GetString("data-dir")
	if dir == "" {
		ctx, err := getContext()
		if err != nil {
			return err
		}
		dir = ctx.DataDir
	}
	if dir == "" {
		return fmt.Errorf("no data directory: set data_dir in the context or pass --data-dir")
	}
	s, err := priority.NewBadger(priority.BadgerOptions{Dir: dir})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}
