package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/cmd/hfpd/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
	},
}
