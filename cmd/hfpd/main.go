// Command hfpd runs the hands-free audio gateway on a BlueZ host and
// inspects a running daemon.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/hfpag/cmd/hfpd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
