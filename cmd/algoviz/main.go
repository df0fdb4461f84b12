// Command algoviz runs the collaborative algorithm visualization sync
// server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "algoviz",
		Short: "Realtime sync server for collaborative algorithm visualization",
		Long: `Algoviz keeps groups of viewers in sync while they step through
algorithm visualizations together.

Sessions are identified by short shareable codes. Each session carries
one canonical visualization state plus the cursors of everyone watching,
fanned out over WebSocket as participants move, scrub, and restart.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
