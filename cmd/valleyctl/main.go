// Command valleyctl inspects valley files and talks to the layout and
// simulation services without the web server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		bad.Fprintf(root.ErrOrStderr(), "  valleyctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "valleyctl",
		Short:         "Inspect hydro valley models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		parseCmd(),
		graphCmd(),
		fingerprintCmd(),
		layoutCmd(),
		simulateCmd(),
		datasetsCmd(),
	)

	return cmd
}
