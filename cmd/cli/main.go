// Command scqc runs single-cell quality control and clustering on count
// matrices stored as xlsx or csv.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "scqc",
		Short:         "Single-cell quality control and clustering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		newQCCmd(opts),
		newClusterCmd(opts),
		newRunsCmd(opts),
	)
	return rootCmd
}
