// Package cli implements the reviewctl command line.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Run document reviews locally",
	Long: `reviewctl tracks uploads, runs the analysis pipeline and prints the
risk dashboard for a set of project report files without a server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
