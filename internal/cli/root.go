// Package cli defines the quotapace command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quotapace",
	Short: "Track Copilot premium-request usage and pace your remaining quota",
	Long: `quotapace resolves how many metered premium requests your GitHub
Copilot plan has consumed this month and turns the remainder into a daily
spending plan. Run "quotapace serve" for the long-running service or
"quotapace status" for a one-shot report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/quotapace/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
