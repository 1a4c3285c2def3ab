package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quotapace/quotapace/internal/bootstrap"
	"github.com/quotapace/quotapace/internal/json"
	"github.com/quotapace/quotapace/internal/logging"
)

var statusForce bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Resolve usage once and print the pacing report as JSON",
	RunE: func(c *cobra.Command, args []string) error {
		logging.SetupBaseLogger()

		result, err := bootstrap.Bootstrap(cfgFile)
		if err != nil {
			return err
		}
		engine := bootstrap.BuildEngine(result.Config)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		res, err := engine.Orchestrator.Resolve(ctx, statusForce)
		if err != nil {
			return fmt.Errorf("resolve usage: %w", err)
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusForce, "force", false, "bypass the freshness cache")
	rootCmd.AddCommand(statusCmd)
}
