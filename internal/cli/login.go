package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quotapace/quotapace/internal/bootstrap"
	"github.com/quotapace/quotapace/internal/githubauth"
	"github.com/quotapace/quotapace/internal/logging"
)

var loginNoBrowser bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with GitHub via the device flow",
	Long: `Authenticate with GitHub using the OAuth device flow.

You will be prompted to visit a URL and enter a code. The resulting token
is stored next to the config file and used for billing-usage queries.`,
	RunE: func(c *cobra.Command, args []string) error {
		logging.SetupBaseLogger()

		result, err := bootstrap.Bootstrap(cfgFile)
		if err != nil {
			return err
		}
		store := githubauth.NewFileTokenStore(result.Config.Get().AuthDir)

		return githubauth.DeviceFlowLogin(context.Background(), store, githubauth.LoginOptions{
			NoBrowser: loginNoBrowser,
			Prompt: func(userCode, verificationURL string) {
				fmt.Fprintf(os.Stdout, "Visit %s and enter code %s\n", verificationURL, userCode)
			},
		})
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "do not open the verification URL in a browser")
	rootCmd.AddCommand(loginCmd)
}
