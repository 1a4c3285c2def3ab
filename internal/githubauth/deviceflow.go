package githubauth

import (
	"context"
	"fmt"

	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"

	log "github.com/quotapace/quotapace/internal/logging"
)

// Public OAuth app client id used for the device authorization grant.
const deviceFlowClientID = "Iv1.b507a08c87ecfe98"

var githubEndpoint = oauth2.Endpoint{
	AuthURL:       "https://github.com/login/oauth/authorize",
	TokenURL:      "https://github.com/login/oauth/access_token",
	DeviceAuthURL: "https://github.com/login/device/code",
}

// LoginOptions controls the interactive device-flow login.
type LoginOptions struct {
	NoBrowser bool
	// Prompt receives the user code and verification URL for display.
	Prompt func(userCode, verificationURL string)
}

// DeviceFlowLogin runs the GitHub device authorization grant and persists
// the resulting long-lived token into store.
func DeviceFlowLogin(ctx context.Context, store *FileTokenStore, opts LoginOptions) error {
	cfg := oauth2.Config{
		ClientID: deviceFlowClientID,
		Endpoint: githubEndpoint,
		Scopes:   []string{"read:user", "read:org"},
	}

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("device authorization request: %w", err)
	}

	verificationURL := da.VerificationURIComplete
	if verificationURL == "" {
		verificationURL = da.VerificationURI
	}
	if opts.Prompt != nil {
		opts.Prompt(da.UserCode, verificationURL)
	}
	if !opts.NoBrowser {
		if errOpen := open.Run(verificationURL); errOpen != nil {
			log.WithError(errOpen).Debug("could not open browser, continue manually")
		}
	}

	token, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return fmt.Errorf("device token poll: %w", err)
	}

	if err := store.Save(token.AccessToken); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	log.Infof("github token saved")
	return nil
}
