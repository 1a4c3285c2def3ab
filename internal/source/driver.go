// Package source implements the four upstream usage probes. Each driver
// owns exactly one upstream call shape and reports either a snapshot,
// "no data" (nil, nil), or a classified failure. Drivers never retry;
// recovery policy lives in the orchestrator.
package source

import (
	"context"
	"net/http"

	"github.com/quotapace/quotapace/internal/githubauth"
	"github.com/quotapace/quotapace/internal/quota"
)

// Driver is one upstream usage probe.
type Driver interface {
	Name() string
	Source() quota.Source
	// Probe returns (nil, nil) when the upstream has no usable data for
	// this path, which is expected rather than a failure.
	Probe(ctx context.Context) (*quota.UsageSnapshot, error)
}

// Deps bundles the collaborators shared by all drivers.
type Deps struct {
	BaseURL  string
	Client   *http.Client
	Session  *githubauth.SessionManager
	Tokens   githubauth.TokenProvider
	Identity *githubauth.Identity
}
