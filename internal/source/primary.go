package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quotapace/quotapace/internal/githubauth"
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

// PrimaryInternal queries the Copilot user endpoint with the delegated
// session. Plans without a counted premium-request pool (unlimited plans,
// no snapshot field) report no data instead of failing.
type PrimaryInternal struct {
	deps Deps
}

func NewPrimaryInternal(deps Deps) *PrimaryInternal { return &PrimaryInternal{deps: deps} }

func (d *PrimaryInternal) Name() string         { return "primary-internal probe" }
func (d *PrimaryInternal) Source() quota.Source { return quota.SourcePrimaryInternal }

func (d *PrimaryInternal) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	session, err := d.deps.Session.Token(ctx)
	if err != nil {
		if errors.Is(err, githubauth.ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}

	req, err := transport.NewRequest(ctx, http.MethodGet, d.deps.BaseURL+"/copilot_internal/user", session)
	if err != nil {
		return nil, err
	}
	resp, err := d.deps.Client.Do(req)
	if err != nil {
		return nil, quota.Transientf("%s: %v", d.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp, d.Name())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, quota.Transientf("%s: read body: %v", d.Name(), err)
	}

	snap := gjson.GetBytes(body, "quota_snapshots.premium_interactions")
	if !snap.Exists() || snap.Get("unlimited").Bool() {
		log.Debugf("%s: no counted premium quota on this plan", d.Name())
		return nil, nil
	}

	entitlement := int(snap.Get("entitlement").Int())
	remaining := int(snap.Get("remaining").Int())
	if entitlement <= 0 {
		return nil, nil
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > entitlement {
		remaining = entitlement
	}
	used := entitlement - remaining

	return &quota.UsageSnapshot{
		UsedRequests: used,
		Remaining:    &remaining,
		QuotaCeiling: &entitlement,
		Source:       quota.SourcePrimaryInternal,
		FetchedAt:    time.Now(),
	}, nil
}

var _ Driver = (*PrimaryInternal)(nil)
