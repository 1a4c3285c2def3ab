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

// SecondaryInternal reads the org-snapshot endpoint with the delegated
// session. Only consulted when the primary probe reports no data; reports
// no data itself when the premium-request field is absent or unlimited.
type SecondaryInternal struct {
	deps Deps
}

func NewSecondaryInternal(deps Deps) *SecondaryInternal { return &SecondaryInternal{deps: deps} }

func (d *SecondaryInternal) Name() string         { return "secondary-internal probe" }
func (d *SecondaryInternal) Source() quota.Source { return quota.SourceSecondaryInternal }

func (d *SecondaryInternal) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	session, err := d.deps.Session.Token(ctx)
	if err != nil {
		if errors.Is(err, githubauth.ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}

	req, err := transport.NewRequest(ctx, http.MethodGet, d.deps.BaseURL+"/copilot_internal/org_snapshot", session)
	if err != nil {
		return nil, err
	}
	resp, err := d.deps.Client.Do(req)
	if err != nil {
		return nil, quota.Transientf("%s: %v", d.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Endpoint absent on this deployment: nothing to read here.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp, d.Name())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, quota.Transientf("%s: read body: %v", d.Name(), err)
	}

	pr := gjson.GetBytes(body, "premium_requests")
	if !pr.Exists() || pr.Get("unlimited").Bool() {
		log.Debugf("%s: no counted premium quota in org snapshot", d.Name())
		return nil, nil
	}

	limit := int(pr.Get("limit").Int())
	used := int(pr.Get("used").Int())
	if limit <= 0 {
		return nil, nil
	}
	if used < 0 {
		used = 0
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &quota.UsageSnapshot{
		UsedRequests: used,
		Remaining:    &remaining,
		QuotaCeiling: &limit,
		Source:       quota.SourceSecondaryInternal,
		ResetDate:    gjson.GetBytes(body, "reset_date").String(),
		FetchedAt:    time.Now(),
	}, nil
}

var _ Driver = (*SecondaryInternal)(nil)
