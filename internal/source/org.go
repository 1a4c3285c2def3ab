package source

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

// OrgBilling mirrors PersonalBilling but against an organization's billing
// endpoint. The org comes from configuration, or is auto-detected by
// probing each org the credential can see until one answers.
type OrgBilling struct {
	deps Deps
	// orgName reads the currently configured org; empty means auto-detect.
	orgName func() string

	// detected caches the auto-detected org for the process lifetime.
	detected string
}

func NewOrgBilling(deps Deps, orgName func() string) *OrgBilling {
	return &OrgBilling{deps: deps, orgName: orgName}
}

func (d *OrgBilling) Name() string         { return "org-billing probe" }
func (d *OrgBilling) Source() quota.Source { return quota.SourceOrgBilling }

func (d *OrgBilling) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	org := d.orgName()
	if org == "" {
		org = d.detected
	}
	if org == "" {
		found, err := d.autoDetect(ctx)
		if err != nil {
			return nil, err
		}
		d.detected = found
		org = found
	}

	used, err := fetchBillingUsage(ctx, d.deps, d.orgUsageURL(org), d.Name())
	if err != nil {
		return nil, err
	}
	return &quota.UsageSnapshot{
		UsedRequests: used,
		Source:       quota.SourceOrgBilling,
		OrgName:      org,
		FetchedAt:    time.Now(),
	}, nil
}

func (d *OrgBilling) orgUsageURL(org string) string {
	return d.deps.BaseURL + "/organizations/" + org + "/settings/billing/usage"
}

// autoDetect walks the credential's orgs and returns the first one whose
// billing endpoint answers. Per-org permission failures are expected and
// skipped; only finding no usable org at all is an error.
func (d *OrgBilling) autoDetect(ctx context.Context) (string, error) {
	token, err := d.deps.Tokens.Token()
	if err != nil {
		return "", err
	}
	req, err := transport.NewRequest(ctx, http.MethodGet, d.deps.BaseURL+"/user/orgs", token)
	if err != nil {
		return "", err
	}
	resp, err := d.deps.Client.Do(req)
	if err != nil {
		return "", quota.Transientf("%s: list orgs: %v", d.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp, d.Name()+" (org listing)")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", quota.Transientf("%s: read org list: %v", d.Name(), err)
	}

	var candidates []string
	gjson.ParseBytes(body).ForEach(func(_, org gjson.Result) bool {
		if login := org.Get("login").String(); login != "" {
			candidates = append(candidates, login)
		}
		return true
	})
	if len(candidates) == 0 {
		return "", quota.Transient("business plan selected but the credential belongs to no organization")
	}

	for _, org := range candidates {
		if _, errProbe := fetchBillingUsage(ctx, d.deps, d.orgUsageURL(org), d.Name()); errProbe == nil {
			log.Infof("auto-detected billing org %s", org)
			return org, nil
		} else {
			log.Debugf("org %s not usable for billing: %v", org, errProbe)
		}
	}
	return "", quota.Transientf("no usable billing org among %d candidates; set org-name explicitly", len(candidates))
}

var _ Driver = (*OrgBilling)(nil)
