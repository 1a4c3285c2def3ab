package source

import (
	"context"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/transport"
)

// PersonalBilling sums premium-request line items from the personal
// billing-usage endpoint using the long-lived token. Billing reports
// consumption only; remaining and ceiling stay unset.
type PersonalBilling struct {
	deps Deps
}

func NewPersonalBilling(deps Deps) *PersonalBilling { return &PersonalBilling{deps: deps} }

func (d *PersonalBilling) Name() string         { return "personal-billing probe" }
func (d *PersonalBilling) Source() quota.Source { return quota.SourcePersonalBilling }

func (d *PersonalBilling) Probe(ctx context.Context) (*quota.UsageSnapshot, error) {
	login, err := d.deps.Identity.Login(ctx)
	if err != nil {
		return nil, err
	}
	used, err := fetchBillingUsage(ctx, d.deps, d.deps.BaseURL+"/users/"+login+"/settings/billing/usage", d.Name())
	if err != nil {
		return nil, err
	}
	return &quota.UsageSnapshot{
		UsedRequests: used,
		Source:       quota.SourcePersonalBilling,
		FetchedAt:    time.Now(),
	}, nil
}

// fetchBillingUsage calls an enhanced-billing usage endpoint and sums the
// quantities of premium-request SKUs.
func fetchBillingUsage(ctx context.Context, deps Deps, url, probe string) (int, error) {
	token, err := deps.Tokens.Token()
	if err != nil {
		return 0, err
	}
	req, err := transport.NewRequest(ctx, http.MethodGet, url, token)
	if err != nil {
		return 0, err
	}
	resp, err := deps.Client.Do(req)
	if err != nil {
		return 0, quota.Transientf("%s: %v", probe, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyHTTPError(resp, probe)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, quota.Transientf("%s: read body: %v", probe, err)
	}

	return sumPremiumRequests(body), nil
}

// sumPremiumRequests filters billing line items down to the Copilot
// premium-request SKU and totals their quantities.
func sumPremiumRequests(body []byte) int {
	total := 0.0
	gjson.GetBytes(body, "usageItems").ForEach(func(_, item gjson.Result) bool {
		product := strings.ToLower(item.Get("product").String())
		sku := strings.ToLower(item.Get("sku").String())
		if product != "copilot" {
			return true
		}
		if !strings.Contains(sku, "premium") {
			return true
		}
		total += item.Get("quantity").Float()
		return true
	})
	return int(math.Round(total))
}

var _ Driver = (*PersonalBilling)(nil)
