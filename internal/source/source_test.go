package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/sjson"

	"github.com/quotapace/quotapace/internal/githubauth"
	"github.com/quotapace/quotapace/internal/quota"
)

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

const userFixture = `{
  "quota_snapshots": {
    "premium_interactions": {
      "entitlement": 300,
      "remaining": 120,
      "unlimited": false
    }
  }
}`

const orgSnapshotFixture = `{
  "premium_requests": {
    "used": 90,
    "limit": 500,
    "unlimited": false
  },
  "reset_date": "2025-05-01"
}`

const billingFixture = `{
  "usageItems": [
    {"product": "copilot", "sku": "copilot_premium_requests", "quantity": 37.4},
    {"product": "copilot", "sku": "copilot_premium_requests_overage", "quantity": 4.2},
    {"product": "copilot", "sku": "copilot_seats", "quantity": 12},
    {"product": "actions", "sku": "actions_premium_minutes", "quantity": 900}
  ]
}`

// newUpstream builds a fake API serving the session exchange plus whatever
// extra routes the test registers.
func newUpstream(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, Deps) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/copilot_internal/v2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token": "sess-abc"}`))
	})
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := srv.Client()
	tokens := staticToken("gho_test")
	deps := Deps{
		BaseURL:  srv.URL,
		Client:   client,
		Session:  githubauth.NewSessionManager(srv.URL, client, tokens),
		Tokens:   tokens,
		Identity: githubauth.NewIdentity(srv.URL, client, tokens),
	}
	return srv, deps
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestPrimaryInternalParsesQuota(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/user": jsonHandler(userFixture),
	})
	snap, err := NewPrimaryInternal(deps).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if snap.UsedRequests != 180 {
		t.Errorf("used = %d, want 180", snap.UsedRequests)
	}
	if snap.Remaining == nil || *snap.Remaining != 120 {
		t.Errorf("remaining = %v, want 120", snap.Remaining)
	}
	if snap.QuotaCeiling == nil || *snap.QuotaCeiling != 300 {
		t.Errorf("ceiling = %v, want 300", snap.QuotaCeiling)
	}
	if snap.Source != quota.SourcePrimaryInternal {
		t.Errorf("source = %s", snap.Source)
	}
}

func TestPrimaryInternalUnlimitedPlanIsNoData(t *testing.T) {
	body, _ := sjson.Set(userFixture, "quota_snapshots.premium_interactions.unlimited", true)
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/user": jsonHandler(body),
	})
	snap, err := NewPrimaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestPrimaryInternalMissingSnapshotIsNoData(t *testing.T) {
	body, _ := sjson.Delete(userFixture, "quota_snapshots.premium_interactions")
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/user": jsonHandler(body),
	})
	snap, err := NewPrimaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestPrimaryInternalClampsNegativeRemaining(t *testing.T) {
	body, _ := sjson.Set(userFixture, "quota_snapshots.premium_interactions.remaining", -8)
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/user": jsonHandler(body),
	})
	snap, err := NewPrimaryInternal(deps).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Remaining == nil || *snap.Remaining != 0 {
		t.Errorf("remaining = %v, want 0", snap.Remaining)
	}
	if snap.UsedRequests != 300 {
		t.Errorf("used = %d, want 300", snap.UsedRequests)
	}
}

func TestPrimaryInternalNoSubscriptionIsNoData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/copilot_internal/v2/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := staticToken("gho_test")
	deps := Deps{
		BaseURL: srv.URL,
		Client:  srv.Client(),
		Session: githubauth.NewSessionManager(srv.URL, srv.Client(), tokens),
		Tokens:  tokens,
	}
	snap, err := NewPrimaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestPrimaryInternalRateLimitClassified(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/user": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		},
	})
	_, err := NewPrimaryInternal(deps).Probe(context.Background())
	if quota.CodeOf(err) != quota.CodeRateLimited {
		t.Fatalf("err = %v, want rate_limited", err)
	}
	qe, _ := quota.AsError(err)
	if qe.RetryAfter.Seconds() != 30 {
		t.Errorf("RetryAfter = %v, want 30s", qe.RetryAfter)
	}
}

func TestSecondaryInternalParsesOrgSnapshot(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/org_snapshot": jsonHandler(orgSnapshotFixture),
	})
	snap, err := NewSecondaryInternal(deps).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.UsedRequests != 90 {
		t.Errorf("used = %d, want 90", snap.UsedRequests)
	}
	if snap.Remaining == nil || *snap.Remaining != 410 {
		t.Errorf("remaining = %v, want 410", snap.Remaining)
	}
	if snap.ResetDate != "2025-05-01" {
		t.Errorf("reset date = %q", snap.ResetDate)
	}
}

func TestSecondaryInternalAbsentEndpointIsNoData(t *testing.T) {
	_, deps := newUpstream(t, nil) // mux 404s the snapshot path
	snap, err := NewSecondaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestSecondaryInternalUnlimitedIsNoData(t *testing.T) {
	body, _ := sjson.Set(orgSnapshotFixture, "premium_requests.unlimited", true)
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/org_snapshot": jsonHandler(body),
	})
	snap, err := NewSecondaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestSecondaryInternalZeroLimitIsNoData(t *testing.T) {
	body, _ := sjson.Set(orgSnapshotFixture, "premium_requests.limit", 0)
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/copilot_internal/org_snapshot": jsonHandler(body),
	})
	snap, err := NewSecondaryInternal(deps).Probe(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", snap, err)
	}
}

func TestPersonalBillingSumsPremiumSKUs(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/user":                                jsonHandler(`{"login": "octocat"}`),
		"/users/octocat/settings/billing/usage": jsonHandler(billingFixture),
	})
	snap, err := NewPersonalBilling(deps).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 37.4 + 4.2 premium items; seats and non-copilot products excluded.
	if snap.UsedRequests != 42 {
		t.Errorf("used = %d, want 42", snap.UsedRequests)
	}
	if snap.Source != quota.SourcePersonalBilling {
		t.Errorf("source = %s", snap.Source)
	}
}

func TestPersonalBillingForbiddenCarriesScopeHint(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/user": jsonHandler(`{"login": "octocat"}`),
		"/users/octocat/settings/billing/usage": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Accepted-Oauth-Scopes", "read:billing")
			http.Error(w, "forbidden", http.StatusForbidden)
		},
	})
	_, err := NewPersonalBilling(deps).Probe(context.Background())
	if quota.CodeOf(err) != quota.CodeForbidden {
		t.Fatalf("err = %v, want forbidden", err)
	}
	qe, _ := quota.AsError(err)
	if qe.ScopeHint != "read:billing" {
		t.Errorf("scope hint = %q, want advertised scopes", qe.ScopeHint)
	}
}

func TestOrgBillingUsesConfiguredOrg(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/organizations/acme/settings/billing/usage": jsonHandler(billingFixture),
	})
	snap, err := NewOrgBilling(deps, func() string { return "acme" }).Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.OrgName != "acme" || snap.UsedRequests != 42 {
		t.Errorf("got %s/%d, want acme/42", snap.OrgName, snap.UsedRequests)
	}
}

func TestOrgBillingAutoDetectSkipsUnusableOrgs(t *testing.T) {
	listCalls := 0
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/user/orgs": func(w http.ResponseWriter, r *http.Request) {
			listCalls++
			_, _ = w.Write([]byte(`[{"login": "locked"}, {"login": "open"}]`))
		},
		"/organizations/locked/settings/billing/usage": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		},
		"/organizations/open/settings/billing/usage": jsonHandler(billingFixture),
	})
	drv := NewOrgBilling(deps, func() string { return "" })

	snap, err := drv.Probe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.OrgName != "open" {
		t.Errorf("org = %q, want the first usable candidate", snap.OrgName)
	}

	// Second probe reuses the detected org without re-listing.
	if _, err := drv.Probe(context.Background()); err != nil {
		t.Fatal(err)
	}
	if listCalls != 1 {
		t.Errorf("org list fetched %d times, want 1", listCalls)
	}
}

func TestOrgBillingNoOrgsIsTransient(t *testing.T) {
	_, deps := newUpstream(t, map[string]http.HandlerFunc{
		"/user/orgs": jsonHandler(`[]`),
	})
	_, err := NewOrgBilling(deps, func() string { return "" }).Probe(context.Background())
	if quota.CodeOf(err) != quota.CodeTransient {
		t.Fatalf("err = %v, want transient", err)
	}
}
