// Package resolve implements the resolution orchestrator: one current
// usage snapshot (or a classified terminal error) per cycle, produced by
// walking the driver chain with caching and deterministic failure handling.
package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/quotapace/quotapace/internal/config"
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/pacing"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/source"
)

// IdentityRefresher drops a cached derived identity so the next probe
// re-resolves it. Satisfied by githubauth.Identity.
type IdentityRefresher interface {
	Invalidate()
}

// Orchestrator owns the freshness cache, the session baseline and the
// fallback chain across the four drivers. It is the single writer of the
// cached resolution; readers see either the old or the new value, never a
// partial one.
type Orchestrator struct {
	cfg      func() *config.Config
	identity IdentityRefresher

	primary   source.Driver
	secondary source.Driver
	personal  source.Driver
	org       source.Driver

	freshness time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	cached    *quota.Resolution
	fetchedAt time.Time
	baseline  *int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the time source used for cache freshness and pacing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithFreshness overrides the cache freshness window.
func WithFreshness(d time.Duration) Option {
	return func(o *Orchestrator) { o.freshness = d }
}

func New(cfg func() *config.Config, identity IdentityRefresher, primary, secondary, personal, org source.Driver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		identity:  identity,
		primary:   primary,
		secondary: secondary,
		personal:  personal,
		org:       org,
		freshness: config.DefaultFreshnessWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current returns the last published resolution, if any.
func (o *Orchestrator) Current() *quota.Resolution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cached
}

// InvalidateCache forces the next Resolve to hit the upstream. Called on
// configuration change.
func (o *Orchestrator) InvalidateCache() {
	o.mu.Lock()
	o.fetchedAt = time.Time{}
	o.mu.Unlock()
}

// Resolve runs one resolution cycle. With force unset, a snapshot inside
// the freshness window is returned without any upstream traffic.
func (o *Orchestrator) Resolve(ctx context.Context, force bool) (*quota.Resolution, error) {
	if !force {
		o.mu.RLock()
		if o.cached != nil && o.now().Sub(o.fetchedAt) <= o.freshness {
			cached := o.cached
			o.mu.RUnlock()
			return cached, nil
		}
		o.mu.RUnlock()
	}

	snapshot, err := o.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return o.publish(snapshot), nil
}

// fetch walks the ordered chain: the delegated-session path always runs
// first and wins whenever it yields data; the token path runs only when
// both session probes report none.
func (o *Orchestrator) fetch(ctx context.Context) (*quota.UsageSnapshot, error) {
	type step struct {
		driver source.Driver
		// applicable gates the step on the outcome of earlier steps.
		applicable func(prev *quota.UsageSnapshot) bool
	}
	sessionPath := []step{
		{o.primary, func(*quota.UsageSnapshot) bool { return true }},
		{o.secondary, func(prev *quota.UsageSnapshot) bool { return prev == nil }},
	}

	var got *quota.UsageSnapshot
	for _, s := range sessionPath {
		if !s.applicable(got) {
			continue
		}
		snap, err := s.driver.Probe(ctx)
		if err != nil {
			// Any session-path failure, rate limits in particular,
			// aborts the whole cycle before the token path.
			return nil, err
		}
		if snap != nil {
			got = snap
		}
	}
	if got != nil {
		return got, nil
	}

	snap, err := o.fetchFromBilling(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		// Every driver reported "no data"; surface that instead of
		// publishing nothing.
		return nil, quota.Transient("no upstream source reported premium-request usage")
	}
	return snap, nil
}

// fetchFromBilling runs the long-lived-token path under the configured
// plan mode. A NotFound here usually means the cached identity went stale,
// so the cycle refreshes it and retries exactly once.
func (o *Orchestrator) fetchFromBilling(ctx context.Context) (*quota.UsageSnapshot, error) {
	policy := retrypolicy.NewBuilder[*quota.UsageSnapshot]().
		HandleIf(func(_ *quota.UsageSnapshot, err error) bool {
			return err != nil && quota.CodeOf(err) == quota.CodeNotFound
		}).
		WithMaxRetries(1).
		OnRetry(func(failsafe.ExecutionEvent[*quota.UsageSnapshot]) {
			log.Warn("billing path returned not-found, refreshing identity and retrying once")
			o.identity.Invalidate()
		}).
		Build()

	return failsafe.With(policy).WithContext(ctx).Get(func() (*quota.UsageSnapshot, error) {
		return o.probeBilling(ctx)
	})
}

func (o *Orchestrator) probeBilling(ctx context.Context) (*quota.UsageSnapshot, error) {
	switch o.cfg().PlanMode {
	case config.PlanModeIndividual:
		return o.personal.Probe(ctx)
	case config.PlanModeBusiness:
		return o.org.Probe(ctx)
	default: // auto
		personal, err := o.personal.Probe(ctx)
		if err != nil {
			return nil, err
		}
		if personal == nil || personal.UsedRequests != 0 {
			return personal, nil
		}
		// Personal usage reads zero: probe org billing best-effort. A
		// failure here is swallowed because the personal zero is still
		// valid data. A genuine personal zero can be masked by an org
		// false positive; upstream does not let us disambiguate.
		orgSnap, errOrg := o.org.Probe(ctx)
		if errOrg != nil {
			log.Debugf("auto plan: org fallback failed, keeping personal zero: %v", errOrg)
			return personal, nil
		}
		if orgSnap != nil {
			log.Debugf("auto plan: org billing (%d used) overrides personal zero", orgSnap.UsedRequests)
			return orgSnap, nil
		}
		return personal, nil
	}
}

// publish atomically installs the snapshot, derives pacing and returns the
// new resolution. First successful publish captures the session baseline.
func (o *Orchestrator) publish(snapshot *quota.UsageSnapshot) *quota.Resolution {
	cfg := o.cfg()
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.baseline == nil {
		base := snapshot.UsedRequests
		o.baseline = &base
	}

	monthlyLimit := cfg.MonthlyLimit
	if snapshot.QuotaCeiling != nil && *snapshot.QuotaCeiling > 0 {
		monthlyLimit = *snapshot.QuotaCeiling
	}

	result := pacing.Calculate(pacing.Input{
		UsedRequests:      snapshot.UsedRequests,
		MonthlyLimit:      monthlyLimit,
		Now:               now,
		RemainingOverride: snapshot.Remaining,
		SessionBaseline:   o.baseline,
	})

	o.cached = &quota.Resolution{
		Snapshot: *snapshot,
		Pacing:   result,
		Status:   pacing.Classify(result),
	}
	o.fetchedAt = now

	log.Infof("resolved usage: %d/%d used via %s, status %s, daily allowance %.1f",
		snapshot.UsedRequests, monthlyLimit, snapshot.Source, o.cached.Status, result.DailyAllowance)
	return o.cached
}
