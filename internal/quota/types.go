// Package quota defines the data model shared by the source drivers, the
// resolution orchestrator and the presentation sinks.
package quota

import (
	"time"

	"github.com/quotapace/quotapace/internal/pacing"
)

// Source identifies which upstream endpoint produced a snapshot.
type Source string

const (
	SourcePrimaryInternal   Source = "primary_internal"
	SourceSecondaryInternal Source = "secondary_internal"
	SourcePersonalBilling   Source = "personal_billing"
	SourceOrgBilling        Source = "org_billing"
)

// UsageSnapshot is one raw usage observation. Immutable once produced.
// Remaining and QuotaCeiling are nil when the upstream endpoint does not
// report them (the billing endpoints only report consumption).
type UsageSnapshot struct {
	UsedRequests int        `json:"used_requests"`
	Remaining    *int       `json:"remaining,omitempty"`
	QuotaCeiling *int       `json:"quota_ceiling,omitempty"`
	Source       Source     `json:"source"`
	OrgName      string     `json:"org_name,omitempty"`
	ResetDate    string     `json:"reset_date,omitempty"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// Resolution is the unit published to sinks on every successful cycle.
type Resolution struct {
	Snapshot UsageSnapshot `json:"snapshot"`
	Pacing   pacing.Result `json:"pacing"`
	Status   pacing.Status `json:"status"`
}
