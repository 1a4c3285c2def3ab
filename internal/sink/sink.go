// Package sink fans resolution outcomes out to presentation collaborators.
// The core never formats user-facing text beyond log lines; sinks receive
// structured values and render them elsewhere.
package sink

import (
	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
)

// Sink receives every successful resolution and every terminal error.
type Sink interface {
	Publish(res *quota.Resolution)
	PublishError(err error)
}

// Multi fans out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(res *quota.Resolution) {
	for _, s := range m {
		s.Publish(res)
	}
}

func (m Multi) PublishError(err error) {
	for _, s := range m {
		s.PublishError(err)
	}
}

// LogSink renders outcomes as log lines. Always attached.
type LogSink struct{}

func (LogSink) Publish(res *quota.Resolution) {
	log.Infof("pacing: status=%s used=%d allowance=%.1f/day banked=%.1f source=%s",
		res.Status, res.Pacing.UsedRequests, res.Pacing.DailyAllowance, res.Pacing.Banked, res.Snapshot.Source)
}

func (LogSink) PublishError(err error) {
	switch quota.CodeOf(err) {
	case quota.CodeUnauthorized:
		log.Errorf("resolution failed: %v (re-authentication required)", err)
	case quota.CodeRateLimited:
		log.Warnf("resolution deferred: %v", err)
	default:
		log.Warnf("resolution failed: %v", err)
	}
}
