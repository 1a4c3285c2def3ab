// Package schedule drives the orchestrator on a timer and on demand while
// guaranteeing at most one resolution cycle in flight.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/quota"
	"github.com/quotapace/quotapace/internal/resolve"
	"github.com/quotapace/quotapace/internal/sink"
)

// rateLimitPadding is added on top of the upstream's advertised delay
// before the one-shot retry fires.
const rateLimitPadding = 60 * time.Second

// Scheduler owns the periodic refresh ticker and the rate-limit one-shot
// timer. All cycles execute on one loop goroutine, so two upstream fetch
// sequences can never overlap; a trigger arriving while a cycle runs is
// dropped, since a fresher trigger follows shortly.
type Scheduler struct {
	orch     *resolve.Orchestrator
	sinks    sink.Sink
	interval time.Duration

	// OnUnauthorized signals upward that the credential must be
	// invalidated and re-prompted. Optional.
	OnUnauthorized func()

	busy     atomic.Bool
	triggers chan bool
	reconfig chan time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(orch *resolve.Orchestrator, sinks sink.Sink, interval time.Duration) *Scheduler {
	return &Scheduler{
		orch:     orch,
		sinks:    sinks,
		interval: interval,
		// Buffered so the startup trigger lands even before the loop
		// reaches its first select.
		triggers: make(chan bool, 1),
		reconfig: make(chan time.Duration),
		stopChan: make(chan struct{}),
	}
}

// Start launches the loop and runs an immediate first cycle.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.Trigger(false)
}

// Stop shuts the loop down and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Trigger requests a resolution cycle. Returns false when the request was
// coalesced away because a cycle is already in flight.
func (s *Scheduler) Trigger(force bool) bool {
	if s.busy.Load() {
		return false
	}
	select {
	case s.triggers <- force:
		return true
	default:
		return false
	}
}

// SetInterval atomically replaces the periodic timer and forces a refresh
// with the cache bypassed. Called on configuration change.
func (s *Scheduler) SetInterval(d time.Duration) {
	select {
	case s.reconfig <- d:
	case <-s.stopChan:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	// rearm replaces the ticker, so stop whichever one is live on exit.
	defer func() { ticker.Stop() }()
	tickC := ticker.C

	// backoff is armed instead of the ticker after a rate limit.
	var backoff *time.Timer
	var backoffC <-chan time.Time
	disarmBackoff := func() {
		if backoff != nil {
			backoff.Stop()
			backoff = nil
			backoffC = nil
		}
	}
	defer disarmBackoff()

	rearm := func() {
		ticker.Stop()
		ticker = time.NewTicker(s.interval)
		tickC = ticker.C
	}

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return

		case d := <-s.reconfig:
			// Old timers go before the new one is armed, and the
			// config-driven refresh bypasses the cache.
			s.interval = d
			disarmBackoff()
			rearm()
			log.Infof("refresh interval now %s, forcing refresh", d)
			if delay := s.runCycle(ctx, true); delay > 0 {
				tickC = nil
				backoff = time.NewTimer(delay)
				backoffC = backoff.C
			}

		case force := <-s.triggers:
			if delay := s.runCycle(ctx, force); delay > 0 {
				ticker.Stop()
				tickC = nil
				disarmBackoff()
				backoff = time.NewTimer(delay)
				backoffC = backoff.C
			}

		case <-tickC:
			if delay := s.runCycle(ctx, false); delay > 0 {
				ticker.Stop()
				tickC = nil
				backoff = time.NewTimer(delay)
				backoffC = backoff.C
			}

		case <-backoffC:
			disarmBackoff()
			if delay := s.runCycle(ctx, true); delay > 0 {
				backoff = time.NewTimer(delay)
				backoffC = backoff.C
				continue
			}
			// One-shot completed without another rate limit: back to
			// the normal cadence.
			rearm()
		}
	}
}

// runCycle executes one resolution. A positive return value is the backoff
// delay demanded by an upstream rate limit.
func (s *Scheduler) runCycle(ctx context.Context, force bool) time.Duration {
	s.busy.Store(true)
	defer s.busy.Store(false)

	res, err := s.orch.Resolve(ctx, force)
	if err == nil {
		s.sinks.Publish(res)
		return 0
	}

	s.sinks.PublishError(err)
	switch qe, _ := quota.AsError(err); quota.CodeOf(err) {
	case quota.CodeRateLimited:
		delay := qe.RetryAfter + rateLimitPadding
		log.Warnf("rate limited, pausing periodic refresh for %s", delay)
		return delay
	case quota.CodeUnauthorized:
		if s.OnUnauthorized != nil {
			s.OnUnauthorized()
		}
	}
	return 0
}
