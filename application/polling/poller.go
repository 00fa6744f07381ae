// Package polling re-reads the device location on an interval and refetches
// the feed only after a meaningful move.
package polling

import (
	"context"
	"sync"
	"time"

	"locallens/domain/core/valueobjects"
	"locallens/domain/geo"
	"locallens/pkg/observability"

	"go.uber.org/zap"
)

// LocationSource reports the latest known location and the feed key built from it.
type LocationSource interface {
	Location() (geo.Point, bool)
	SearchContext() (valueobjects.SearchContext, bool)
}

// Invalidator marks a feed stale so it gets refetched.
type Invalidator interface {
	Invalidate(sc valueobjects.SearchContext)
}

// Poller invalidates the active feed when the user has moved at least
// thresholdMeters since the last invalidation.
type Poller struct {
	source          LocationSource
	invalidator     Invalidator
	interval        time.Duration
	thresholdMeters float64
	metrics         *observability.Collector
	logger          *zap.Logger

	mu      sync.Mutex
	last    *geo.Point
	started bool
	paused  bool
	parent  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a stopped poller. metrics may be nil.
func NewPoller(
	source LocationSource,
	invalidator Invalidator,
	interval time.Duration,
	thresholdMeters float64,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		source:          source,
		invalidator:     invalidator,
		interval:        interval,
		thresholdMeters: thresholdMeters,
		metrics:         metrics,
		logger:          logger,
	}
}

// Start begins ticking. Calling it on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.paused = false
	p.parent = ctx
	p.runLocked()
}

// Stop halts the ticker and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.started = false
	p.paused = false
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

// OnBackground pauses ticking until OnForeground.
func (p *Poller) OnBackground() {
	p.mu.Lock()
	if !p.started || p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Debug("Location polling paused")
}

// OnForeground resumes ticking and checks right away.
func (p *Poller) OnForeground(ctx context.Context) {
	p.mu.Lock()
	resumed := p.started && p.paused
	if resumed {
		p.paused = false
		p.runLocked()
	}
	p.mu.Unlock()
	if resumed {
		p.logger.Debug("Location polling resumed")
	}
	p.Check(ctx)
}

// Check compares the current location with the one of the last
// invalidation and invalidates the active feed when it moved far enough.
// It reports whether an invalidation happened.
func (p *Poller) Check(ctx context.Context) bool {
	loc, ok := p.source.Location()
	if !ok {
		return false
	}

	p.mu.Lock()
	moved := p.last == nil
	var distanceM float64
	if !moved {
		distanceM = geo.DistanceKm(*p.last, loc) * 1000
		moved = distanceM >= p.thresholdMeters
	}
	if moved {
		next := loc
		p.last = &next
	}
	p.mu.Unlock()

	if !moved {
		return false
	}
	sc, ok := p.source.SearchContext()
	if !ok {
		return false
	}
	p.invalidator.Invalidate(sc)
	p.metrics.RecordPollInvalidation()
	p.logger.Info("Location changed, refreshing feed",
		zap.String("context", sc.Key()),
		zap.Float64("moved_m", distanceM),
	)
	return true
}

func (p *Poller) runLocked() {
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
