package metrics

import (
	"context"
	"sync"
	"time"
)

// CachedCollector wraps a Collector and refreshes the sample in the
// background on a fixed interval, so heartbeat assembly never blocks on the
// 200ms CPU measurement window.
type CachedCollector struct {
	inner    Collector
	interval time.Duration
	mu       sync.RWMutex
	last     Sample
	lastErr  error
	stop     chan struct{}
}

func NewCachedCollector(c Collector, interval time.Duration) *CachedCollector {
	return &CachedCollector{
		inner:    c,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start performs one blocking collection, then refreshes on the ticker.
func (cc *CachedCollector) Start(ctx context.Context) {
	sample, err := cc.inner.Collect(ctx)
	cc.mu.Lock()
	cc.last, cc.lastErr = sample, err
	cc.mu.Unlock()

	go func() {
		ticker := time.NewTicker(cc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sample, err := cc.inner.Collect(context.Background())
				cc.mu.Lock()
				cc.last, cc.lastErr = sample, err
				cc.mu.Unlock()
			case <-cc.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the background refresh goroutine.
func (cc *CachedCollector) Stop() {
	close(cc.stop)
}

// Collect returns the last cached sample without blocking.
func (cc *CachedCollector) Collect(ctx context.Context) (Sample, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.last, cc.lastErr
}
