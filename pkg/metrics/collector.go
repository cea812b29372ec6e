package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/types"
)

// SnapshotSource provides point-in-time copies of every variant's metrics
type SnapshotSource interface {
	SnapshotAll() []types.PerformanceMetrics
}

// Collector periodically copies recorder snapshots into Prometheus gauges
type Collector struct {
	source   SnapshotSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source SnapshotSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect refreshes the per-variant gauges once
func (c *Collector) Collect() {
	for _, m := range c.source.SnapshotAll() {
		v := string(m.Variant)
		VariantImpressions.WithLabelValues(v).Set(float64(m.Impressions))
		VariantClickThroughRate.WithLabelValues(v).Set(m.ClickThroughRate())
		VariantErrorRate.WithLabelValues(v).Set(m.ErrorRate())
		VariantLatencyMean.WithLabelValues(v).Set(m.LatencyMean())
	}
}
