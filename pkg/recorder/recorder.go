package recorder

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidVariant is returned for a variant outside the catalog
	ErrInvalidVariant = errors.New("unknown variant")

	// ErrInvalidKind is returned for an event kind outside the recognised set
	ErrInvalidKind = errors.New("invalid event kind")

	// ErrInvalidValue is returned for a negative or non-finite latency sample
	ErrInvalidValue = errors.New("invalid latency value")
)

// bucket owns the running statistics of one variant
type bucket struct {
	mu sync.Mutex
	m  types.PerformanceMetrics
}

// Recorder accumulates per-variant performance metrics.
//
// Each variant has its own bucket lock so writers for different variants
// never contend; the bucket map itself is guarded by an RWMutex and only
// write-locked when a variant is seen for the first time.
type Recorder struct {
	mu      sync.RWMutex
	buckets map[types.Variant]*bucket
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock overrides the time source used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New creates an empty recorder
func New(opts ...Option) *Recorder {
	r := &Recorder{
		buckets: make(map[types.Variant]*bucket),
		now:     time.Now,
		logger:  log.WithComponent("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record applies one event to the variant's metrics. For EventLatency the
// value is the sample (seconds); other kinds ignore value.
func (r *Recorder) Record(variant types.Variant, kind types.EventKind, value float64) error {
	if err := validate(variant, kind, value); err != nil {
		variantLog := log.WithVariant(r.logger, variant)
		variantLog.Debug().Err(err).Str("kind", string(kind)).Msg("Event rejected")
		return err
	}

	b := r.bucketFor(variant)
	now := r.now()

	b.mu.Lock()
	switch kind {
	case types.EventImpression:
		b.m.Impressions++
	case types.EventInteraction:
		b.m.Interactions++
	case types.EventError:
		b.m.Errors++
	case types.EventLatency:
		b.m.LatencyCount++
		b.m.LatencySum += value
		b.m.LatencySumSquares += value * value
	}
	if b.m.FirstEventAt.IsZero() || now.Before(b.m.FirstEventAt) {
		b.m.FirstEventAt = now
	}
	if now.After(b.m.LastEventAt) {
		b.m.LastEventAt = now
	}
	b.mu.Unlock()

	metrics.EventsRecordedTotal.WithLabelValues(string(variant), string(kind)).Inc()
	if kind == types.EventLatency {
		metrics.LatencySampleSeconds.WithLabelValues(string(variant)).Observe(value)
	}
	return nil
}

// validate checks one event and counts rejections by reason. Only catalog
// variants get a bucket and per-variant metric series.
func validate(variant types.Variant, kind types.EventKind, value float64) error {
	switch {
	case !variant.Known():
		metrics.EventsRejectedTotal.WithLabelValues("variant").Inc()
		return fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	case !kind.Valid():
		metrics.EventsRejectedTotal.WithLabelValues("kind").Inc()
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	case kind == types.EventLatency && (value < 0 || math.IsNaN(value) || math.IsInf(value, 0)):
		metrics.EventsRejectedTotal.WithLabelValues("value").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}
	return nil
}

// Snapshot returns a consistent copy of the variant's metrics. A variant
// with no recorded events yields zero counters.
func (r *Recorder) Snapshot(variant types.Variant) types.PerformanceMetrics {
	r.mu.RLock()
	b, ok := r.buckets[variant]
	r.mu.RUnlock()

	if !ok {
		return types.PerformanceMetrics{Variant: variant}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m
}

// SnapshotAll returns a copy of every variant's metrics ordered by variant
func (r *Recorder) SnapshotAll() []types.PerformanceMetrics {
	variants := r.Variants()
	out := make([]types.PerformanceMetrics, 0, len(variants))
	for _, v := range variants {
		out = append(out, r.Snapshot(v))
	}
	return out
}

// Variants returns every variant with a bucket, sorted
func (r *Recorder) Variants() []types.Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Variant, 0, len(r.buckets))
	for v := range r.buckets {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset discards all metrics. Used only on explicit experiment restart.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[types.Variant]*bucket)
}

// Restore seeds the recorder from previously saved snapshots, replacing the
// metrics of each listed variant. Snapshots of variants outside the catalog
// are skipped.
func (r *Recorder) Restore(snapshots []types.PerformanceMetrics) {
	for _, s := range snapshots {
		if !s.Variant.Known() {
			variantLog := log.WithVariant(r.logger, s.Variant)
			variantLog.Warn().Msg("Skipping snapshot of unknown variant")
			continue
		}
		b := r.bucketFor(s.Variant)
		b.mu.Lock()
		b.m = s
		b.mu.Unlock()
	}
}

func (r *Recorder) bucketFor(variant types.Variant) *bucket {
	r.mu.RLock()
	b, ok := r.buckets[variant]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[variant]; ok {
		return b
	}
	b = &bucket{m: types.PerformanceMetrics{Variant: variant}}
	r.buckets[variant] = b
	return b
}
