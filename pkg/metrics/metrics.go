package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Recorder metrics
	EventsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_events_recorded_total",
			Help: "Total number of UI events recorded by variant and kind",
		},
		[]string{"variant", "kind"},
	)

	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_events_rejected_total",
			Help: "Total number of UI events rejected by reason",
		},
		[]string{"reason"},
	)

	LatencySampleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_latency_sample_seconds",
			Help:    "Render latency samples reported by the UI, in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"variant"},
	)

	// Per-variant gauges refreshed by the collector
	VariantClickThroughRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_variant_click_through_rate",
			Help: "Interactions per impression by variant",
		},
		[]string{"variant"},
	)

	VariantErrorRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_variant_error_rate",
			Help: "Errors per impression by variant",
		},
		[]string{"variant"},
	)

	VariantImpressions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_variant_impressions",
			Help: "Cumulative impressions by variant",
		},
		[]string{"variant"},
	)

	VariantLatencyMean = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_variant_latency_mean",
			Help: "Mean latency sample by variant",
		},
		[]string{"variant"},
	)

	// Planner metrics
	PhaseIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_phase_index",
			Help: "Zero-based index of the active rollout phase",
		},
	)

	PhaseTrafficPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_phase_traffic_percent",
			Help: "Target traffic percent of the active rollout phase",
		},
	)

	PhaseHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollout_phase_held",
			Help: "Whether advancement is held after a rollback (1 = held)",
		},
	)

	PhaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_phase_transitions_total",
			Help: "Total planner actions by action and source",
		},
		[]string{"action", "source"},
	)

	// Evaluator metrics
	VerdictConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollout_verdict_confidence_percent",
			Help: "Confidence of the latest verdict by candidate variant and kind",
		},
		[]string{"variant", "kind"},
	)

	// Monitor metrics
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_alerts_total",
			Help: "Total alerts emitted by severity and metric",
		},
		[]string{"severity", "metric"},
	)

	AlertsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollout_alerts_suppressed_total",
			Help: "Total alerts dropped by the cool-down window",
		},
	)

	MonitorTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollout_monitor_tick_duration_seconds",
			Help:    "Time taken by one monitor tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollout_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(EventsRecordedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(LatencySampleSeconds)
	prometheus.MustRegister(VariantClickThroughRate)
	prometheus.MustRegister(VariantErrorRate)
	prometheus.MustRegister(VariantImpressions)
	prometheus.MustRegister(VariantLatencyMean)
	prometheus.MustRegister(PhaseIndex)
	prometheus.MustRegister(PhaseTrafficPercent)
	prometheus.MustRegister(PhaseHeld)
	prometheus.MustRegister(PhaseTransitionsTotal)
	prometheus.MustRegister(VerdictConfidence)
	prometheus.MustRegister(AlertsTotal)
	prometheus.MustRegister(AlertsSuppressedTotal)
	prometheus.MustRegister(MonitorTickDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
