/*
Package metrics provides Prometheus metrics, a duration timer and component
health for the rollout engine.

All collectors are registered on the default registry at package init and
exposed through Handler. Health and readiness are tracked per component and
served as JSON by HealthHandler, ReadyHandler and LivenessHandler.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  recorder ──► rollout_events_recorded_total{variant,kind}  │
	│           ──► rollout_latency_sample_seconds{variant}      │
	│                                                            │
	│  Collector (15s) ──► rollout_variant_* gauges              │
	│                                                            │
	│  rollout  ──► rollout_phase_index / traffic_percent / held │
	│           ──► rollout_phase_transitions_total{action,src}  │
	│                                                            │
	│  monitor  ──► rollout_alerts_total{severity,metric}        │
	│           ──► rollout_monitor_tick_duration_seconds        │
	│                                                            │
	│  api      ──► rollout_api_requests_total{route,status}     │
	│                                                            │
	│            GET /metrics  (promhttp.Handler)                │
	└────────────────────────────────────────────────────────────┘

# Health

Components call RegisterComponent at start and UpdateComponent when their
state changes. GetReadiness requires every name in the critical list
(recorder, rollout, monitor by default) to be registered and healthy.

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MonitorTickDuration)

	metrics.RegisterComponent("monitor", true, "running")
	http.Handle("/metrics", metrics.Handler())
	http.Handle("/ready", metrics.ReadyHandler())
*/
package metrics
