/*
Package config loads the engine configuration from YAML.

Every numeric policy constant of the engine lives here rather than in code:
evaluator sample floors and confidence, monitor interval and thresholds, and
the phase plan itself.

	experiment:
	  name: map-markers
	  baseline: original
	evaluator:
	  min_samples: 100
	  confidence_level: 0.95
	monitor:
	  interval: 30s
	  cooldown: 5m
	phases:
	  - name: canary
	    traffic_percent: 5
	    min_samples: 100
	    min_duration: 1h
	    config:
	      weights:
	        - {variant: original, weight: 95}
	        - {variant: phase4-enhanced, weight: 5}
	    thresholds:
	      max_error_rate_delta: 0.05
	      max_latency_regression: 0.5

Parse decodes over Default, so omitted sections keep their defaults. Any
invalid value fails the load with a *ValidationError listing every problem,
and the engine refuses to start.
*/
package config
