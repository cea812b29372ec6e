/*
Package log provides structured logging for the rollout engine using zerolog.

A single package-level zerolog.Logger is configured once with Init and shared
by every component. Components derive child loggers carrying a "component"
field (recorder, rollout, monitor, engine, api, storage) and attach variant,
phase or segment fields where a message concerns one of them.

Until Init is called the global logger discards everything, which keeps
library use and tests quiet.

# Levels

  - debug: advance refusals, suppressed duplicate alerts, per-request detail
  - info: phase transitions, monitor start/stop, server lifecycle
  - warn: warning alerts, store write failures
  - error: critical alerts and rollbacks

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	logger := log.WithComponent("rollout")
	logger.Info().
		Str("from", "canary-5").
		Str("to", "canary-20").
		Msg("Phase advanced")

JSON output:

	{"level":"info","component":"rollout","from":"canary-5","to":"canary-20","time":"2026-10-18T10:30:00Z","message":"Phase advanced"}
*/
package log
