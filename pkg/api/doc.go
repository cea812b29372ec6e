/*
Package api serves the rollout engine over HTTP/JSON.

Browsers call the assignment and event routes; operators and the rollout
CLI call the dashboard and rollout routes.

	┌────────────── BROWSER ──────────────┐   ┌──────── OPERATOR / CLI ───────┐
	│ GET  /v1/assignment?segment=<key>   │   │ GET  /v1/dashboard            │
	│ POST /v1/events                     │   │ GET  /v1/rollout/status       │
	└──────────────────┬──────────────────┘   │ GET  /v1/alerts?limit=N       │
	                   │                      │ POST /v1/rollout/advance      │
	                   │                      │ POST /v1/rollout/rollback     │
	                   │                      │ POST /v1/rollout/clear-hold   │
	                   │                      │ GET  /v1/events/stream (SSE)  │
	                   │                      └───────────────┬───────────────┘
	                   ▼                                      ▼
	┌──────────────────────────── pkg/api ─────────────────────────────────┐
	│  request metrics (rollout_api_requests_total, _duration_seconds)     │
	│  admin bearer token on rollout mutations (when configured)           │
	└──────────────────────────────────┬───────────────────────────────────┘
	                                   ▼
	                             engine.Engine

Operational routes are always registered: /metrics (Prometheus), /health,
/ready and /live.

# Status Codes

  - 200: success
  - 400: malformed body, bad query parameter, or every event rejected
  - 401: missing or wrong admin token
  - 409: advance refused (not ready, held, or final phase); the body lists
    every failed gate and the verdicts it was decided on

Partial event batches return 200 with per-event errors in the body.
*/
package api
