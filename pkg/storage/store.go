package storage

import (
	"github.com/cuemby/rollout/pkg/types"
)

// Store defines local-device persistence for the rollout engine
type Store interface {
	// Audit trail
	AppendAudit(entry types.AuditEntry) error
	ListAudit() ([]types.AuditEntry, error)

	// Alert log
	AppendAlert(alert types.Alert) error
	ListAlerts(limit int) ([]types.Alert, error)

	// Metric snapshots, one record per variant
	SaveMetrics(snapshots []types.PerformanceMetrics) error
	LoadMetrics() ([]types.PerformanceMetrics, error)

	// Utility
	Close() error
}
