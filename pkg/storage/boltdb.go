package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/rollout/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAudit   = []byte("audit")
	bucketAlerts  = []byte("alerts")
	bucketMetrics = []byte("metrics")
)

const openTimeout = 2 * time.Second

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rollout.db")

	// Another process holding the file lock fails the open instead of blocking
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAudit, bucketAlerts, bucketMetrics} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Backup writes a consistent copy of the database to path
func (s *BoltStore) Backup(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
	if err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}

// AppendAudit appends an audit entry in insertion order
func (s *BoltStore) AppendAudit(entry types.AuditEntry) error {
	return s.appendJSON(bucketAudit, entry)
}

// ListAudit returns every audit entry, oldest first
func (s *BoltStore) ListAudit() ([]types.AuditEntry, error) {
	var entries []types.AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudit).ForEach(func(k, v []byte) error {
			var entry types.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// AppendAlert appends an alert in insertion order
func (s *BoltStore) AppendAlert(alert types.Alert) error {
	return s.appendJSON(bucketAlerts, alert)
}

// ListAlerts returns the most recent limit alerts, oldest first. A limit of
// zero or less returns every alert.
func (s *BoltStore) ListAlerts(limit int) ([]types.Alert, error) {
	var alerts []types.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAlerts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(alerts) >= limit {
				break
			}
			var alert types.Alert
			if err := json.Unmarshal(v, &alert); err != nil {
				return err
			}
			alerts = append(alerts, alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cursor walked newest first
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	return alerts, nil
}

// SaveMetrics upserts one snapshot per variant
func (s *BoltStore) SaveMetrics(snapshots []types.PerformanceMetrics) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetrics)
		for _, m := range snapshots {
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(m.Variant), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadMetrics returns every saved snapshot ordered by variant
func (s *BoltStore) LoadMetrics() ([]types.PerformanceMetrics, error) {
	var snapshots []types.PerformanceMetrics
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetrics).ForEach(func(k, v []byte) error {
			var m types.PerformanceMetrics
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			snapshots = append(snapshots, m)
			return nil
		})
	})
	return snapshots, err
}

// appendJSON stores v under the bucket's next sequence number so iteration
// order matches insertion order
func (s *BoltStore) appendJSON(bucket []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}
