package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// DefaultRetention is how long snapshots are kept.
const DefaultRetention = model.SnapshotRetention

// DefaultEvictInterval is how often Run purges expired snapshots.
const DefaultEvictInterval = 10 * time.Minute

// AppendSnapshot inserts a metrics snapshot.
func (s *Store) AppendSnapshot(ctx context.Context, snap model.MetricsSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO metrics_snapshots (stream_id, timestamp, document) VALUES (?, ?, ?)`,
		snap.StreamID, snap.Timestamp.UnixMilli(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", snap.StreamID, err)
	}
	return nil
}

// Snapshots returns the snapshots of id taken at or after since, oldest
// first.
func (s *Store) Snapshots(ctx context.Context, id string, since time.Time) ([]model.MetricsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM metrics_snapshots
         WHERE stream_id = ? AND timestamp >= ?
         ORDER BY timestamp, id`,
		id, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("select snapshots for %s: %w", id, err)
	}
	defer rows.Close()

	var out []model.MetricsSnapshot
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap model.MetricsSnapshot
		if err := json.Unmarshal([]byte(doc), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// EvictExpired deletes snapshots older than the retention window and returns
// how many were removed.
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention).UnixMilli()
	res, err := s.exec(ctx, `DELETE FROM metrics_snapshots WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Run evicts expired snapshots every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultEvictInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.EvictExpired(ctx)
			if err != nil {
				logger.Warn("snapshot_eviction_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("snapshots_evicted", "count", n)
			}
		}
	}
}
