package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// Create inserts a new stream.
func (s *Store) Create(ctx context.Context, st *model.Stream) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode stream %s: %w", st.ID, err)
	}
	now := s.now().UnixMilli()
	_, err = s.exec(ctx,
		`INSERT INTO streams (id, url, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.URL, string(doc), now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, st.URL)
	}
	if err != nil {
		return fmt.Errorf("insert stream %s: %w", st.ID, err)
	}
	return nil
}

// Get returns the stream with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Stream, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM streams WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select stream %s: %w", id, err)
	}
	return decodeStream(doc)
}

// List returns all streams in creation order.
func (s *Store) List(ctx context.Context) ([]*model.Stream, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM streams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []*model.Stream
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		st, err := decodeStream(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListIDs returns the ids of all streams in creation order.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM streams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list stream ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stream id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update runs fn on the current record of id and saves the result. Calls for
// the same id are serialized. If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, id string, fn func(*model.Stream) error) (*model.Stream, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	// The id and url are owned by the store.
	st.ID = id

	doc, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode stream %s: %w", id, err)
	}
	res, err := s.exec(ctx,
		`UPDATE streams SET document = ?, updated_at = ? WHERE id = ?`,
		string(doc), s.now().UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update stream %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return st, nil
}

// Delete removes a stream and its snapshots. Deleting a missing stream
// returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	res, err := s.exec(ctx, `DELETE FROM streams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stream %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if _, err := s.exec(ctx, `DELETE FROM metrics_snapshots WHERE stream_id = ?`, id); err != nil {
		return fmt.Errorf("delete snapshots of %s: %w", id, err)
	}
	return nil
}

func decodeStream(doc string) (*model.Stream, error) {
	var st model.Stream
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("decode stream: %w", err)
	}
	return &st, nil
}
