package slot

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteStore keeps slots in the save_slots table created by the
// migrations package.
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int
}

func NewSQLiteStore(db *sql.DB, maxBytes int) *SQLiteStore {
	return &SQLiteStore{db: db, maxBytes: maxBytes}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM save_slots WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) error {
	if err := checkQuota(s.maxBytes, data); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_slots (key, data, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM save_slots WHERE key = ?`, key)
	return err
}
