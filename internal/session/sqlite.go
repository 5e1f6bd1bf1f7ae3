package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// SQLiteStore keeps selections in a SQLite database so they survive restarts
// and can be shared by processes on one host.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: wal: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_selections (
			conversation_id TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			selection       TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_selections(created_at);
	`)
	if err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, sel *protocol.PendingSelection) error {
	cp := *sel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("session store: encode: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_selections (conversation_id, user_id, selection, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET
			selection=excluded.selection, created_at=excluded.created_at
	`, key.ConversationID, key.UserID, string(data), cp.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("session store: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*protocol.PendingSelection, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT selection FROM pending_selections WHERE conversation_id = ? AND user_id = ?`,
		key.ConversationID, key.UserID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	var sel protocol.PendingSelection
	if err := json.Unmarshal([]byte(data), &sel); err != nil {
		return nil, fmt.Errorf("session store: decode %s: %w", key, err)
	}
	if expired(&sel, s.ttl, s.now()) {
		if err := s.Clear(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return &sel, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_selections WHERE conversation_id = ? AND user_id = ?`,
		key.ConversationID, key.UserID)
	if err != nil {
		return fmt.Errorf("session store: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_selections WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("session store: sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
