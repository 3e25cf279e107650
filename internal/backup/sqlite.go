package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_backups (
	device_id   TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	backup_time INTEGER NOT NULL
)`

// SQLiteSlot stores the backup in a local SQLite file, the default on a
// device.
type SQLiteSlot struct {
	db       *sqlx.DB
	deviceID string
	now      func() time.Time
}

// NewSQLiteSlot creates the backup table if needed.
func NewSQLiteSlot(db *sqlx.DB, deviceID string) (*SQLiteSlot, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create backup table: %w", err)
	}
	return &SQLiteSlot{db: db, deviceID: deviceID, now: time.Now}, nil
}

func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM session_backups WHERE device_id = ?`, s.deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load backup: %w", err)
	}
	return []byte(payload), nil
}

func (s *SQLiteSlot) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_backups (device_id, payload, backup_time)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET payload = excluded.payload, backup_time = excluded.backup_time
	`, s.deviceID, string(data), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	return nil
}

func (s *SQLiteSlot) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_backups WHERE device_id = ?`, s.deviceID); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}
	return nil
}
