package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-traillog/internal/db"

	"github.com/jackc/pgx/v5"
)

// PostgresSlot upserts the backup into session_backups keyed by device.
type PostgresSlot struct {
	db       db.Querier
	deviceID string
	now      func() time.Time
}

func NewPostgresSlot(q db.Querier, deviceID string) *PostgresSlot {
	return &PostgresSlot{db: q, deviceID: deviceID, now: time.Now}
}

func (s *PostgresSlot) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload::text FROM session_backups WHERE device_id=$1
	`, s.deviceID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load backup: %w", err)
	}
	return payload, nil
}

func (s *PostgresSlot) Save(ctx context.Context, data []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_backups (device_id, payload, backup_time)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (device_id) DO UPDATE SET payload=EXCLUDED.payload, backup_time=EXCLUDED.backup_time
	`, s.deviceID, string(data), s.now())
	if err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	return nil
}

func (s *PostgresSlot) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM session_backups WHERE device_id=$1`, s.deviceID); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}
	return nil
}
