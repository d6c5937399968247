package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// NotificationStore implements store.NotificationStore against sqlite.
type NotificationStore struct{ db *sql.DB }

const notificationColumns = `id, name, channel, is_active, error_only, keywords, created_at, updated_at`

func scanNotificationPolicy(row interface{ Scan(...any) error }) (*store.NotificationPolicy, error) {
	var p store.NotificationPolicy
	var id, keywords, createdAt, updatedAt string
	var isActive, errorOnly int
	err := row.Scan(&id, &p.Name, &p.Channel, &isActive, &errorOnly, &keywords, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.ID, _ = uuid.Parse(id)
	p.IsActive = isActive != 0
	p.ErrorOnly = errorOnly != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	scanStringSlice(keywords, &p.Keywords)
	return &p, nil
}

func (s *NotificationStore) GetNotificationPolicy(ctx context.Context, name string) (*store.NotificationPolicy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notification_policies WHERE name=?`, name)
	p, err := scanNotificationPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get notification policy: %w", err)
	}
	return p, nil
}

func (s *NotificationStore) ListNotificationPolicies(ctx context.Context) ([]*store.NotificationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notification_policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list notification policies: %w", err)
	}
	defer rows.Close()
	var out []*store.NotificationPolicy
	for rows.Next() {
		p, err := scanNotificationPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan notification policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *NotificationStore) UpsertNotificationPolicy(ctx context.Context, p *store.NotificationPolicy) error {
	if p.ID == uuid.Nil {
		p.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO notification_policies
		(id, name, channel, is_active, error_only, keywords, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (name) DO UPDATE SET channel=excluded.channel, is_active=excluded.is_active,
			error_only=excluded.error_only, keywords=excluded.keywords, updated_at=excluded.updated_at`,
		p.ID.String(), p.Name, p.Channel, boolToInt(p.IsActive), boolToInt(p.ErrorOnly),
		jsonStringSlice(p.Keywords), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: upsert notification policy: %w", err)
	}
	return nil
}

func (s *NotificationStore) DeleteNotificationPolicy(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_policies WHERE name=?`, name)
	if err != nil {
		return fmt.Errorf("sqlite: delete notification policy: %w", err)
	}
	return checkRowsAffected(res)
}
