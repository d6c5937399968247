package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// NotificationStore implements store.NotificationStore against Postgres.
type NotificationStore struct{ db *sql.DB }

const notificationColumns = `id, name, channel, is_active, error_only, keywords, created_at, updated_at`

func scanNotificationPolicy(row interface{ Scan(...any) error }) (*store.NotificationPolicy, error) {
	var p store.NotificationPolicy
	var keywords []byte
	err := row.Scan(&p.ID, &p.Name, &p.Channel, &p.IsActive, &p.ErrorOnly, &keywords,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	scanStringSlice(keywords, &p.Keywords)
	return &p, nil
}

func (s *NotificationStore) GetNotificationPolicy(ctx context.Context, name string) (*store.NotificationPolicy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notification_policies WHERE name=$1`, name)
	p, err := scanNotificationPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get notification policy: %w", err)
	}
	return p, nil
}

func (s *NotificationStore) ListNotificationPolicies(ctx context.Context) ([]*store.NotificationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notification_policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pg: list notification policies: %w", err)
	}
	defer rows.Close()
	var out []*store.NotificationPolicy
	for rows.Next() {
		p, err := scanNotificationPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan notification policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *NotificationStore) UpsertNotificationPolicy(ctx context.Context, p *store.NotificationPolicy) error {
	if p.ID == uuid.Nil {
		p.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO notification_policies
		(id, name, channel, is_active, error_only, keywords, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		ON CONFLICT (name) DO UPDATE SET channel=EXCLUDED.channel, is_active=EXCLUDED.is_active,
			error_only=EXCLUDED.error_only, keywords=EXCLUDED.keywords, updated_at=now()`,
		p.ID, p.Name, p.Channel, p.IsActive, p.ErrorOnly, jsonStringSlice(p.Keywords))
	if err != nil {
		return fmt.Errorf("pg: upsert notification policy: %w", err)
	}
	return nil
}

func (s *NotificationStore) DeleteNotificationPolicy(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_policies WHERE name=$1`, name)
	if err != nil {
		return fmt.Errorf("pg: delete notification policy: %w", err)
	}
	return checkRowsAffected(res)
}
