package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// EnvVarStore implements store.EnvVarStore against sqlite.
type EnvVarStore struct{ db *sql.DB }

func (s *EnvVarStore) ListEnvVars(ctx context.Context) ([]*store.EnvVar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, created_at, updated_at FROM env_vars ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list env vars: %w", err)
	}
	defer rows.Close()
	var out []*store.EnvVar
	for rows.Next() {
		var e store.EnvVar
		var id, createdAt, updatedAt string
		if err := rows.Scan(&id, &e.Key, &e.Value, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan env var: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *EnvVarStore) SetEnvVar(ctx context.Context, key, value string) error {
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO env_vars (id, key, value, created_at, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		store.GenNewID().String(), key, value, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: set env var: %w", err)
	}
	return nil
}

func (s *EnvVarStore) DeleteEnvVar(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM env_vars WHERE key=?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete env var: %w", err)
	}
	return checkRowsAffected(res)
}
