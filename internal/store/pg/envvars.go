package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scriptyard/taskd/internal/store"
)

// EnvVarStore implements store.EnvVarStore against Postgres.
type EnvVarStore struct{ db *sql.DB }

func (s *EnvVarStore) ListEnvVars(ctx context.Context) ([]*store.EnvVar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, created_at, updated_at FROM env_vars ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("pg: list env vars: %w", err)
	}
	defer rows.Close()
	var out []*store.EnvVar
	for rows.Next() {
		var e store.EnvVar
		if err := rows.Scan(&e.ID, &e.Key, &e.Value, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan env var: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *EnvVarStore) SetEnvVar(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO env_vars (id, key, value, created_at, updated_at)
		VALUES ($1,$2,$3,now(),now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		store.GenNewID(), key, value)
	if err != nil {
		return fmt.Errorf("pg: set env var: %w", err)
	}
	return nil
}

func (s *EnvVarStore) DeleteEnvVar(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM env_vars WHERE key=$1`, key)
	if err != nil {
		return fmt.Errorf("pg: delete env var: %w", err)
	}
	return checkRowsAffected(res)
}
