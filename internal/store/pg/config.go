package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ConfigStore implements store.ConfigStore against Postgres.
type ConfigStore struct{ db *sql.DB }

func (s *ConfigStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pg: get config: %w", err)
	}
	return value, true, nil
}

func (s *ConfigStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO config (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("pg: set config: %w", err)
	}
	return nil
}

func (s *ConfigStore) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("pg: all config: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("pg: scan config: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
