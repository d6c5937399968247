package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// ProbeStore implements store.ProbeStore against Postgres.
type ProbeStore struct{ db *sql.DB }

const probeColumns = `id, name, method, url, headers, payload, cron_expr, active,
	notification_enabled, notification_type, notification_condition, created_at, updated_at`

func scanProbe(row interface{ Scan(...any) error }) (*store.ApiDebugConfig, error) {
	var c store.ApiDebugConfig
	var headers []byte
	err := row.Scan(&c.ID, &c.Name, &c.Method, &c.URL, &headers, &c.Payload, &c.CronExpr,
		&c.Active, &c.NotificationEnabled, &c.NotificationType, &c.NotificationCond,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Headers = map[string]string{}
	if len(headers) > 0 {
		_ = json.Unmarshal(headers, &c.Headers)
	}
	return &c, nil
}

func (s *ProbeStore) CreateProbe(ctx context.Context, c *store.ApiDebugConfig) error {
	if c.ID == uuid.Nil {
		c.ID = store.GenNewID()
	}
	headers, _ := json.Marshal(c.Headers)
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_debug_configs (`+probeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())`,
		c.ID, c.Name, c.Method, c.URL, jsonOrEmpty(headers), c.Payload, c.CronExpr, c.Active,
		c.NotificationEnabled, c.NotificationType, c.NotificationCond)
	if err != nil {
		return fmt.Errorf("pg: create probe: %w", err)
	}
	return nil
}

func (s *ProbeStore) GetProbe(ctx context.Context, id uuid.UUID) (*store.ApiDebugConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+probeColumns+` FROM api_debug_configs WHERE id=$1`, id)
	c, err := scanProbe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get probe: %w", err)
	}
	return c, nil
}

func (s *ProbeStore) ListProbes(ctx context.Context) ([]*store.ApiDebugConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+probeColumns+` FROM api_debug_configs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("pg: list probes: %w", err)
	}
	defer rows.Close()
	var out []*store.ApiDebugConfig
	for rows.Next() {
		c, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan probe: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ProbeStore) UpdateProbe(ctx context.Context, c *store.ApiDebugConfig) error {
	headers, _ := json.Marshal(c.Headers)
	res, err := s.db.ExecContext(ctx, `UPDATE api_debug_configs SET name=$2, method=$3, url=$4,
		headers=$5, payload=$6, cron_expr=$7, active=$8, notification_enabled=$9,
		notification_type=$10, notification_condition=$11, updated_at=now() WHERE id=$1`,
		c.ID, c.Name, c.Method, c.URL, jsonOrEmpty(headers), c.Payload, c.CronExpr, c.Active,
		c.NotificationEnabled, c.NotificationType, c.NotificationCond)
	if err != nil {
		return fmt.Errorf("pg: update probe: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *ProbeStore) DeleteProbe(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_debug_configs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete probe: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *ProbeStore) CreateProbeLog(ctx context.Context, l *store.ApiDebugLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	reqHeaders, _ := json.Marshal(l.RequestHeaders)
	respHeaders, _ := json.Marshal(l.ResponseHeaders)
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_debug_logs
		(id, config_id, config_name, method, url, request_headers, request_payload,
		 response_status, response_headers, response_body, response_time_ms, status,
		 start_time, end_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())`,
		l.ID, l.ConfigID, l.ConfigName, l.Method, l.URL, jsonOrEmpty(reqHeaders), l.RequestPayload,
		l.ResponseStatus, jsonOrEmpty(respHeaders), l.ResponseBody, l.ResponseTimeMS, l.Status,
		l.StartTime, l.EndTime)
	if err != nil {
		return fmt.Errorf("pg: create probe log: %w", err)
	}
	return nil
}

func (s *ProbeStore) ListProbeLogs(ctx context.Context, configID uuid.UUID, limit int) ([]*store.ApiDebugLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, config_id, config_name, method, url,
		request_headers, request_payload, response_status, response_headers, response_body,
		response_time_ms, status, start_time, end_time, created_at, updated_at
		FROM api_debug_logs WHERE config_id=$1 ORDER BY start_time DESC LIMIT $2`, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list probe logs: %w", err)
	}
	defer rows.Close()
	var out []*store.ApiDebugLog
	for rows.Next() {
		var l store.ApiDebugLog
		var reqHeaders, respHeaders []byte
		if err := rows.Scan(&l.ID, &l.ConfigID, &l.ConfigName, &l.Method, &l.URL, &reqHeaders,
			&l.RequestPayload, &l.ResponseStatus, &respHeaders, &l.ResponseBody,
			&l.ResponseTimeMS, &l.Status, &l.StartTime, &l.EndTime, &l.CreatedAt,
			&l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan probe log: %w", err)
		}
		l.RequestHeaders = map[string]string{}
		_ = json.Unmarshal(reqHeaders, &l.RequestHeaders)
		l.ResponseHeaders = map[string]string{}
		_ = json.Unmarshal(respHeaders, &l.ResponseHeaders)
		out = append(out, &l)
	}
	return out, rows.Err()
}
