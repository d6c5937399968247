package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// ProbeStore implements store.ProbeStore against sqlite.
type ProbeStore struct{ db *sql.DB }

const probeColumns = `id, name, method, url, headers, payload, cron_expr, active,
	notification_enabled, notification_type, notification_condition, created_at, updated_at`

func scanProbe(row interface{ Scan(...any) error }) (*store.ApiDebugConfig, error) {
	var c store.ApiDebugConfig
	var id, headers, createdAt, updatedAt string
	var active, notificationEnabled int
	err := row.Scan(&id, &c.Name, &c.Method, &c.URL, &headers, &c.Payload, &c.CronExpr,
		&active, &notificationEnabled, &c.NotificationType, &c.NotificationCond,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.ID, _ = uuid.Parse(id)
	c.Active = active != 0
	c.NotificationEnabled = notificationEnabled != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	scanStringMap(headers, &c.Headers)
	return &c, nil
}

func (s *ProbeStore) CreateProbe(ctx context.Context, c *store.ApiDebugConfig) error {
	if c.ID == uuid.Nil {
		c.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_debug_configs (`+probeColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID.String(), c.Name, c.Method, c.URL, jsonStringMap(c.Headers), c.Payload, c.CronExpr,
		boolToInt(c.Active), boolToInt(c.NotificationEnabled), c.NotificationType,
		c.NotificationCond, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create probe: %w", err)
	}
	return nil
}

func (s *ProbeStore) GetProbe(ctx context.Context, id uuid.UUID) (*store.ApiDebugConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+probeColumns+` FROM api_debug_configs WHERE id=?`, id.String())
	c, err := scanProbe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get probe: %w", err)
	}
	return c, nil
}

func (s *ProbeStore) ListProbes(ctx context.Context) ([]*store.ApiDebugConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+probeColumns+` FROM api_debug_configs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list probes: %w", err)
	}
	defer rows.Close()
	var out []*store.ApiDebugConfig
	for rows.Next() {
		c, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan probe: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ProbeStore) UpdateProbe(ctx context.Context, c *store.ApiDebugConfig) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_debug_configs SET name=?, method=?, url=?,
		headers=?, payload=?, cron_expr=?, active=?, notification_enabled=?, notification_type=?,
		notification_condition=?, updated_at=? WHERE id=?`,
		c.Name, c.Method, c.URL, jsonStringMap(c.Headers), c.Payload, c.CronExpr,
		boolToInt(c.Active), boolToInt(c.NotificationEnabled), c.NotificationType,
		c.NotificationCond, timeStr(nowUTC()), c.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update probe: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *ProbeStore) DeleteProbe(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_debug_configs WHERE id=?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete probe: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *ProbeStore) CreateProbeLog(ctx context.Context, l *store.ApiDebugLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_debug_logs
		(id, config_id, config_name, method, url, request_headers, request_payload,
		 response_status, response_headers, response_body, response_time_ms, status,
		 start_time, end_time, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID.String(), l.ConfigID.String(), l.ConfigName, l.Method, l.URL,
		jsonStringMap(l.RequestHeaders), l.RequestPayload, l.ResponseStatus,
		jsonStringMap(l.ResponseHeaders), l.ResponseBody, l.ResponseTimeMS, l.Status,
		timeStr(l.StartTime), timeStr(l.EndTime), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create probe log: %w", err)
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
		FROM api_debug_logs WHERE config_id=? ORDER BY start_time DESC LIMIT ?`, configID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list probe logs: %w", err)
	}
	defer rows.Close()
	var out []*store.ApiDebugLog
	for rows.Next() {
		var l store.ApiDebugLog
		var id, configID, reqHeaders, respHeaders, startTime, endTime, createdAt, updatedAt string
		if err := rows.Scan(&id, &configID, &l.ConfigName, &l.Method, &l.URL, &reqHeaders,
			&l.RequestPayload, &l.ResponseStatus, &respHeaders, &l.ResponseBody,
			&l.ResponseTimeMS, &l.Status, &startTime, &endTime, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan probe log: %w", err)
		}
		l.ID, _ = uuid.Parse(id)
		l.ConfigID, _ = uuid.Parse(configID)
		l.StartTime = parseTime(startTime)
		l.EndTime = parseTime(endTime)
		l.CreatedAt = parseTime(createdAt)
		l.UpdatedAt = parseTime(updatedAt)
		scanStringMap(reqHeaders, &l.RequestHeaders)
		scanStringMap(respHeaders, &l.ResponseHeaders)
		out = append(out, &l)
	}
	return out, rows.Err()
}
