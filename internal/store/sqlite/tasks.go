package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// TaskStore implements store.TaskStore against sqlite.
type TaskStore struct{ db *sql.DB }

const taskColumns = `id, name, description, script_path, script_kind, cron_expr, active,
	is_placeholder, group_id, environment_vars, notification_type, notification_condition,
	delete_after_run, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*store.Task, error) {
	var t store.Task
	var id, envVars string
	var groupIDNull sql.NullString
	var active, isPlaceholder, deleteAfterRun int
	var createdAt, updatedAt string
	err := row.Scan(&id, &t.Name, &t.Description, &t.ScriptPath, &t.ScriptKind, &t.CronExpr,
		&active, &isPlaceholder, &groupIDNull, &envVars, &t.NotificationType,
		&t.NotificationCond, &deleteAfterRun, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.ID, _ = uuid.Parse(id)
	t.Active = active != 0
	t.IsPlaceholder = isPlaceholder != 0
	t.DeleteAfterRun = deleteAfterRun != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.GroupID = parseNullUUID(groupIDNull)
	scanStringMap(envVars, &t.EnvironmentVars)
	return &t, nil
}

func (s *TaskStore) CreateTask(ctx context.Context, t *store.Task) error {
	if t.ID == uuid.Nil {
		t.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID.String(), t.Name, t.Description, t.ScriptPath, t.ScriptKind, t.CronExpr,
		boolToInt(t.Active), boolToInt(t.IsPlaceholder), nullUUIDStr(t.GroupID),
		jsonStringMap(t.EnvironmentVars), t.NotificationType, t.NotificationCond,
		boolToInt(t.DeleteAfterRun), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create task: %w", err)
	}
	return nil
}

func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id.String())
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListTasks(ctx context.Context) ([]*store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()
	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TaskStore) UpdateTask(ctx context.Context, t *store.Task) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, script_path=?,
		script_kind=?, cron_expr=?, active=?, is_placeholder=?, group_id=?, environment_vars=?,
		notification_type=?, notification_condition=?, delete_after_run=?, updated_at=?
		WHERE id=?`,
		t.Name, t.Description, t.ScriptPath, t.ScriptKind, t.CronExpr, boolToInt(t.Active),
		boolToInt(t.IsPlaceholder), nullUUIDStr(t.GroupID), jsonStringMap(t.EnvironmentVars),
		t.NotificationType, t.NotificationCond, boolToInt(t.DeleteAfterRun),
		timeStr(nowUTC()), t.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update task: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *TaskStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete task: %w", err)
	}
	return checkRowsAffected(res)
}

const taskLogColumns = `id, task_id, status, output, error_output, exit_code, triggered_by,
	start_time, end_time, created_at, updated_at`

func scanTaskLog(row interface{ Scan(...any) error }) (*store.TaskLog, error) {
	var l store.TaskLog
	var id, taskID, startTime, createdAt, updatedAt string
	var endTime sql.NullString
	var exitCode sql.NullInt64
	err := row.Scan(&id, &taskID, &l.Status, &l.Output, &l.ErrorOutput, &exitCode,
		&l.TriggeredBy, &startTime, &endTime, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.ID, _ = uuid.Parse(id)
	l.TaskID, _ = uuid.Parse(taskID)
	l.StartTime = parseTime(startTime)
	l.EndTime = parseNullTime(endTime)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	if exitCode.Valid {
		v := int(exitCode.Int64)
		l.ExitCode = &v
	}
	return &l, nil
}

func (s *TaskStore) CreateTaskLog(ctx context.Context, l *store.TaskLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	var exitCode any
	if l.ExitCode != nil {
		exitCode = *l.ExitCode
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO task_logs (`+taskLogColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID.String(), l.TaskID.String(), l.Status, l.Output, l.ErrorOutput, exitCode,
		l.TriggeredBy, timeStr(l.StartTime), nullTimeStr(l.EndTime), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create task log: %w", err)
	}
	return nil
}

func (s *TaskStore) UpdateTaskLog(ctx context.Context, l *store.TaskLog) error {
	var exitCode any
	if l.ExitCode != nil {
		exitCode = *l.ExitCode
	}
	res, err := s.db.ExecContext(ctx, `UPDATE task_logs SET status=?, output=?, error_output=?,
		exit_code=?, end_time=?, updated_at=? WHERE id=?`,
		l.Status, l.Output, l.ErrorOutput, exitCode, nullTimeStr(l.EndTime), timeStr(nowUTC()),
		l.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update task log: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *TaskStore) GetTaskLog(ctx context.Context, id uuid.UUID) (*store.TaskLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs WHERE id=?`, id.String())
	l, err := scanTaskLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task log: %w", err)
	}
	return l, nil
}

func (s *TaskStore) ListTaskLogs(ctx context.Context, taskID uuid.UUID, limit int) ([]*store.TaskLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs
		WHERE task_id=? ORDER BY start_time DESC LIMIT ?`, taskID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list task logs: %w", err)
	}
	defer rows.Close()
	var out []*store.TaskLog
	for rows.Next() {
		l, err := scanTaskLog(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *TaskStore) LatestRunningTaskLog(ctx context.Context, taskID uuid.UUID) (*store.TaskLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs
		WHERE task_id=? AND status=? ORDER BY start_time DESC LIMIT 1`,
		taskID.String(), store.TaskStatusRunning)
	l, err := scanTaskLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest running task log: %w", err)
	}
	return l, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
