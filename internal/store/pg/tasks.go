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

// TaskStore implements store.TaskStore against Postgres.
type TaskStore struct{ db *sql.DB }

const taskColumns = `id, name, description, script_path, script_kind, cron_expr, active,
	is_placeholder, group_id, environment_vars, notification_type, notification_condition,
	delete_after_run, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*store.Task, error) {
	var t store.Task
	var envVars []byte
	var groupID uuid.NullUUID
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ScriptPath, &t.ScriptKind, &t.CronExpr,
		&t.Active, &t.IsPlaceholder, &groupID, &envVars, &t.NotificationType, &t.NotificationCond,
		&t.DeleteAfterRun, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		id := groupID.UUID
		t.GroupID = &id
	}
	t.EnvironmentVars = map[string]string{}
	if len(envVars) > 0 {
		_ = json.Unmarshal(envVars, &t.EnvironmentVars)
	}
	return &t, nil
}

func (s *TaskStore) CreateTask(ctx context.Context, t *store.Task) error {
	if t.ID == uuid.Nil {
		t.ID = store.GenNewID()
	}
	envVars, _ := json.Marshal(t.EnvironmentVars)
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())`,
		t.ID, t.Name, t.Description, t.ScriptPath, t.ScriptKind, t.CronExpr, t.Active,
		t.IsPlaceholder, nilUUID(t.GroupID), jsonOrEmpty(envVars), t.NotificationType,
		t.NotificationCond, t.DeleteAfterRun)
	if err != nil {
		return fmt.Errorf("pg: create task: %w", err)
	}
	return nil
}

func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListTasks(ctx context.Context) ([]*store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("pg: list tasks: %w", err)
	}
	defer rows.Close()
	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TaskStore) UpdateTask(ctx context.Context, t *store.Task) error {
	envVars, _ := json.Marshal(t.EnvironmentVars)
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET name=$2, description=$3, script_path=$4,
		script_kind=$5, cron_expr=$6, active=$7, is_placeholder=$8, group_id=$9,
		environment_vars=$10, notification_type=$11, notification_condition=$12,
		delete_after_run=$13, updated_at=now() WHERE id=$1`,
		t.ID, t.Name, t.Description, t.ScriptPath, t.ScriptKind, t.CronExpr, t.Active,
		t.IsPlaceholder, nilUUID(t.GroupID), jsonOrEmpty(envVars), t.NotificationType,
		t.NotificationCond, t.DeleteAfterRun)
	if err != nil {
		return fmt.Errorf("pg: update task: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *TaskStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete task: %w", err)
	}
	return checkRowsAffected(res)
}

const taskLogColumns = `id, task_id, status, output, error_output, exit_code, triggered_by,
	start_time, end_time, created_at, updated_at`

func scanTaskLog(row interface{ Scan(...any) error }) (*store.TaskLog, error) {
	var l store.TaskLog
	err := row.Scan(&l.ID, &l.TaskID, &l.Status, &l.Output, &l.ErrorOutput, &l.ExitCode,
		&l.TriggeredBy, &l.StartTime, &l.EndTime, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *TaskStore) CreateTaskLog(ctx context.Context, l *store.TaskLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO task_logs (`+taskLogColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())`,
		l.ID, l.TaskID, l.Status, l.Output, l.ErrorOutput, l.ExitCode, l.TriggeredBy,
		l.StartTime, l.EndTime)
	if err != nil {
		return fmt.Errorf("pg: create task log: %w", err)
	}
	return nil
}

func (s *TaskStore) UpdateTaskLog(ctx context.Context, l *store.TaskLog) error {
	res, err := s.db.ExecContext(ctx, `UPDATE task_logs SET status=$2, output=$3,
		error_output=$4, exit_code=$5, end_time=$6, updated_at=now() WHERE id=$1`,
		l.ID, l.Status, l.Output, l.ErrorOutput, l.ExitCode, l.EndTime)
	if err != nil {
		return fmt.Errorf("pg: update task log: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *TaskStore) GetTaskLog(ctx context.Context, id uuid.UUID) (*store.TaskLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs WHERE id=$1`, id)
	l, err := scanTaskLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get task log: %w", err)
	}
	return l, nil
}

func (s *TaskStore) ListTaskLogs(ctx context.Context, taskID uuid.UUID, limit int) ([]*store.TaskLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs
		WHERE task_id=$1 ORDER BY start_time DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list task logs: %w", err)
	}
	defer rows.Close()
	var out []*store.TaskLog
	for rows.Next() {
		l, err := scanTaskLog(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan task log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *TaskStore) LatestRunningTaskLog(ctx context.Context, taskID uuid.UUID) (*store.TaskLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskLogColumns+` FROM task_logs
		WHERE task_id=$1 AND status=$2 ORDER BY start_time DESC LIMIT 1`,
		taskID, store.TaskStatusRunning)
	l, err := scanTaskLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: latest running task log: %w", err)
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
