package sqlite

import "database/sql"

// schemaVersion is bumped whenever migrations is extended. sqlite has no
// embeddable migration driver that avoids cgo, so standalone mode uses
// this small hand-rolled runner instead of golang-migrate (which the
// Postgres backend uses via its pgx/v5 driver).
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		script_path TEXT NOT NULL DEFAULT '',
		script_kind TEXT NOT NULL DEFAULT 'python',
		cron_expr TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		is_placeholder INTEGER NOT NULL DEFAULT 0,
		group_id TEXT,
		environment_vars TEXT NOT NULL DEFAULT '{}',
		notification_type TEXT NOT NULL DEFAULT '',
		notification_condition TEXT NOT NULL DEFAULT 'error',
		delete_after_run INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS task_logs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		error_output TEXT NOT NULL DEFAULT '',
		exit_code INTEGER,
		triggered_by TEXT NOT NULL DEFAULT 'schedule',
		start_time TEXT NOT NULL,
		end_time TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)`,
	`CREATE TABLE IF NOT EXISTS env_vars (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		value TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		repo_url TEXT NOT NULL,
		save_directory TEXT NOT NULL,
		cron_expr TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		include_subfolders INTEGER NOT NULL DEFAULT 1,
		file_extensions TEXT NOT NULL DEFAULT '[]',
		exclude_patterns TEXT NOT NULL DEFAULT '[]',
		sync_delete_removed_files INTEGER NOT NULL DEFAULT 0,
		use_proxy INTEGER NOT NULL DEFAULT 0,
		notification_type TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscription_files (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		md5 TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (subscription_id, file_path)
	)`,
	`CREATE TABLE IF NOT EXISTS subscription_logs (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		status TEXT NOT NULL,
		new_files TEXT NOT NULL DEFAULT '[]',
		updated_files TEXT NOT NULL DEFAULT '[]',
		deleted_files TEXT NOT NULL DEFAULT '[]',
		error_output TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_debug_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT 'GET',
		url TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		payload TEXT NOT NULL DEFAULT '',
		cron_expr TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		notification_enabled INTEGER NOT NULL DEFAULT 0,
		notification_type TEXT NOT NULL DEFAULT '',
		notification_condition TEXT NOT NULL DEFAULT 'error',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_debug_logs (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		config_name TEXT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		request_headers TEXT NOT NULL DEFAULT '{}',
		request_payload TEXT NOT NULL DEFAULT '',
		response_status INTEGER NOT NULL DEFAULT 0,
		response_headers TEXT NOT NULL DEFAULT '{}',
		response_body TEXT NOT NULL DEFAULT '',
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		channel TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		error_only INTEGER NOT NULL DEFAULT 0,
		keywords TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
}

// migrate applies every statement in migrations unconditionally; every
// statement uses CREATE ... IF NOT EXISTS so re-running at startup on an
// already-migrated database is a no-op.
func migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
