// Package store defines the persisted domain model and the storage
// interfaces the rest of taskd depends on. Two concrete backends
// implement these interfaces: internal/store/sqlite (standalone mode)
// and internal/store/pg (managed mode).
package store

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides the fields common to every persisted entity.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenNewID generates a new UUID v7 (time-ordered), so rows sort roughly
// by creation order even without a separate index.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// TaskStatus is the lifecycle state of a single Task execution, stamped
// onto the TaskLog row that tracks it.
type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusStopped TaskStatus = "stopped"
)

// ScriptKind selects the interpreter a Task is run with.
type ScriptKind string

const (
	ScriptKindPython ScriptKind = "python"
	ScriptKindNodeJS ScriptKind = "nodejs"
)

// Task is a scheduled script execution. A Task with IsPlaceholder set is
// a group heading used to organize tasks in a UI; the Dispatcher skips
// placeholders, and Tasks with an empty CronExpr, on hydration.
type Task struct {
	BaseModel
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	ScriptPath         string            `json:"script_path"`
	ScriptKind        ScriptKind        `json:"script_kind"`
	CronExpr          string            `json:"cron_expr"`
	Active            bool              `json:"active"`
	IsPlaceholder     bool              `json:"is_placeholder"`
	GroupID           *uuid.UUID        `json:"group_id,omitempty"`
	EnvironmentVars   map[string]string `json:"environment_vars"`
	NotificationType  string            `json:"notification_type"`
	NotificationCond  NotifyCondition   `json:"notification_condition"`
	DeleteAfterRun    bool              `json:"delete_after_run"`
}

// GroupPlaceholder is a named, unscheduled heading Tasks can be grouped
// under. It is stored as a Task with IsPlaceholder set; no Store method
// returns this type, so callers check Task.IsPlaceholder.
type GroupPlaceholder struct {
	BaseModel
	Name string `json:"name"`
}

// TaskLog is one execution record of a Task: one row per run, created in
// TaskStatusRunning state and updated in place to a terminal status.
type TaskLog struct {
	BaseModel
	TaskID       uuid.UUID  `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Output       string     `json:"output"`
	ErrorOutput  string     `json:"error_output"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	TriggeredBy  string     `json:"triggered_by"` // "schedule" or "manual"
}

// EnvVar is a named environment variable merged into every Task's
// process environment ahead of the Task's own EnvironmentVars.
type EnvVar struct {
	BaseModel
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Subscription describes a git repository kept in sync on a schedule.
type Subscription struct {
	BaseModel
	Name                   string   `json:"name"`
	RepoURL                string   `json:"repo_url"`
	SaveDirectory          string   `json:"save_directory"`
	CronExpr               string   `json:"cron_expr"`
	Active                 bool     `json:"active"`
	IncludeSubfolders      bool     `json:"include_subfolders"`
	FileExtensions         []string `json:"file_extensions"`
	ExcludePatterns        []string `json:"exclude_patterns"`
	SyncDeleteRemovedFiles bool     `json:"sync_delete_removed_files"`
	UseProxy               bool     `json:"use_proxy"`
	NotificationType       string   `json:"notification_type"`
}

// SubscriptionFile is one tracked file inside a Subscription's repo,
// keyed by its path relative to the repo root.
type SubscriptionFile struct {
	BaseModel
	SubscriptionID uuid.UUID `json:"subscription_id"`
	FilePath       string    `json:"file_path"`
	MD5            string    `json:"md5"`
}

// SubscriptionLog is one sync run record of a Subscription.
type SubscriptionLog struct {
	BaseModel
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Status         TaskStatus `json:"status"`
	NewFiles       []string   `json:"new_files"`
	UpdatedFiles   []string   `json:"updated_files"`
	DeletedFiles   []string   `json:"deleted_files"`
	ErrorOutput    string     `json:"error_output"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// NotifyCondition controls when a notification fires for a task or
// probe result.
type NotifyCondition string

const (
	NotifyAlways  NotifyCondition = "always"
	NotifySuccess NotifyCondition = "success"
	NotifyError   NotifyCondition = "error"
)

// ApiDebugConfig is an HTTP "probe" job: request a URL on a schedule and
// optionally notify based on the response.
type ApiDebugConfig struct {
	BaseModel
	Name                 string            `json:"name"`
	Method               string            `json:"method"`
	URL                  string            `json:"url"`
	Headers              map[string]string `json:"headers"`
	Payload              string            `json:"payload"`
	CronExpr             string            `json:"cron_expr"`
	Active               bool              `json:"active"`
	NotificationEnabled  bool              `json:"notification_enabled"`
	NotificationType     string            `json:"notification_type"`
	NotificationCond     NotifyCondition   `json:"notification_condition"`
}

// ApiDebugLog is one executed request/response pair of an ApiDebugConfig.
type ApiDebugLog struct {
	BaseModel
	ConfigID        uuid.UUID         `json:"config_id"`
	ConfigName      string            `json:"config_name"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestPayload  string            `json:"request_payload"`
	ResponseStatus  int               `json:"response_status"`
	ResponseHeaders map[string]string `json:"response_headers"`
	ResponseBody    string            `json:"response_body"`
	ResponseTimeMS  int64             `json:"response_time_ms"`
	Status          string            `json:"status"` // "success" or "error"
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
}

// NotificationPolicy names one configured notification channel and the
// filtering rules applied before a message is actually sent through it.
type NotificationPolicy struct {
	BaseModel
	Name       string   `json:"name"`
	Channel    string   `json:"channel"`
	IsActive   bool     `json:"is_active"`
	ErrorOnly  bool     `json:"error_only"`
	Keywords   []string `json:"keywords"`
}

// Config is a single system-wide key/value setting (timezone, script
// root, python/nodejs command, cache retention, ...).
type Config struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known Config keys.
const (
	ConfigKeyTimezone       = "system_timezone"
	ConfigKeyScriptsDir     = "scripts_dir"
	ConfigKeyPythonCommand  = "python_command"
	ConfigKeyNodeJSCommand  = "nodejs_command"
	ConfigKeyCacheRetention = "cache_retention_seconds"
)
