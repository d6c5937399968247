package store

import (
	"context"

	"github.com/google/uuid"
)

// TaskStore persists Task and TaskLog rows.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	CreateTaskLog(ctx context.Context, l *TaskLog) error
	UpdateTaskLog(ctx context.Context, l *TaskLog) error
	GetTaskLog(ctx context.Context, id uuid.UUID) (*TaskLog, error)
	ListTaskLogs(ctx context.Context, taskID uuid.UUID, limit int) ([]*TaskLog, error)
	LatestRunningTaskLog(ctx context.Context, taskID uuid.UUID) (*TaskLog, error)
}

// EnvVarStore persists the system-wide environment variable table merged
// into every Task's process environment.
type EnvVarStore interface {
	ListEnvVars(ctx context.Context) ([]*EnvVar, error)
	SetEnvVar(ctx context.Context, key, value string) error
	DeleteEnvVar(ctx context.Context, key string) error
}

// SubscriptionStore persists Subscription, SubscriptionFile and
// SubscriptionLog rows.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, s *Subscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error

	ListSubscriptionFiles(ctx context.Context, subID uuid.UUID) ([]*SubscriptionFile, error)
	UpsertSubscriptionFile(ctx context.Context, f *SubscriptionFile) error
	DeleteSubscriptionFile(ctx context.Context, subID uuid.UUID, filePath string) error

	CreateSubscriptionLog(ctx context.Context, l *SubscriptionLog) error
	UpdateSubscriptionLog(ctx context.Context, l *SubscriptionLog) error
	ListSubscriptionLogs(ctx context.Context, subID uuid.UUID, limit int) ([]*SubscriptionLog, error)
}

// ProbeStore persists ApiDebugConfig and ApiDebugLog rows.
type ProbeStore interface {
	CreateProbe(ctx context.Context, c *ApiDebugConfig) error
	GetProbe(ctx context.Context, id uuid.UUID) (*ApiDebugConfig, error)
	ListProbes(ctx context.Context) ([]*ApiDebugConfig, error)
	UpdateProbe(ctx context.Context, c *ApiDebugConfig) error
	DeleteProbe(ctx context.Context, id uuid.UUID) error

	CreateProbeLog(ctx context.Context, l *ApiDebugLog) error
	ListProbeLogs(ctx context.Context, configID uuid.UUID, limit int) ([]*ApiDebugLog, error)
}

// NotificationStore persists NotificationPolicy rows.
type NotificationStore interface {
	GetNotificationPolicy(ctx context.Context, name string) (*NotificationPolicy, error)
	ListNotificationPolicies(ctx context.Context) ([]*NotificationPolicy, error)
	UpsertNotificationPolicy(ctx context.Context, p *NotificationPolicy) error
	DeleteNotificationPolicy(ctx context.Context, name string) error
}

// ConfigStore persists the system-wide Config key/value table.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	AllConfig(ctx context.Context) (map[string]string, error)
}

// Stores aggregates every store interface taskd depends on, plus a
// Close to release the underlying connection/handle. Exactly one
// concrete implementation is constructed at startup, selected by
// StoreConfig.IsManaged.
type Stores struct {
	Tasks         TaskStore
	EnvVars       EnvVarStore
	Subscriptions SubscriptionStore
	Probes        ProbeStore
	Notifications NotificationStore
	Config        ConfigStore
	Close         func() error
}
