package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptyard/taskd/internal/cron"
	"github.com/scriptyard/taskd/internal/executor"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/logcache"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/probe"
	"github.com/scriptyard/taskd/internal/store"
	"github.com/scriptyard/taskd/internal/subscription"
)

type fakeTaskStore struct {
	tasks   map[uuid.UUID]*store.Task
	logs    []*store.TaskLog
	deleted []uuid.UUID
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*store.Task)}
}

func (f *fakeTaskStore) CreateTask(_ context.Context, t *store.Task) error {
	f.tasks[t.ID] = t
	return nil
}
func (f *fakeTaskStore) GetTask(_ context.Context, id uuid.UUID) (*store.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}
func (f *fakeTaskStore) ListTasks(context.Context) ([]*store.Task, error) {
	out := make([]*store.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeTaskStore) UpdateTask(_ context.Context, t *store.Task) error {
	f.tasks[t.ID] = t
	return nil
}
func (f *fakeTaskStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	delete(f.tasks, id)
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeTaskStore) CreateTaskLog(_ context.Context, l *store.TaskLog) error {
	l.ID = store.GenNewID()
	f.logs = append(f.logs, l)
	return nil
}
func (f *fakeTaskStore) UpdateTaskLog(context.Context, *store.TaskLog) error { return nil }
func (f *fakeTaskStore) GetTaskLog(context.Context, uuid.UUID) (*store.TaskLog, error) {
	return nil, store.ErrNotFound
}
func (f *fakeTaskStore) ListTaskLogs(context.Context, uuid.UUID, int) ([]*store.TaskLog, error) {
	return nil, nil
}
func (f *fakeTaskStore) LatestRunningTaskLog(context.Context, uuid.UUID) (*store.TaskLog, error) {
	return nil, store.ErrNotFound
}

type noopProbeStore struct{}

func (noopProbeStore) CreateProbe(context.Context, *store.ApiDebugConfig) error { return nil }
func (noopProbeStore) GetProbe(context.Context, uuid.UUID) (*store.ApiDebugConfig, error) {
	return nil, store.ErrNotFound
}
func (noopProbeStore) ListProbes(context.Context) ([]*store.ApiDebugConfig, error) { return nil, nil }
func (noopProbeStore) UpdateProbe(context.Context, *store.ApiDebugConfig) error    { return nil }
func (noopProbeStore) DeleteProbe(context.Context, uuid.UUID) error                { return nil }
func (noopProbeStore) CreateProbeLog(context.Context, *store.ApiDebugLog) error    { return nil }
func (noopProbeStore) ListProbeLogs(context.Context, uuid.UUID, int) ([]*store.ApiDebugLog, error) {
	return nil, nil
}

type noopSubscriptionStore struct{}

func (noopSubscriptionStore) CreateSubscription(context.Context, *store.Subscription) error { return nil }
func (noopSubscriptionStore) GetSubscription(context.Context, uuid.UUID) (*store.Subscription, error) {
	return nil, store.ErrNotFound
}
func (noopSubscriptionStore) ListSubscriptions(context.Context) ([]*store.Subscription, error) {
	return nil, nil
}
func (noopSubscriptionStore) UpdateSubscription(context.Context, *store.Subscription) error {
	return nil
}
func (noopSubscriptionStore) DeleteSubscription(context.Context, uuid.UUID) error { return nil }
func (noopSubscriptionStore) ListSubscriptionFiles(context.Context, uuid.UUID) ([]*store.SubscriptionFile, error) {
	return nil, nil
}
func (noopSubscriptionStore) UpsertSubscriptionFile(context.Context, *store.SubscriptionFile) error {
	return nil
}
func (noopSubscriptionStore) DeleteSubscriptionFile(context.Context, uuid.UUID, string) error {
	return nil
}
func (noopSubscriptionStore) CreateSubscriptionLog(context.Context, *store.SubscriptionLog) error {
	return nil
}
func (noopSubscriptionStore) UpdateSubscriptionLog(context.Context, *store.SubscriptionLog) error {
	return nil
}
func (noopSubscriptionStore) ListSubscriptionLogs(context.Context, uuid.UUID, int) ([]*store.SubscriptionLog, error) {
	return nil, nil
}

func newTestDispatcher(t *testing.T, scriptsDir string) (*Dispatcher, *fakeTaskStore) {
	t.Helper()
	fts := newFakeTaskStore()
	stores := &store.Stores{
		Tasks:         fts,
		Probes:        noopProbeStore{},
		Subscriptions: noopSubscriptionStore{},
	}
	hub := livelog.NewHub()
	cache := logcache.New(time.Minute)
	notif := notifier.SlogNotifier{}
	exec := executor.New(executor.Config{ScriptsDir: scriptsDir, PythonCommand: "/bin/sh", NodeJSCommand: "/bin/sh", GracefulWait: 200 * time.Millisecond}, stores, hub, cache, notif)
	probes := probe.New(stores, hub, notif, "")
	subs := subscription.New(stores, hub, notif)
	engine := cron.NewEngine(time.UTC)
	return New(engine, stores, exec, probes, subs), fts
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return name
}

func TestRunTaskNowExecutesAndRecordsLog(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "ok.sh", "#!/bin/sh\necho hi\n")
	d, fts := newTestDispatcher(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "ok", Active: true, ScriptPath: rel, ScriptKind: store.ScriptKindPython}
	require.NoError(t, fts.CreateTask(context.Background(), task))

	require.NoError(t, d.RunTaskNow(context.Background(), task.ID))
	require.Len(t, fts.logs, 1)
	assert.Equal(t, store.TaskStatusSuccess, fts.logs[0].Status)
}

func TestRunTaskNowDeletesAfterRun(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "once.sh", "#!/bin/sh\necho once\n")
	d, fts := newTestDispatcher(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "once", Active: true, ScriptPath: rel, ScriptKind: store.ScriptKindPython, DeleteAfterRun: true}
	require.NoError(t, fts.CreateTask(context.Background(), task))

	require.NoError(t, d.RunTaskNow(context.Background(), task.ID))
	_, err := fts.GetTask(context.Background(), task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddTaskSchedulesAndFires(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "tick.sh", "#!/bin/sh\necho tick\n")
	d, fts := newTestDispatcher(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "tick", Active: true, CronExpr: "* * * * * *", ScriptPath: rel, ScriptKind: store.ScriptKindPython}
	require.NoError(t, fts.CreateTask(context.Background(), task))
	require.NoError(t, d.AddTask(task))

	require.Eventually(t, func() bool {
		return len(fts.logs) > 0
	}, 3*time.Second, 20*time.Millisecond)

	d.RemoveTask(task.ID)
}

func TestInactiveTaskSkipsRun(t *testing.T) {
	dir := t.TempDir()
	d, fts := newTestDispatcher(t, dir)
	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "off", Active: false}
	require.NoError(t, fts.CreateTask(context.Background(), task))

	require.NoError(t, d.RunTaskNow(context.Background(), task.ID))
	assert.Empty(t, fts.logs)
}

func TestRunTaskNowRateLimited(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "spam.sh", "#!/bin/sh\necho spam\n")
	d, fts := newTestDispatcher(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "spam", Active: true, ScriptPath: rel, ScriptKind: store.ScriptKindPython}
	require.NoError(t, fts.CreateTask(context.Background(), task))

	for i := 0; i < maxManualRunsPerMinute; i++ {
		require.NoError(t, d.RunTaskNow(context.Background(), task.ID))
	}
	assert.Error(t, d.RunTaskNow(context.Background(), task.ID))
}

func TestStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDispatcher(t, dir)
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
}
