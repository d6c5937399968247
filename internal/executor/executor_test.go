package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/crypto"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/logcache"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/store"
)

// scriptKindShell reuses the "python" interpreter slot to run /bin/sh
// scripts directly in tests, avoiding a dependency on a real Python or
// Node.js install being present wherever these tests run.
const scriptKindShell = store.ScriptKindPython

func newTestExecutor(t *testing.T, scriptsDir string) (*Executor, *fakeTaskStore) {
	t.Helper()
	fts := newFakeTaskStore()
	stores := &store.Stores{Tasks: fts, EnvVars: fakeEnvVarStore{}}
	cfg := Config{
		ScriptsDir:    scriptsDir,
		PythonCommand: "/bin/sh",
		NodeJSCommand: "/bin/sh",
		GracefulWait:  200 * time.Millisecond,
	}
	return New(cfg, stores, livelog.NewHub(), logcache.New(time.Minute), notifier.SlogNotifier{}), fts
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return name
}

func TestRunSucceeds(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "ok.sh", "#!/bin/sh\necho hello\n")
	e, fts := newTestExecutor(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "ok", ScriptPath: rel, ScriptKind: scriptKindShell}
	err := e.Run(context.Background(), task, "manual")
	require.NoError(t, err)

	log := fts.last()
	require.NotNil(t, log)
	assert.Equal(t, store.TaskStatusSuccess, log.Status)
	assert.NotNil(t, log.EndTime)
	assert.Equal(t, "hello\n", log.Output)
	assert.Equal(t, "", log.ErrorOutput)

	lines := e.cache.Lines(task.ID)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0].Text)
}

func TestRunDecryptsEnvVar(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "env.sh", "#!/bin/sh\necho \"$API_TOKEN\"\n")

	fts := newFakeTaskStore()
	const key = "01234567890123456789012345678901"
	ciphertext, err := crypto.Encrypt("super-secret", key)
	require.NoError(t, err)
	stores := &store.Stores{Tasks: fts, EnvVars: fakeEnvVarStore{vars: []*store.EnvVar{{Key: "API_TOKEN", Value: ciphertext}}}}
	cfg := Config{ScriptsDir: dir, PythonCommand: "/bin/sh", NodeJSCommand: "/bin/sh", GracefulWait: 200 * time.Millisecond, EncryptionKey: key}
	e := New(cfg, stores, livelog.NewHub(), logcache.New(time.Minute), notifier.SlogNotifier{})

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "env", ScriptPath: rel, ScriptKind: scriptKindShell}
	require.NoError(t, e.Run(context.Background(), task, "manual"))

	lines := e.cache.Lines(task.ID)
	require.Len(t, lines, 1)
	assert.Equal(t, "super-secret", lines[0].Text)
}

func TestRunFailureRecordsExitCode(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "bad.sh", "#!/bin/sh\necho boom 1>&2\nexit 3\n")
	e, fts := newTestExecutor(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "bad", ScriptPath: rel, ScriptKind: scriptKindShell}
	err := e.Run(context.Background(), task, "manual")
	require.Error(t, err)

	log := fts.last()
	require.NotNil(t, log)
	assert.Equal(t, store.TaskStatusFailed, log.Status)
	require.NotNil(t, log.ExitCode)
	assert.Equal(t, 3, *log.ExitCode)
	assert.Equal(t, "", log.Output)
	assert.Equal(t, "boom\n", log.ErrorOutput)
}

func TestRunMissingScript(t *testing.T) {
	dir := t.TempDir()
	e, fts := newTestExecutor(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "missing", ScriptPath: "nope.sh", ScriptKind: scriptKindShell}
	err := e.Run(context.Background(), task, "manual")
	require.ErrorIs(t, err, ErrScriptNotFound)

	log := fts.last()
	require.NotNil(t, log)
	assert.Equal(t, store.TaskStatusFailed, log.Status)
}

func TestStopTaskGraceful(t *testing.T) {
	dir := t.TempDir()
	rel := writeScript(t, dir, "sleep.sh", "#!/bin/sh\nsleep 5\n")
	e, fts := newTestExecutor(t, dir)

	task := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "sleeper", ScriptPath: rel, ScriptKind: scriptKindShell}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), task, "manual") }()

	require.Eventually(t, func() bool {
		_, ok := e.running[task.ID]
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, e.StopTask(task.ID, true))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after StopTask")
	}

	log := fts.last()
	require.NotNil(t, log)
	assert.Equal(t, store.TaskStatusStopped, log.Status)
}

func TestBuildEnvSetsInterpreterSpecificVars(t *testing.T) {
	dir := t.TempDir()
	e, _ := newTestExecutor(t, dir)

	pyTask := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "py", ScriptKind: store.ScriptKindPython}
	pyEnv, err := e.buildEnv(context.Background(), pyTask)
	require.NoError(t, err)
	pyMap := envToMap(pyEnv)
	assert.Equal(t, "utf-8", pyMap["PYTHONIOENCODING"])
	assert.Equal(t, "zh_CN.UTF-8", pyMap["LANG"])
	assert.Equal(t, "zh_CN.UTF-8", pyMap["LC_ALL"])
	assert.Equal(t, "1", pyMap["PYTHONUNBUFFERED"])
	assert.Empty(t, pyMap["NODE_PATH"])

	nodeTask := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "node", ScriptKind: store.ScriptKindNodeJS}
	nodeEnv, err := e.buildEnv(context.Background(), nodeTask)
	require.NoError(t, err)
	nodeMap := envToMap(nodeEnv)
	assert.Empty(t, nodeMap["PYTHONUNBUFFERED"])
	assert.NotEmpty(t, nodeMap["NODE_PATH"])
}

func TestBuildEnvAppendsLocalNodeModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	e, _ := newTestExecutor(t, dir)
	t.Setenv("NODE_PATH", "/already/set")

	nodeTask := &store.Task{BaseModel: store.BaseModel{ID: store.GenNewID()}, Name: "node", ScriptKind: store.ScriptKindNodeJS}
	env, err := e.buildEnv(context.Background(), nodeTask)
	require.NoError(t, err)
	nodePath := envToMap(env)["NODE_PATH"]
	assert.Contains(t, nodePath, "/already/set")
	assert.Contains(t, nodePath, filepath.Join(dir, "node_modules"))
}

func TestStopTaskNotRunning(t *testing.T) {
	dir := t.TempDir()
	e, _ := newTestExecutor(t, dir)
	err := e.StopTask(store.GenNewID(), true)
	assert.Error(t, err)
}

// fakeTaskStore is a minimal in-memory store.TaskStore sufficient for
// executor tests; only CreateTaskLog and UpdateTaskLog, the two methods
// Run actually calls, do real work.
type fakeTaskStore struct {
	logs []*store.TaskLog
}

func newFakeTaskStore() *fakeTaskStore { return &fakeTaskStore{} }

func (f *fakeTaskStore) last() *store.TaskLog {
	if len(f.logs) == 0 {
		return nil
	}
	return f.logs[len(f.logs)-1]
}

func (f *fakeTaskStore) CreateTask(context.Context, *store.Task) error { return nil }
func (f *fakeTaskStore) GetTask(context.Context, uuid.UUID) (*store.Task, error) {
	return nil, store.ErrNotFound
}
func (f *fakeTaskStore) ListTasks(context.Context) ([]*store.Task, error) { return nil, nil }
func (f *fakeTaskStore) UpdateTask(context.Context, *store.Task) error   { return nil }
func (f *fakeTaskStore) DeleteTask(context.Context, uuid.UUID) error     { return nil }

func (f *fakeTaskStore) CreateTaskLog(_ context.Context, l *store.TaskLog) error {
	l.ID = store.GenNewID()
	f.logs = append(f.logs, l)
	return nil
}
func (f *fakeTaskStore) UpdateTaskLog(_ context.Context, l *store.TaskLog) error {
	for i, existing := range f.logs {
		if existing.ID == l.ID {
			f.logs[i] = l
			return nil
		}
	}
	f.logs = append(f.logs, l)
	return nil
}
func (f *fakeTaskStore) GetTaskLog(context.Context, uuid.UUID) (*store.TaskLog, error) {
	return nil, store.ErrNotFound
}
func (f *fakeTaskStore) ListTaskLogs(context.Context, uuid.UUID, int) ([]*store.TaskLog, error) {
	return nil, nil
}
func (f *fakeTaskStore) LatestRunningTaskLog(context.Context, uuid.UUID) (*store.TaskLog, error) {
	return nil, store.ErrNotFound
}

type fakeEnvVarStore struct {
	vars []*store.EnvVar
}

func (f fakeEnvVarStore) ListEnvVars(context.Context) ([]*store.EnvVar, error) { return f.vars, nil }
func (fakeEnvVarStore) SetEnvVar(context.Context, string, string) error       { return nil }
func (fakeEnvVarStore) DeleteEnvVar(context.Context, string) error            { return nil }
