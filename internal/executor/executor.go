// Package executor runs a Task's script as a child process, streaming
// its stdout/stderr through the Log Cache and LiveLog Hub while it
// runs, and persisting the final outcome as a TaskLog row. Process-tree
// cancellation (graceful or forceful) is grounded on the reference
// scheduler's use of psutil: shirou/gopsutil/v4/process gives the same
// cross-platform child-enumeration and signal-sending primitives in Go.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/scriptyard/taskd/internal/crypto"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/logcache"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/store"
)

// ErrScriptNotFound is returned when a Task's ScriptPath does not exist
// under the configured scripts directory.
var ErrScriptNotFound = errors.New("executor: script not found")

// Config configures script resolution and interpreter commands. These
// mirror the reference scheduler's system-settings rows (scripts_dir,
// python_command, nodejs_command).
type Config struct {
	ScriptsDir    string
	PythonCommand string
	NodeJSCommand string
	GracefulWait  time.Duration

	// EncryptionKey decrypts EnvVar values stored via crypto.Encrypt.
	// Empty disables decryption, so plaintext values keep working.
	EncryptionKey string
}

// DefaultConfig returns the reference scheduler's defaults.
func DefaultConfig(scriptsDir string) Config {
	return Config{
		ScriptsDir:    scriptsDir,
		PythonCommand: "python3",
		NodeJSCommand: "node",
		GracefulWait:  5 * time.Second,
	}
}

// Executor runs Tasks as child processes.
type Executor struct {
	cfg      Config
	stores   *store.Stores
	hub      *livelog.Hub
	cache    *logcache.Cache
	notifier notifier.Notifier

	mu      sync.Mutex
	running map[uuid.UUID]*runningProcess
}

type runningProcess struct {
	pid    int
	logID  uuid.UUID
	cancel context.CancelFunc

	// stopped is set by StopTask before it signals the process, so Run
	// records the outcome as stopped even if the process exits before
	// cancel is called.
	stopped atomic.Bool
}

// New creates an Executor.
func New(cfg Config, stores *store.Stores, hub *livelog.Hub, cache *logcache.Cache, n notifier.Notifier) *Executor {
	return &Executor{
		cfg:      cfg,
		stores:   stores,
		hub:      hub,
		cache:    cache,
		notifier: n,
		running:  make(map[uuid.UUID]*runningProcess),
	}
}

// Run executes t to completion (or until ctx is canceled / StopTask is
// called for t.ID), recording a TaskLog row and broadcasting
// task_start/task_output/task_complete events. triggeredBy is "schedule"
// or "manual".
func (e *Executor) Run(ctx context.Context, t *store.Task, triggeredBy string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := &store.TaskLog{
		TaskID:      t.ID,
		Status:      store.TaskStatusRunning,
		StartTime:   time.Now().UTC(),
		TriggeredBy: triggeredBy,
	}
	if err := e.stores.Tasks.CreateTaskLog(runCtx, log); err != nil {
		return fmt.Errorf("executor: create task log: %w", err)
	}

	e.cache.Start(t.ID, log.ID)
	e.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "task_start",
		Data: map[string]any{"task_id": t.ID, "log_id": log.ID, "name": t.Name},
	})

	scriptPath, workDir, err := e.resolvePaths(t.ScriptPath)
	if err != nil {
		return e.fail(runCtx, t, log, err)
	}

	cmdName, err := e.interpreterCommand(t.ScriptKind)
	if err != nil {
		return e.fail(runCtx, t, log, err)
	}
	args, err := shellwords.Parse(cmdName)
	if err != nil {
		return e.fail(runCtx, t, log, fmt.Errorf("executor: parse command %q: %w", cmdName, err))
	}
	args = append(args, scriptPath)

	env, err := e.buildEnv(runCtx, t)
	if err != nil {
		return e.fail(runCtx, t, log, err)
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = workDir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.fail(runCtx, t, log, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.fail(runCtx, t, log, err)
	}

	if err := cmd.Start(); err != nil {
		return e.fail(runCtx, t, log, err)
	}

	rp := &runningProcess{pid: cmd.Process.Pid, logID: log.ID, cancel: cancel}
	e.mu.Lock()
	e.running[t.ID] = rp
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, t.ID)
		e.mu.Unlock()
	}()

	captured := e.drain(t.ID, stdout, stderr)

	waitErr := cmd.Wait()
	<-captured.done

	var exitCode int
	status := store.TaskStatusSuccess
	stderrText := captured.stderr.String()
	if waitErr != nil {
		status = store.TaskStatusFailed
		if stderrText == "" {
			stderrText = waitErr.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if (runCtx.Err() != nil || rp.stopped.Load()) && status != store.TaskStatusSuccess {
		status = store.TaskStatusStopped
		exitCode = -1
	}

	now := time.Now().UTC()
	log.Status = status
	log.Output = captured.stdout.String()
	log.ErrorOutput = stderrText
	log.ExitCode = &exitCode
	log.EndTime = &now
	if err := e.stores.Tasks.UpdateTaskLog(ctx, log); err != nil {
		slog.Error("executor: update task log failed", "task_id", t.ID, "error", err)
	}

	e.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "task_complete",
		Data: map[string]any{"task_id": t.ID, "log_id": log.ID, "status": status, "exit_code": exitCode},
	})
	e.cache.Finish(t.ID)

	e.notify(ctx, t, status)

	if status == store.TaskStatusFailed {
		return waitErr
	}
	return nil
}

// capturedOutput accumulates the stdout/stderr text of a run, written to
// solely by drain's single writer goroutine, and safe to read once done
// is closed.
type capturedOutput struct {
	stdout strings.Builder
	stderr strings.Builder
	done   chan struct{}
}

// drain spawns two reader goroutines (stdout/stderr) feeding a single
// buffered channel consumed by one writer goroutine, so Log Cache
// appends, Hub broadcasts, and the TaskLog's concatenated stdout/stderr
// all come from one place regardless of which stream produced the line
// -- the Go equivalent of the reference scheduler's
// reader-thread-plus-queue.Queue design.
func (e *Executor) drain(taskID uuid.UUID, stdout, stderr io.Reader) *capturedOutput {
	type line struct {
		stream string
		text   string
	}
	lines := make(chan line, 256)
	var readers sync.WaitGroup

	readStream := func(name string, r io.Reader) {
		defer readers.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- line{stream: name, text: scanner.Text()}
		}
	}

	readers.Add(2)
	go readStream("stdout", stdout)
	go readStream("stderr", stderr)
	go func() {
		readers.Wait()
		close(lines)
	}()

	captured := &capturedOutput{done: make(chan struct{})}
	go func() {
		defer close(captured.done)
		room := livelog.TaskRoom(taskID)
		for l := range lines {
			e.cache.Append(taskID, l.stream, l.text)
			e.hub.Broadcast(room, livelog.Event{
				Type: "task_output",
				Data: map[string]any{"task_id": taskID, "stream": l.stream, "line": l.text},
			})
			if l.stream == "stdout" {
				captured.stdout.WriteString(l.text)
				captured.stdout.WriteByte('\n')
			} else {
				captured.stderr.WriteString(l.text)
				captured.stderr.WriteByte('\n')
			}
		}
	}()
	return captured
}

func (e *Executor) fail(ctx context.Context, t *store.Task, log *store.TaskLog, cause error) error {
	now := time.Now().UTC()
	exitCode := -1
	log.Status = store.TaskStatusFailed
	log.Output = ""
	log.ErrorOutput = cause.Error()
	log.ExitCode = &exitCode
	log.EndTime = &now
	if err := e.stores.Tasks.UpdateTaskLog(ctx, log); err != nil {
		slog.Error("executor: update failed task log", "task_id", t.ID, "error", err)
	}
	e.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "task_error",
		Data: map[string]any{"task_id": t.ID, "log_id": log.ID, "error": cause.Error()},
	})
	e.cache.Finish(t.ID)
	e.notify(ctx, t, store.TaskStatusFailed)
	return cause
}

// resolvePaths validates scriptPath lives under cfg.ScriptsDir and
// returns its absolute path plus the working directory a process for it
// should run in: the script's own directory, unless the script sits
// directly under the scripts root, in which case the root itself.
func (e *Executor) resolvePaths(scriptPath string) (string, string, error) {
	root := filepath.Clean(e.cfg.ScriptsDir)
	full := filepath.Join(root, scriptPath)
	if rel, err := filepath.Rel(root, full); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("executor: script path %q escapes the scripts directory", scriptPath)
	}
	if _, err := os.Stat(full); err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrScriptNotFound, scriptPath)
	}
	dir := filepath.Dir(full)
	return full, dir, nil
}

func (e *Executor) interpreterCommand(kind store.ScriptKind) (string, error) {
	switch kind {
	case store.ScriptKindPython:
		if e.cfg.PythonCommand == "" {
			return "python3", nil
		}
		return e.cfg.PythonCommand, nil
	case store.ScriptKindNodeJS:
		if e.cfg.NodeJSCommand == "" {
			return "node", nil
		}
		return e.cfg.NodeJSCommand, nil
	default:
		return "", fmt.Errorf("executor: unknown script kind %q", kind)
	}
}

// buildEnv assembles the process environment: the OS environment, then
// PYTHONIOENCODING/LANG/LC_ALL forced to UTF-8, then PYTHONUNBUFFERED
// for python tasks, then NODE_PATH (resolved via "npm root -g" only if
// not already set, with the scripts root's local node_modules appended
// when present) for nodejs tasks, then the system EnvVar rows, then
// finally the task's own EnvironmentVars -- each layer overriding the
// last, matching the reference scheduler's execute_task merge order.
func (e *Executor) buildEnv(ctx context.Context, t *store.Task) ([]string, error) {
	env := envToMap(os.Environ())
	env["PYTHONIOENCODING"] = "utf-8"
	env["LANG"] = "zh_CN.UTF-8"
	env["LC_ALL"] = "zh_CN.UTF-8"

	if t.ScriptKind == store.ScriptKindPython {
		env["PYTHONUNBUFFERED"] = "1"
	}

	if t.ScriptKind == store.ScriptKindNodeJS {
		if env["NODE_PATH"] == "" {
			env["NODE_PATH"] = resolveNodePath(ctx)
		}
		localModules := filepath.Join(e.cfg.ScriptsDir, "node_modules")
		if _, err := os.Stat(localModules); err == nil {
			if env["NODE_PATH"] != "" {
				env["NODE_PATH"] = env["NODE_PATH"] + string(os.PathListSeparator) + localModules
			} else {
				env["NODE_PATH"] = localModules
			}
		}
	}

	if e.stores.EnvVars != nil {
		sysVars, err := e.stores.EnvVars.ListEnvVars(ctx)
		if err != nil {
			return nil, fmt.Errorf("executor: list env vars: %w", err)
		}
		for _, v := range sysVars {
			val, err := crypto.Decrypt(v.Value, e.cfg.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("executor: decrypt env var %q: %w", v.Key, err)
			}
			env[v.Key] = val
		}
	}
	for k, v := range t.EnvironmentVars {
		val, err := crypto.Decrypt(v, e.cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("executor: decrypt task env var %q: %w", k, err)
		}
		env[k] = val
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out, nil
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// resolveNodePath shells out to "npm root -g" with a short timeout,
// falling back to the conventional global module path if npm is
// unavailable or the lookup times out.
func resolveNodePath(ctx context.Context) string {
	const fallback = "/usr/local/lib/node_modules"
	npmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(npmCtx, "npm", "root", "-g").Output()
	if err != nil {
		return fallback
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return fallback
	}
	return path
}

// StopTask cancels taskID's in-flight run. graceful sends SIGTERM to
// the whole process tree and waits cfg.GracefulWait before escalating to
// SIGKILL; a non-graceful stop sends SIGKILL immediately. This mirrors
// the reference scheduler's psutil-based stop_task exactly.
func (e *Executor) StopTask(taskID uuid.UUID, graceful bool) error {
	e.mu.Lock()
	rp, ok := e.running[taskID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: task %s is not running", taskID)
	}
	rp.stopped.Store(true)

	proc, err := process.NewProcess(int32(rp.pid))
	if err != nil {
		rp.cancel()
		return nil
	}
	var children []*process.Process
	for queue := []*process.Process{proc}; len(queue) > 0; queue = queue[1:] {
		kids, _ := queue[0].Children()
		children = append(children, kids...)
		queue = append(queue, kids...)
	}

	if !graceful {
		for _, c := range children {
			_ = c.Kill()
		}
		_ = proc.Kill()
		rp.cancel()
		return nil
	}

	for _, c := range children {
		_ = c.Terminate()
	}
	_ = proc.Terminate()

	wait := e.cfg.GracefulWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if running, _ := proc.IsRunning(); !running {
			rp.cancel()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, c := range children {
		_ = c.Kill()
	}
	_ = proc.Kill()
	rp.cancel()
	return nil
}

func (e *Executor) notify(ctx context.Context, t *store.Task, status store.TaskStatus) {
	if t.NotificationType == "" {
		return
	}
	isError := status != store.TaskStatusSuccess
	switch t.NotificationCond {
	case store.NotifySuccess:
		if isError {
			return
		}
	case store.NotifyError:
		if !isError {
			return
		}
	case store.NotifyAlways:
	default:
		if !isError {
			return
		}
	}
	title := fmt.Sprintf("Task %s %s", t.Name, status)
	body := fmt.Sprintf("Task %q finished with status %s", t.Name, status)
	if err := e.notifier.Send(ctx, t.NotificationType, title, body); err != nil {
		slog.Error("executor: notification failed", "task_id", t.ID, "error", err)
	}
}
