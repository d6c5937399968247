// Package dispatcher wires the Store's Tasks, Probes and Subscriptions
// to a cron.Engine, hydrating every active, schedulable row at startup
// and keeping the Engine's schedule in sync as rows are created,
// updated, or deleted at runtime.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/cron"
	"github.com/scriptyard/taskd/internal/executor"
	"github.com/scriptyard/taskd/internal/probe"
	"github.com/scriptyard/taskd/internal/ratelimit"
	"github.com/scriptyard/taskd/internal/store"
	"github.com/scriptyard/taskd/internal/subscription"
)

// maxManualRunsPerMinute caps how often a single Task/Probe/Subscription
// can be triggered via RunTaskNow/RunProbeNow/RunSubscriptionNow.
// Scheduled fires are governed by the row's own cron expression and
// are never subject to this limit.
const maxManualRunsPerMinute = 12

// Dispatcher owns one cron.Engine and the runners it drives.
type Dispatcher struct {
	engine *cron.Engine
	stores *store.Stores
	exec   *executor.Executor
	probes *probe.Runner
	subs   *subscription.Syncer
	limit  *ratelimit.Limiter

	mu      sync.Mutex
	started bool
}

// New creates a Dispatcher. Call Start once to hydrate it from the
// Store and begin scheduling.
func New(engine *cron.Engine, stores *store.Stores, exec *executor.Executor, probes *probe.Runner, subs *subscription.Syncer) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		stores: stores,
		exec:   exec,
		probes: probes,
		subs:   subs,
		limit:  ratelimit.New(maxManualRunsPerMinute, time.Minute),
	}
}

func taskKey(id uuid.UUID) string         { return "task:" + id.String() }
func probeKey(id uuid.UUID) string        { return "probe:" + id.String() }
func subscriptionKey(id uuid.UUID) string { return "sub:" + id.String() }

// Start loads every active, non-placeholder Task, every active Probe,
// and every active Subscription that has a cron expression from the
// Store and schedules each on the Engine. It is idempotent: calling Start
// again after it has already run is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	tasks, err := d.stores.Tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: list tasks: %w", err)
	}
	for _, t := range tasks {
		if !t.Active || t.IsPlaceholder || t.CronExpr == "" {
			continue
		}
		if err := d.AddTask(t); err != nil {
			slog.Error("dispatcher: schedule task failed", "task_id", t.ID, "error", err)
		}
	}

	probes, err := d.stores.Probes.ListProbes(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: list probes: %w", err)
	}
	for _, p := range probes {
		if !p.Active || p.CronExpr == "" {
			continue
		}
		if err := d.AddProbe(p); err != nil {
			slog.Error("dispatcher: schedule probe failed", "config_id", p.ID, "error", err)
		}
	}

	subs, err := d.stores.Subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: list subscriptions: %w", err)
	}
	for _, s := range subs {
		if !s.Active || s.CronExpr == "" {
			continue
		}
		if err := d.AddSubscription(s); err != nil {
			slog.Error("dispatcher: schedule subscription failed", "subscription_id", s.ID, "error", err)
		}
	}

	return nil
}

// AddTask schedules (or reschedules) t by ID, looking up its current
// row from the Store at every fire so edits made between fires (a new
// cron expression aside, which requires a fresh AddTask call) are
// picked up automatically.
func (d *Dispatcher) AddTask(t *store.Task) error {
	id := t.ID
	return d.engine.Schedule(taskKey(id), t.CronExpr, func(time.Time) {
		d.runTask(context.Background(), id, "schedule")
	})
}

// RemoveTask unschedules a Task.
func (d *Dispatcher) RemoveTask(id uuid.UUID) { d.engine.Cancel(taskKey(id)) }

// RunTaskNow executes a Task immediately, outside its normal schedule.
func (d *Dispatcher) RunTaskNow(ctx context.Context, id uuid.UUID) error {
	if err := d.limit.Allow(taskKey(id)); err != nil {
		return err
	}
	return d.runTask(ctx, id, "manual")
}

func (d *Dispatcher) runTask(ctx context.Context, id uuid.UUID, triggeredBy string) error {
	t, err := d.stores.Tasks.GetTask(ctx, id)
	if err != nil {
		slog.Error("dispatcher: load task failed", "task_id", id, "error", err)
		return err
	}
	if !t.Active {
		return nil
	}
	err = d.exec.Run(ctx, t, triggeredBy)
	if t.DeleteAfterRun {
		if derr := d.stores.Tasks.DeleteTask(ctx, id); derr != nil {
			slog.Error("dispatcher: delete-after-run failed", "task_id", id, "error", derr)
		} else {
			d.RemoveTask(id)
		}
	}
	return err
}

// StopTask cancels a Task's in-flight run, if any.
func (d *Dispatcher) StopTask(id uuid.UUID, graceful bool) error {
	return d.exec.StopTask(id, graceful)
}

// AddProbe schedules (or reschedules) a Probe config.
func (d *Dispatcher) AddProbe(cfg *store.ApiDebugConfig) error {
	id := cfg.ID
	return d.engine.Schedule(probeKey(id), cfg.CronExpr, func(time.Time) {
		d.runProbe(context.Background(), id)
	})
}

// RemoveProbe unschedules a Probe config.
func (d *Dispatcher) RemoveProbe(id uuid.UUID) { d.engine.Cancel(probeKey(id)) }

// RunProbeNow executes a Probe config immediately.
func (d *Dispatcher) RunProbeNow(ctx context.Context, id uuid.UUID) error {
	if err := d.limit.Allow(probeKey(id)); err != nil {
		return err
	}
	return d.runProbe(ctx, id)
}

func (d *Dispatcher) runProbe(ctx context.Context, id uuid.UUID) error {
	cfg, err := d.stores.Probes.GetProbe(ctx, id)
	if err != nil {
		slog.Error("dispatcher: load probe failed", "config_id", id, "error", err)
		return err
	}
	if !cfg.Active {
		return nil
	}
	return d.probes.Run(ctx, cfg)
}

// AddSubscription schedules (or reschedules) a Subscription.
func (d *Dispatcher) AddSubscription(sub *store.Subscription) error {
	id := sub.ID
	return d.engine.Schedule(subscriptionKey(id), sub.CronExpr, func(time.Time) {
		d.runSubscription(context.Background(), id)
	})
}

// RemoveSubscription unschedules a Subscription.
func (d *Dispatcher) RemoveSubscription(id uuid.UUID) { d.engine.Cancel(subscriptionKey(id)) }

// RunSubscriptionNow syncs a Subscription immediately.
func (d *Dispatcher) RunSubscriptionNow(ctx context.Context, id uuid.UUID) error {
	if err := d.limit.Allow(subscriptionKey(id)); err != nil {
		return err
	}
	return d.runSubscription(ctx, id)
}

func (d *Dispatcher) runSubscription(ctx context.Context, id uuid.UUID) error {
	sub, err := d.stores.Subscriptions.GetSubscription(ctx, id)
	if err != nil {
		slog.Error("dispatcher: load subscription failed", "subscription_id", id, "error", err)
		return err
	}
	if !sub.Active {
		return nil
	}
	return d.subs.Run(ctx, sub)
}
