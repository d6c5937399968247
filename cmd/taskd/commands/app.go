package commands

import (
	"fmt"
	"time"

	"github.com/scriptyard/taskd/internal/config"
	"github.com/scriptyard/taskd/internal/cron"
	"github.com/scriptyard/taskd/internal/dispatcher"
	"github.com/scriptyard/taskd/internal/executor"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/logcache"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/probe"
	"github.com/scriptyard/taskd/internal/store"
	"github.com/scriptyard/taskd/internal/store/pg"
	"github.com/scriptyard/taskd/internal/store/sqlite"
	"github.com/scriptyard/taskd/internal/subscription"
)

// app holds every long-lived singleton a taskd command needs, wired
// once from a loaded Config.
type app struct {
	cfg        *config.Config
	stores     *store.Stores
	hub        *livelog.Hub
	cache      *logcache.Cache
	dispatcher *dispatcher.Dispatcher
}

// loadApp reads the config file at path (falling back to defaults if
// it cannot be read or parsed), opens the configured storage backend, and wires
// the Executor/Probe Runner/Subscription Syncer into a Dispatcher. It
// does not call Start -- callers decide whether to hydrate schedules.
func loadApp(path string) (*app, error) {
	cfg, err := loadConfigOrDefault(path)
	if err != nil {
		return nil, err
	}

	storeCfg := store.StoreConfig{
		Mode:        string(cfg.Store.Mode),
		SqlitePath:  cfg.Store.SqlitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
	}

	var stores *store.Stores
	if storeCfg.IsManaged() {
		stores, err = pg.New(storeCfg.PostgresDSN)
	} else {
		stores, err = sqlite.New(storeCfg.SqlitePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hub := livelog.NewHub()
	cache := logcache.New(cfg.CacheRetention)
	notif := notifier.Notifier(notifier.SlogNotifier{})

	execCfg := executor.Config{
		ScriptsDir:    cfg.ScriptsDir,
		PythonCommand: cfg.PythonCommand,
		NodeJSCommand: cfg.NodeJSCommand,
		GracefulWait:  cfg.GracefulStop,
		EncryptionKey: cfg.EncryptionKey,
	}
	exec := executor.New(execCfg, stores, hub, cache, notif)
	probes := probe.New(stores, hub, notif, cfg.EncryptionKey)
	subs := subscription.New(stores, hub, notif)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	engine := cron.NewEngine(loc)
	disp := dispatcher.New(engine, stores, exec, probes, subs)

	return &app{cfg: cfg, stores: stores, hub: hub, cache: cache, dispatcher: disp}, nil
}

func loadConfigOrDefault(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	return config.Default(), nil
}
