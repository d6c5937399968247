// Package sqlite implements the store interfaces against a local
// modernc.org/sqlite database (pure Go, no cgo). It is selected
// whenever StoreConfig.IsManaged() is false -- the default, standalone
// deployment mode.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/scriptyard/taskd/internal/store"
)

// New opens (creating if necessary) the sqlite database at path, applies
// pending schema migrations, and returns a fully wired *store.Stores.
func New(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// sqlite has no real connection pool; serialize writers to avoid
	// SQLITE_BUSY under concurrent scheduler fires.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &store.Stores{
		Tasks:         &TaskStore{db: db},
		EnvVars:       &EnvVarStore{db: db},
		Subscriptions: &SubscriptionStore{db: db},
		Probes:        &ProbeStore{db: db},
		Notifications: &NotificationStore{db: db},
		Config:        &ConfigStore{db: db},
		Close:         db.Close,
	}, nil
}
