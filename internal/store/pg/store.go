// Package pg implements the store interfaces against PostgreSQL using
// database/sql with the pgx/v5 stdlib driver. It is selected whenever
// StoreConfig.IsManaged() is true.
package pg

import (
	"github.com/scriptyard/taskd/internal/store"
)

// New opens a Postgres connection, applies pending migrations, and
// returns a fully wired *store.Stores.
func New(dsn string) (*store.Stores, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
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
