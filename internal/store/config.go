package store

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// PostgresDSN is the Postgres connection string. If empty, the
	// standalone (sqlite) backend is used regardless of Mode.
	PostgresDSN string

	// Mode is "standalone" (default) or "managed".
	Mode string

	// SqlitePath is the database file path used in standalone mode.
	SqlitePath string

	// MigrationsDir points at the Postgres migration source (managed
	// mode only); unused in standalone mode.
	MigrationsDir string
}

// IsManaged reports whether the system should use the Postgres backend.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != "" && c.Mode == "managed"
}
