package store

import (
	"context"
	"fmt"

	"timeclock/internal/attendance"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataFile    string
	DatabaseURL string
	SQLitePath  string
}

// Open returns the configured store.
func Open(ctx context.Context, opts Options) (attendance.Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.DataFile)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
