package storage

import (
	"context"
	"errors"
	"strings"

	logx "zulipnotify/pkg/logx"
)

// Store is the persistence API used by the dispatcher and the admin CLI.
type Store interface {
	// Metadata returns every key set for (scope, id). Missing subjects yield an empty map.
	Metadata(ctx context.Context, scope Scope, id int64) (map[string]string, error)
	SetMetadata(ctx context.Context, scope Scope, id int64, key, value string) error
	DeleteMetadata(ctx context.Context, scope Scope, id int64, key string) error

	// ProjectByID returns ErrNotFound for unknown projects.
	ProjectByID(ctx context.Context, id int64) (Project, error)
	PutProject(ctx context.Context, p Project) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(context.Background(), cfg, log)
	case "postgres", "postgresql":
		return openPostgres(context.Background(), cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
