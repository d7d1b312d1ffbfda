package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Scope names the kind of subject metadata belongs to.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUser:
		return ScopeUser, nil
	case ScopeProject:
		return ScopeProject, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want user or project)", s)
	}
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty): in-process only, lost on restart
//   - "file": JSON snapshot at Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis server at Redis.Addr
//   - "postgres": PostgreSQL database at DSN
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	DSN         string        // postgres only
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func metaKey(scope Scope, id int64) string {
	return fmt.Sprintf("%s:%d", scope, id)
}
