package storage

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	logx "zulipnotify/pkg/logx"
)

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	m, err := st.Metadata(ctx, ScopeProject, 1)
	if err != nil {
		t.Fatalf("Metadata on empty store: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty metadata, got %v", m)
	}

	if err := st.SetMetadata(ctx, ScopeProject, 1, "zulip_webhook_url", "https://chat.example.com/api/v1/messages"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := st.SetMetadata(ctx, ScopeProject, 1, "zulip_webhook_eventfilter", "task.create"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := st.SetMetadata(ctx, ScopeUser, 1, "zulip_webhook_email", "a@b.com"); err != nil {
		t.Fatalf("SetMetadata user: %v", err)
	}
	if err := st.SetMetadata(ctx, ScopeProject, 1, "zulip_webhook_eventfilter", "task.update"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	m, err = st.Metadata(ctx, ScopeProject, 1)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if len(m) != 2 || m["zulip_webhook_eventfilter"] != "task.update" {
		t.Fatalf("project metadata = %v", m)
	}
	u, err := st.Metadata(ctx, ScopeUser, 1)
	if err != nil {
		t.Fatalf("Metadata user: %v", err)
	}
	if len(u) != 1 || u["zulip_webhook_email"] != "a@b.com" {
		t.Fatalf("user metadata must not mix with project metadata: %v", u)
	}

	if err := st.DeleteMetadata(ctx, ScopeProject, 1, "zulip_webhook_eventfilter"); err != nil {
		t.Fatalf("DeleteMetadata: %v", err)
	}
	m, _ = st.Metadata(ctx, ScopeProject, 1)
	if _, ok := m["zulip_webhook_eventfilter"]; ok {
		t.Fatalf("expected key to be deleted: %v", m)
	}

	if _, err := st.ProjectByID(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ProjectByID unknown: err = %v, want ErrNotFound", err)
	}
	if err := st.PutProject(ctx, Project{ID: 7, Name: "Website"}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}
	if err := st.PutProject(ctx, Project{ID: 7, Name: "Website v2"}); err != nil {
		t.Fatalf("PutProject update: %v", err)
	}
	p, err := st.ProjectByID(ctx, 7)
	if err != nil {
		t.Fatalf("ProjectByID: %v", err)
	}
	if p.Name != "Website v2" {
		t.Fatalf("project name = %q", p.Name)
	}
}

func TestMemoryStore(t *testing.T) {
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestMemoryStoreClosed(t *testing.T) {
	st := NewMemory()
	_ = st.Close()
	if _, err := st.Metadata(context.Background(), ScopeUser, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)
	_ = st.Close()

	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	m, err := reopened.Metadata(context.Background(), ScopeProject, 1)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if m["zulip_webhook_url"] != "https://chat.example.com/api/v1/messages" {
		t.Fatalf("metadata not persisted: %v", m)
	}
	p, err := reopened.ProjectByID(context.Background(), 7)
	if err != nil || p.Name != "Website v2" {
		t.Fatalf("project not persisted: %+v err=%v", p, err)
	}
}

func TestFileStoreRequiresPath(t *testing.T) {
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error without path")
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zulipnotify.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ZULIPNOTIFY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZULIPNOTIFY_TEST_REDIS_ADDR not set")
	}
	st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: addr, Prefix: "zulipnotify-test-" + strconv.FormatInt(time.Now().UnixNano(), 36)}}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ZULIPNOTIFY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ZULIPNOTIFY_TEST_POSTGRES_DSN not set")
	}
	st, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, err := st.(*postgresStore).db.Exec(context.Background(), "TRUNCATE zulip_metadata, zulip_projects"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, st)
}

func TestPostgresRequiresDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error without dsn")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestParseScope(t *testing.T) {
	if s, err := ParseScope(" Project "); err != nil || s != ScopeProject {
		t.Fatalf("ParseScope = %q, %v", s, err)
	}
	if _, err := ParseScope("team"); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRedisMetadataErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rdb := redis.NewClient(&redis.Options{Addr: closedAddr(t), MaxRetries: -1, DialTimeout: time.Second})
	st := &redisStore{rdb: rdb, prefix: "zulipnotify", log: logx.New(&buf, "debug")}
	defer func() { _ = st.Close() }()

	if _, err := st.Metadata(context.Background(), ScopeUser, 9); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
	if out := buf.String(); !strings.Contains(out, "redis metadata read failed") || !strings.Contains(out, `"id":9`) {
		t.Fatalf("log output=%q", out)
	}
}

func TestPostgresMetadataErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	pool, err := pgxpool.New(context.Background(), "postgres://zulip@"+closedAddr(t)+"/zulip?connect_timeout=1&sslmode=disable")
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	st := &postgresStore{db: pool, log: logx.New(&buf, "debug")}
	defer func() { _ = st.Close() }()

	if _, err := st.Metadata(context.Background(), ScopeProject, 4); err == nil {
		t.Fatalf("expected error from unreachable postgres")
	}
	if out := buf.String(); !strings.Contains(out, "postgres metadata query failed") || !strings.Contains(out, `"scope":"project"`) {
		t.Fatalf("log output=%q", out)
	}
}
