package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "zulipnotify/pkg/logx"
)

// redisStore keeps one hash per (scope, id) for metadata and one hash per
// project:
//
//	<prefix>:meta:user:42    -> {zulip_webhook_url: ..., ...}
//	<prefix>:project:7       -> {name: ...}
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "zulipnotify"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.Int("db", cfg.Redis.DB))
	return &redisStore{rdb: rdb, prefix: prefix, log: log}, nil
}

func (s *redisStore) metaKey(scope Scope, id int64) string {
	return fmt.Sprintf("%s:meta:%s:%d", s.prefix, scope, id)
}

func (s *redisStore) projectKey(id int64) string {
	return fmt.Sprintf("%s:project:%d", s.prefix, id)
}

func (s *redisStore) Metadata(ctx context.Context, scope Scope, id int64) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, s.metaKey(scope, id)).Result()
	if err != nil {
		s.log.Debug("redis metadata read failed", logx.String("scope", string(scope)), logx.Int64("id", id), logx.Err(err))
		return nil, err
	}
	return m, nil
}

func (s *redisStore) SetMetadata(ctx context.Context, scope Scope, id int64, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return s.rdb.HSet(ctx, s.metaKey(scope, id), key, value).Err()
}

func (s *redisStore) DeleteMetadata(ctx context.Context, scope Scope, id int64, key string) error {
	return s.rdb.HDel(ctx, s.metaKey(scope, id), strings.TrimSpace(key)).Err()
}

func (s *redisStore) ProjectByID(ctx context.Context, id int64) (Project, error) {
	name, err := s.rdb.HGet(ctx, s.projectKey(id), "name").Result()
	if errors.Is(err, redis.Nil) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return Project{ID: id, Name: name}, nil
}

func (s *redisStore) PutProject(ctx context.Context, p Project) error {
	return s.rdb.HSet(ctx, s.projectKey(p.ID), "name", p.Name).Err()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
