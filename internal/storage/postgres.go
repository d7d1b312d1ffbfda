package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "zulipnotify/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS zulip_metadata (
    scope      TEXT        NOT NULL,
    subject_id BIGINT      NOT NULL,
    key        TEXT        NOT NULL,
    value      TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (scope, subject_id, key)
);

CREATE TABLE IF NOT EXISTS zulip_projects (
    id         BIGINT      PRIMARY KEY,
    name       TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type postgresStore struct {
	db  *pgxpool.Pool
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store opened")
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *postgresStore) Metadata(ctx context.Context, scope Scope, id int64) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key, value FROM zulip_metadata WHERE scope = $1 AND subject_id = $2`, string(scope), id)
	if err != nil {
		s.log.Debug("postgres metadata query failed", logx.String("scope", string(scope)), logx.Int64("id", id), logx.Err(err))
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *postgresStore) SetMetadata(ctx context.Context, scope Scope, id int64, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO zulip_metadata (scope, subject_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (scope, subject_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, string(scope), id, key, value)
	return err
}

func (s *postgresStore) DeleteMetadata(ctx context.Context, scope Scope, id int64, key string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM zulip_metadata WHERE scope = $1 AND subject_id = $2 AND key = $3`,
		string(scope), id, strings.TrimSpace(key))
	return err
}

func (s *postgresStore) ProjectByID(ctx context.Context, id int64) (Project, error) {
	var name string
	err := s.db.QueryRow(ctx, `SELECT name FROM zulip_projects WHERE id = $1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	return Project{ID: id, Name: name}, nil
}

func (s *postgresStore) PutProject(ctx context.Context, p Project) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO zulip_projects (id, name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
	`, p.ID, p.Name)
	return err
}
