package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"zulipnotify/internal/app"
	"zulipnotify/internal/config"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/zulip"
	"zulipnotify/pkg/logx"
)

// withStore loads the config, opens its store and runs fn.
func withStore(opts *globalOpts, fn func(ctx context.Context, cfgm *config.ConfigManager, st storage.Store) error) error {
	cfgm := config.NewConfigManager(opts.configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := app.OpenStore(cfg, logx.Nop())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()
	return fn(context.Background(), cfgm, st)
}

func parseSubject(scopeArg, idArg string) (storage.Scope, int64, error) {
	scope, err := storage.ParseScope(scopeArg)
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(idArg)
	if err != nil {
		return "", 0, err
	}
	return scope, id, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", raw)
	}
	return id, nil
}

func checkKey(scope storage.Scope, key string) error {
	if !slices.Contains(zulip.Keys, key) {
		return fmt.Errorf("unknown key %q", key)
	}
	if key == zulip.KeyEventFilter && scope != storage.ScopeProject {
		return fmt.Errorf("%s applies to projects only", key)
	}
	return nil
}
