package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "zulipnotify/pkg/logx"
)

// fileStore keeps everything in memory and rewrites a single JSON snapshot
// (tmp file + rename) after every write. Settings change rarely, so the full
// rewrite is fine.
type fileStore struct {
	*memoryStore

	log  logx.Logger
	path string

	// wmu serializes snapshot writes.
	wmu sync.Mutex
}

type fileSnapshot struct {
	Metadata map[string]map[string]string `json:"metadata"`
	Projects map[string]string            `json:"projects"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	mem := newMemory()
	if err := loadSnapshot(path, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &fileStore{memoryStore: mem, log: log, path: path}, nil
}

func loadSnapshot(path string, into *memoryStore) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for k, m := range snap.Metadata {
		cp := make(map[string]string, len(m))
		for mk, mv := range m {
			cp[mk] = mv
		}
		into.meta[k] = cp
	}
	for k, name := range snap.Projects {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		into.projects[id] = Project{ID: id, Name: name}
	}
	return nil
}

func (s *fileStore) SetMetadata(ctx context.Context, scope Scope, id int64, key, value string) error {
	if err := s.memoryStore.SetMetadata(ctx, scope, id, key, value); err != nil {
		return err
	}
	return s.save()
}

func (s *fileStore) DeleteMetadata(ctx context.Context, scope Scope, id int64, key string) error {
	if err := s.memoryStore.DeleteMetadata(ctx, scope, id, key); err != nil {
		return err
	}
	return s.save()
}

func (s *fileStore) PutProject(ctx context.Context, p Project) error {
	s.memoryStore.mu.RLock()
	cur, ok := s.memoryStore.projects[p.ID]
	s.memoryStore.mu.RUnlock()
	if ok && cur == p {
		return nil
	}
	if err := s.memoryStore.PutProject(ctx, p); err != nil {
		return err
	}
	return s.save()
}

func (s *fileStore) save() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.memoryStore.mu.RLock()
	snap := fileSnapshot{
		Metadata: make(map[string]map[string]string, len(s.memoryStore.meta)),
		Projects: make(map[string]string, len(s.memoryStore.projects)),
	}
	for k, m := range s.memoryStore.meta {
		snap.Metadata[k] = m
	}
	for id, p := range s.memoryStore.projects {
		snap.Projects[strconv.FormatInt(id, 10)] = p.Name
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	s.memoryStore.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Debug("storage snapshot rename failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}
