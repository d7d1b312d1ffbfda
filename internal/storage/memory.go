package storage

import (
	"context"
	"strings"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	meta     map[string]map[string]string
	projects map[int64]Project
	closed   bool
}

// NewMemory returns an in-process Store.
func NewMemory() Store { return newMemory() }

func newMemory() *memoryStore {
	return &memoryStore{
		meta:     map[string]map[string]string{},
		projects: map[int64]Project{},
	}
}

func (s *memoryStore) Metadata(ctx context.Context, scope Scope, id int64) (map[string]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	src := s.meta[metaKey(scope, id)]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) SetMetadata(ctx context.Context, scope Scope, id int64, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	mk := metaKey(scope, id)
	m := s.meta[mk]
	if m == nil {
		m = map[string]string{}
		s.meta[mk] = m
	}
	m[key] = value
	return nil
}

func (s *memoryStore) DeleteMetadata(ctx context.Context, scope Scope, id int64, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	mk := metaKey(scope, id)
	if m := s.meta[mk]; m != nil {
		delete(m, strings.TrimSpace(key))
		if len(m) == 0 {
			delete(s.meta, mk)
		}
	}
	return nil
}

func (s *memoryStore) ProjectByID(ctx context.Context, id int64) (Project, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Project{}, ErrClosed
	}
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *memoryStore) PutProject(ctx context.Context, p Project) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.projects[p.ID] = p
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
