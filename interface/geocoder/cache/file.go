package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a JSON file mapping the keys to the entries.
// Concurrent processes may race on writes: the last writer wins.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

// NewFileStore returns a store persisted in path
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) read() (map[string]Entry, error) {
	entries := map[string]Entry{}
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("Unmarshal(%s): %w", s.Path, err)
	}
	return entries, nil
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	e, ok := entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Save implements Store. Expired entries are purged.
func (s *FileStore) Save(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		// A corrupted cache is replaced
		entries = map[string]Entry{}
	}
	for k, v := range entries {
		if e.Timestamp.Sub(v.Timestamp) >= ttl {
			delete(entries, k)
		}
	}
	entries[key] = e
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("Save.Marshal: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("Save.MkdirAll: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("Save.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("Save.Rename: %w", err)
	}
	return nil
}
