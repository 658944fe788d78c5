package handoff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryRuns bounds how many payloads a MemoryStore retains.
const DefaultMemoryRuns = 64

// MemoryStore keeps payloads in process, evicting the least recently used
// once full.
type MemoryStore struct {
	cache *lru.Cache[string, string]
}

// NewMemoryStore builds a store holding at most size payloads.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemoryRuns
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create payload cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (m *MemoryStore) Push(_ context.Context, runID, key, payload string) error {
	m.cache.Add(runID+"/"+key, payload)
	return nil
}

func (m *MemoryStore) Pull(_ context.Context, runID, key string) (string, bool, error) {
	payload, ok := m.cache.Get(runID + "/" + key)
	return payload, ok, nil
}

// FileStore writes payloads under dir/<run>/<key>.json so stages can run in
// separate processes.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) Push(_ context.Context, runID, key, payload string) error {
	path, err := f.path(runID, key)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key+"-*")
	if err != nil {
		return fmt.Errorf("create payload file: %w", err)
	}
	if _, err := tmp.WriteString(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close payload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (f *FileStore) Pull(_ context.Context, runID, key string) (string, bool, error) {
	path, err := f.path(runID, key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read payload: %w", err)
	}
	return string(data), true, nil
}

func (f *FileStore) path(runID, key string) (string, error) {
	for _, part := range []string{runID, key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid payload path component %q", part)
		}
	}
	return filepath.Join(f.dir, runID, key+".json"), nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
