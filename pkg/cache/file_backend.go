package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend persists the cache as a single JSON file, written with the
// same write-to-temp-then-rename discipline as the Checkpoint Store
// (pkg/checkpoint), so a crash mid-write never leaves a half-written,
// corrupt cache file in the real path.
type FileBackend struct {
	Path string
}

// NewFileBackend constructs a FileBackend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (f *FileBackend) Save(entries map[string]*Entry) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("cache: creating directory: %w", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: marshaling entries: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("cache: renaming temp file: %w", err)
	}
	return nil
}

func (f *FileBackend) Load() (map[string]*Entry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Entry{}, nil
		}
		return nil, err
	}
	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("cache: unmarshaling cache file: %w", err)
	}
	return entries, nil
}
