package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileVersion = "1.0"

// Store persists section data.
type Store interface {
	Load() error
	Save() error
	GetSection(id string) (map[string]any, error)
	SetSection(id string, data map[string]any) error
	GetAll() (map[string]map[string]any, error)
	SetAll(data map[string]map[string]any) error
}

// fileLayout is the on-disk shape of the user config.
type fileLayout struct {
	Version  string                    `json:"version"`
	Sections map[string]map[string]any `json:"sections"`
}

// FileStore keeps sections in a JSON file. It may hold credentials, so the
// file is written with owner-only permissions.
type FileStore struct {
	path     string
	data     map[string]map[string]any
	version  string
	modified bool
	mu       sync.RWMutex
}

// DefaultPath returns ~/.uisync/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".uisync", "config.json"), nil
}

// NewFileStore opens the store at path, or at DefaultPath when path is
// empty. A missing file is an empty config.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	s := &FileStore{path: path, data: map[string]map[string]any{}, version: fileVersion}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return s, nil
}

// Load replaces the in-memory data with the file's contents.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.data = map[string]map[string]any{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if layout.Version != "" {
		s.version = layout.Version
	}
	s.data = layout.Sections
	if s.data == nil {
		s.data = map[string]map[string]any{}
	}
	s.modified = false
	return nil
}

// Save writes the file atomically through a temp file in the same directory.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(fileLayout{Version: s.version, Sections: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.modified = false
	return nil
}

// GetSection returns a copy of the section's data, empty when absent.
func (s *FileStore) GetSection(id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySection(s.data[id]), nil
}

// SetSection replaces the section's data with a copy of data.
func (s *FileStore) SetSection(id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = copySection(data)
	s.modified = true
	return nil
}

// GetAll returns a deep copy of every section.
func (s *FileStore) GetAll() (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySections(s.data), nil
}

// SetAll replaces every section.
func (s *FileStore) SetAll(data map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = copySections(data)
	s.modified = true
	return nil
}

// IsModified reports unsaved changes.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func copySection(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func copySections(data map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(data))
	for id, section := range data {
		out[id] = copySection(section)
	}
	return out
}
