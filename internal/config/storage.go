package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

const documentExt = ".yaml"

// Storage keeps one document per entity below a root directory, laid out as
// <root>/<entityType>/<name>.yaml. Writes replace files atomically.
type Storage struct {
	mu   sync.RWMutex
	root string // empty means the user config directory
}

// NewStorage creates a Storage rooted at the user config directory.
func NewStorage() *Storage {
	return &Storage{}
}

// NewStorageWithPath creates a Storage rooted at root.
func NewStorageWithPath(root string) *Storage {
	return &Storage{root: root}
}

// Save writes data as entityType/name.
func (s *Storage) Save(entityType, name string, data []byte) error {
	path, err := s.documentPath(entityType, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	logging.Debug(api.SubsystemStore, "Saved %s/%s to %s", entityType, name, path)
	return nil
}

// Load reads entityType/name. A missing document yields an api.NotFoundError.
func (s *Storage) Load(entityType, name string) ([]byte, error) {
	path, err := s.documentPath(entityType, name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, api.NewNotFoundError(entityType, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes entityType/name. A missing document yields an
// api.NotFoundError.
func (s *Storage) Delete(entityType, name string) error {
	path, err := s.documentPath(entityType, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return api.NewNotFoundError(entityType, name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	logging.Debug(api.SubsystemStore, "Deleted %s/%s", entityType, name)
	return nil
}

// List returns the sorted document names of entityType. Both .yaml and .yml
// files count; a missing directory is an empty list.
func (s *Storage) List(entityType string) ([]string, error) {
	if entityType == "" {
		return nil, fmt.Errorf("entity type is empty")
	}
	root, err := s.rootDir()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(root, entityType))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}

	names := []string{}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) rootDir() (string, error) {
	if s.root != "" {
		return s.root, nil
	}
	return GetUserConfigDir()
}

func (s *Storage) documentPath(entityType, name string) (string, error) {
	if entityType == "" {
		return "", fmt.Errorf("entity type is empty")
	}
	if name == "" {
		return "", fmt.Errorf("%s name is empty", entityType)
	}
	root, err := s.rootDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, entityType, sanitizeFilename(name)+documentExt), nil
}

// writeAtomic writes through a temporary file in the target directory so
// readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

var unsafeFilenameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", ".", "_", " ", "_",
)

// sanitizeFilename maps name to a single safe path element. UUIDs and run IDs
// pass through unchanged.
func sanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.Replace(name)
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "unnamed"
	}
	return sanitized
}
