package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// RoutesDir is the subdirectory holding one YAML file per route.
const RoutesDir = "routes"

// RouteStore persists route declarations as YAML files in the routes
// subdirectory of a configuration directory.
type RouteStore struct {
	mu  sync.RWMutex
	dir string
}

// NewRouteStore returns a store for the configuration directory configDir.
func NewRouteStore(configDir string) *RouteStore {
	return &RouteStore{dir: filepath.Join(configDir, RoutesDir)}
}

// Dir returns the directory the route files live in.
func (s *RouteStore) Dir() string { return s.dir }

// Save writes r to <id>.yaml, replacing any previous declaration.
func (s *RouteStore) Save(r RouteConfig) error {
	if r.ID == "" {
		return fmt.Errorf("route id cannot be empty")
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding route %s: %w", r.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}
	filePath := s.path(r.ID)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	logging.Info("RouteStore", "Saved route %s to %s", r.ID, filePath)
	return nil
}

// Load reads the declaration of route id.
func (s *RouteStore) Load(id string) (RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadFile(s.path(id))
}

// Delete removes the file of route id.
func (s *RouteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.path(id)
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return api.NewNotFoundError("route file", id)
		}
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	logging.Info("RouteStore", "Deleted route %s from %s", id, filePath)
	return nil
}

// LoadAll reads every route file in name order. A missing directory means
// no routes.
func (s *RouteStore) LoadAll() ([]RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	out := make([]RouteConfig, 0, len(files))
	for _, f := range files {
		r, err := s.loadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RouteStore) loadFile(filePath string) (RouteConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
			return RouteConfig{}, api.NewNotFoundError("route file", name)
		}
		return RouteConfig{}, &ConfigurationError{FilePath: filePath, ErrorType: ErrorTypeIO, Err: err}
	}
	var r RouteConfig
	if err := yaml.Unmarshal(data, &r); err != nil {
		return RouteConfig{}, &ConfigurationError{FilePath: filePath, ErrorType: ErrorTypeParse, Err: err}
	}
	if r.ID == "" {
		r.ID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	return r, nil
}

// listFiles returns the .yaml and .yml files of the directory, sorted.
func (s *RouteStore) listFiles() ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob route files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func (s *RouteStore) path(id string) string {
	return filepath.Join(s.dir, sanitizeFilename(id)+".yaml")
}

// sanitizeFilename ensures the filename is safe for filesystem operations
func sanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '.', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unnamed"
	}
	return sanitized
}
