package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/tuskrelay/pkg/log"
	"gopkg.in/yaml.v3"
)

const defaultPollInterval = time.Second

// FileStorage keeps the catalog in a YAML file (.yaml, .yml) or a JSON file (anything else).
type FileStorage struct {
	path         string
	pollInterval time.Duration
	mu           sync.RWMutex
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path:         path,
		pollInterval: defaultPollInterval,
	}
}

// Load reads the catalog, creating an empty one if the file is missing.
func (s *FileStorage) Load(ctx context.Context) (*Config, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()

	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read backend config: %w", err)
		}

		if _, statErr := os.Stat(filepath.Dir(s.path)); os.IsNotExist(statErr) {
			return nil, fmt.Errorf("config directory does not exist: %w", err)
		}

		log.FromCtx(ctx).Info().Str("path", s.path).Msg("backend config not found, creating default")

		cfg := &Config{MCPServers: make(map[string]BackendConfig)}
		if err = s.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	return s.decode(data)
}

func (s *FileStorage) Save(_ context.Context, cfg *Config) error {
	data, err := s.encode(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Watch polls the file and emits the parsed catalog whenever its mtime moves forward.
func (s *FileStorage) Watch(ctx context.Context) (<-chan Config, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	lastMod := info.ModTime()

	updates := make(chan Config)
	go func() {
		defer close(updates)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(s.path)
				if err != nil {
					lastMod = time.Time{}
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}

				s.mu.RLock()
				data, err := os.ReadFile(s.path)
				s.mu.RUnlock()
				if err != nil {
					continue
				}

				cfg, err := s.decode(data)
				if err != nil {
					log.FromCtx(ctx).Error().Err(err).Msg("failed to parse backend config")
					continue
				}
				lastMod = info.ModTime()

				select {
				case updates <- *cfg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, nil
}

func (s *FileStorage) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *FileStorage) decode(data []byte) (*Config, error) {
	cfg := &Config{}

	var err error
	if s.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend config: %w", err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]BackendConfig)
	}
	for name, b := range cfg.MCPServers {
		b.Name = name
		cfg.MCPServers[name] = b
	}
	return cfg, nil
}

func (s *FileStorage) encode(cfg *Config) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}
