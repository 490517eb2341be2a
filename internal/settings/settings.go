package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	TargetTemperature float64 `yaml:"target_temperature"`
}

func Default() Settings {
	return Settings{
		TargetTemperature: domain.HEATER_DEFAULT_TARGET_TEMP,
	}
}

func ClampTargetTemperature(v float64) float64 {
	if math.IsNaN(v) {
		return domain.HEATER_DEFAULT_TARGET_TEMP
	}
	return math.Max(domain.HEATER_MIN_TARGET_TEMP, math.Min(domain.HEATER_MAX_TARGET_TEMP, v))
}

// Store keeps the user settings in a YAML file. An empty path keeps them in
// memory only.
type Store struct {
	mu       sync.Mutex
	path     string
	defaults Settings
	current  Settings
}

// NewStore returns a store that falls back to defaults while no file exists.
func NewStore(path string, defaults Settings) *Store {
	defaults.TargetTemperature = ClampTargetTemperature(defaults.TargetTemperature)
	return &Store{
		path:     path,
		defaults: defaults,
		current:  defaults,
	}
}

// Load reads the file. A missing file yields the store defaults.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.defaults
	if s.path == "" {
		return s.current, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.current, nil
	}
	if err != nil {
		return s.current, fmt.Errorf("read settings: %w", err)
	}
	loaded := s.defaults
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return s.current, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	loaded.TargetTemperature = ClampTargetTemperature(loaded.TargetTemperature)
	s.current = loaded
	return s.current, nil
}

func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetTargetTemperature clamps and persists v, returning the stored value.
func (s *Store) SetTargetTemperature(v float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	next.TargetTemperature = ClampTargetTemperature(v)
	if err := s.save(next); err != nil {
		return s.current.TargetTemperature, err
	}
	s.current = next
	return next.TargetTemperature, nil
}

func (s *Store) save(settings Settings) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	// atomic replace
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
