package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath             string `yaml:"db_path"`
	FailureThreshold   int    `yaml:"failure_threshold"`
	FailureMaxEntries  int    `yaml:"failure_max_entries"`
	LearningMaxEntries int    `yaml:"learning_max_entries"`
}

// TrackingSettings are effective runtime values for failure tracking and
// knowledge-document rotation.
type TrackingSettings struct {
	FailureThreshold   int `json:"failure_threshold"`
	FailureMaxEntries  int `json:"failure_max_entries"`
	LearningMaxEntries int `json:"learning_max_entries"`
}

const (
	defaultFailureThreshold   = 3
	defaultFailureMaxEntries  = 50
	defaultLearningMaxEntries = 100
)

// EffectiveTrackingSettings returns validated tracking settings with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveTrackingSettings() TrackingSettings {
	cfg := TrackingSettings{
		FailureThreshold:   defaultFailureThreshold,
		FailureMaxEntries:  defaultFailureMaxEntries,
		LearningMaxEntries: defaultLearningMaxEntries,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.FailureThreshold > 0 {
		cfg.FailureThreshold = s.FailureThreshold
	}
	if s.FailureMaxEntries > 0 {
		cfg.FailureMaxEntries = s.FailureMaxEntries
	}
	if s.LearningMaxEntries > 0 {
		cfg.LearningMaxEntries = s.LearningMaxEntries
	}

	if cfg.FailureThreshold > 100 {
		cfg.FailureThreshold = 100
	}
	if cfg.FailureMaxEntries > 1000 {
		cfg.FailureMaxEntries = 1000
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/poka/config.yaml
// 2) /etc/poka/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "poka", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: fixed config lookup paths
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
