package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDBPath resolves the project task database path.
// Order of precedence:
// 1) CLI override (e.g. --db-path)
// 2) Environment variable: POKA_DB_PATH
// 3) config.yaml: db_path
// 4) Default: <project>/.claude/poka/poka.db
// Returns the path and ensures the parent directory exists.
func GetDBPath(projectDir string) (string, error) {
	if override := getDBPathOverride(); override != "" {
		return EnsureDBDir(override)
	}

	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		return EnsureDBDir(envPath)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath != "" {
		return EnsureDBDir(cfg.DBPath)
	}

	return EnsureDBDir(filepath.Join(ClaudeDir(projectDir), "poka", "poka.db"))
}

// EnsureDBDir creates the database's parent directory if needed.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}
