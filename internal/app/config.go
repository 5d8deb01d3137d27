package app

import (
	"os"
	"path/filepath"
)

// Environment variables consumed by the bridge. Mode flags are read for
// presence/value only; no validation beyond that.
const (
	EnvProjectDir    = "CLAUDE_PROJECT_DIR"
	EnvWorkMode      = "POKA_WORK_MODE"
	EnvForceWorktree = "POKA_FORCE_WORKTREE"
	EnvForceInplace  = "POKA_FORCE_INPLACE"
	EnvCurrentTask   = "POKA_CURRENT_TASK_ID"
	EnvActionsDir    = "POKA_ACTIONS_DIR"
	EnvDBPath        = "POKA_DB_PATH"
)

// WorkModeUnattended enables pre-flight validation at session start.
const WorkModeUnattended = "unattended"

// ProjectDir resolves the project root: CLAUDE_PROJECT_DIR or the working directory.
func ProjectDir() string {
	if dir := os.Getenv(EnvProjectDir); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// ClaudeDir returns the project-local .claude directory.
func ClaudeDir(projectDir string) string {
	return filepath.Join(projectDir, ".claude")
}

// ChainStatePath is the persisted session-chain record. File presence means
// an active chain; at most one exists per project.
func ChainStatePath(projectDir string) string {
	return filepath.Join(ClaudeDir(projectDir), "poka-chain-state.json")
}

// TokenUsagePath is the per-session token ledger.
func TokenUsagePath(projectDir string) string {
	return filepath.Join(ClaudeDir(projectDir), "poka-token-usage.json")
}

// FailureTrackingPath is the persisted review-failure tracking store.
func FailureTrackingPath(projectDir string) string {
	return filepath.Join(ClaudeDir(projectDir), "poka-review-failures.json")
}

// ProjectConfigPath is the project-scoped bridge configuration.
func ProjectConfigPath(projectDir string) string {
	return filepath.Join(ClaudeDir(projectDir), "poka.json")
}

// ActionsDir resolves the directory holding action scripts.
// POKA_ACTIONS_DIR overrides the default .claude/poka/actions.
func ActionsDir(projectDir string) string {
	if dir := os.Getenv(EnvActionsDir); dir != "" {
		return dir
	}
	return filepath.Join(ClaudeDir(projectDir), "poka", "actions")
}

// ConfigDir returns ~/.config/poka/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "poka"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# poka configuration
# Run: poka --help

# Optional: override the project task database location.
# Can also be set via POKA_DB_PATH or --db-path.
# db_path: /path/to/poka.db
`
