package app

import (
	"encoding/json"
	"os"
)

// HeadlessConfig controls session-chain limits and reporting, loaded from the
// project-scoped .claude/poka.json. Written by the chain coordinator; the
// bridge only reads it when deciding whether a chain continues.
type HeadlessConfig struct {
	MaxChains int    `json:"max_chains"`
	Report    string `json:"report"`
	Notify    string `json:"notify"`
}

// ProjectConfig is the project-scoped bridge configuration.
type ProjectConfig struct {
	Headless HeadlessConfig `json:"headless"`
}

const (
	defaultMaxChains  = 10
	defaultReportMode = "on_complete"
	defaultNotifyMode = "terminal"
)

// LoadProjectConfig reads .claude/poka.json with tolerant fallback: a missing
// or corrupt file yields the typed defaults, never an error.
func LoadProjectConfig(projectDir string) ProjectConfig {
	cfg := ProjectConfig{
		Headless: HeadlessConfig{
			MaxChains: defaultMaxChains,
			Report:    defaultReportMode,
			Notify:    defaultNotifyMode,
		},
	}

	data, err := os.ReadFile(ProjectConfigPath(projectDir)) //nolint:gosec // G304: fixed project-relative path
	if err != nil {
		return cfg
	}

	var loaded ProjectConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg
	}

	if loaded.Headless.MaxChains > 0 {
		cfg.Headless.MaxChains = loaded.Headless.MaxChains
	}
	if loaded.Headless.Report != "" {
		cfg.Headless.Report = loaded.Headless.Report
	}
	if loaded.Headless.Notify != "" {
		cfg.Headless.Notify = loaded.Headless.Notify
	}
	return cfg
}
