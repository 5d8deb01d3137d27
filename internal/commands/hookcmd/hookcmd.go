// Package hookcmd provides hook installation and uninstallation commands.
// This package is separate from the main commands package to allow independent
// evolution of hook lifecycle management.
package hookcmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dotcommander/poka/internal/output"
)

const pokaCommandFallback = "poka"

//nolint:gochecknoglobals // sync.Once singleton cache for hook definitions; required by the sync.Once pattern
var (
	pokaHooksOnce  sync.Once
	pokaHooksCache map[string]hookEntry
)

// resolveExecutable is swapped in tests, where os.Executable reports the
// test binary instead of an installed poka.
//
//nolint:gochecknoglobals // test seam for executable resolution
var resolveExecutable = os.Executable

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

func claudeSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "settings.json")
}

func projectClaudeSettingsPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".", ".claude", "settings.json")
	}
	return filepath.Join(wd, ".claude", "settings.json")
}

func resolveClaudeSettingsPath(projectScoped bool) string {
	if projectScoped {
		return projectClaudeSettingsPath()
	}
	return claudeSettingsPath()
}

func pokaExecutable() string {
	exe, err := resolveExecutable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return pokaCommandFallback
	}
	return exe
}

func buildPokaHookCommand() string {
	exe := pokaExecutable()
	if exe == pokaCommandFallback {
		return "poka hook handle"
	}
	return fmt.Sprintf("%q hook handle", exe)
}

func pokaHooks() map[string]hookEntry {
	pokaHooksOnce.Do(func() {
		pokaHooksCache = buildPokaHooks()
	})
	return pokaHooksCache
}

// Every event runs the same handler; routing happens inside the bridge on
// the envelope contents. Timeouts leave headroom over the slowest action
// the event can trigger.
func buildPokaHooks() map[string]hookEntry {
	command := buildPokaHookCommand()
	return map[string]hookEntry{
		"SessionStart": {
			Matcher: "startup|resume|clear",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: command,
				Timeout: 60000,
			}},
		},
		"SessionEnd": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: command,
				Timeout: 120000,
			}},
		},
		"PreToolUse": {
			Matcher: "Bash",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: command,
				Timeout: 90000,
			}},
		},
		"PostToolUse": {
			Matcher: "",
			Hooks: []hookHandler{{
				Type:    "command",
				Command: command,
				Timeout: 240000,
			}},
		},
	}
}

func pokaHookEventNames() []string {
	events := make([]string, 0, len(pokaHooks()))
	for name := range pokaHooks() {
		events = append(events, name)
	}
	sort.Strings(events)
	return events
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixed settings locations
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// IsPokaHookCommand checks if a command string is a poka hook command.
func IsPokaHookCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}

	execToken := strings.Trim(parts[0], "\"'")
	if filepath.Base(execToken) != "poka" {
		return false
	}
	return parts[1] == "hook" && parts[2] == "handle"
}

func hookEntryEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}

type installOutcome int

const (
	hookInstalled installOutcome = iota
	hookUpdated
	hookSkipped
)

// upsertPokaHookEntry replaces any existing poka entry for the event with
// newEntry, preserving foreign entries in place.
func upsertPokaHookEntry(existing []any, newEntry map[string]any) ([]any, installOutcome) {
	var kept []any
	hadPoka := false
	matchingPoka := false

	for _, currentEntry := range existing {
		entryObj, ok := currentEntry.(map[string]any)
		if !ok {
			kept = append(kept, currentEntry)
			continue
		}
		if !entryHasPokaHook(entryObj) {
			kept = append(kept, currentEntry)
			continue
		}
		hadPoka = true
		if hookEntryEqual(entryObj, newEntry) {
			matchingPoka = true
		}
	}

	kept = append(kept, newEntry)
	if matchingPoka {
		return kept, hookSkipped
	}
	if hadPoka {
		return kept, hookUpdated
	}
	return kept, hookInstalled
}

func entryHasPokaHook(entryObj map[string]any) bool {
	hooks, ok := entryObj["hooks"].([]any)
	if !ok {
		return false
	}
	for _, h := range hooks {
		hMap, ok := h.(map[string]any)
		if !ok {
			continue
		}
		cmd, _ := hMap["command"].(string)
		if IsPokaHookCommand(cmd) {
			return true
		}
	}
	return false
}

// NewInstallCmd creates the hook install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install poka hooks into Claude Code settings",
		Long:  "Registers the poka hook handler for session and tool events in .claude/settings.json.",
		RunE: func(cmd *cobra.Command, args []string) error {
			type result struct {
				Message   string   `json:"message"`
				Path      string   `json:"path"`
				Installed []string `json:"installed"`
				Updated   []string `json:"updated,omitempty"`
				Skipped   []string `json:"skipped"`
			}

			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed, updated, skipped []string
			for eventName, entry := range pokaHooks() {
				existing, _ := hooksObj[eventName].([]any)

				entryJSON, _ := json.Marshal(entry)
				var entryMap map[string]any
				_ = json.Unmarshal(entryJSON, &entryMap)

				entries, outcome := upsertPokaHookEntry(existing, entryMap)
				hooksObj[eventName] = entries

				switch outcome {
				case hookInstalled:
					installed = append(installed, eventName)
				case hookUpdated:
					updated = append(updated, eventName)
				case hookSkipped:
					skipped = append(skipped, eventName)
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			sort.Strings(installed)
			sort.Strings(updated)
			sort.Strings(skipped)

			message := "Hooks already installed"
			switch {
			case len(installed) > 0:
				message = fmt.Sprintf("Hooks installed (%s)", strings.Join(installed, ", "))
			case len(updated) > 0:
				message = fmt.Sprintf("Hooks updated (%s)", strings.Join(updated, ", "))
			}

			return output.PrintSuccess(result{
				Message:   message + ". Run 'poka status' to verify.",
				Path:      path,
				Installed: installed,
				Updated:   updated,
				Skipped:   skipped,
			})
		},
	}

	cmd.Flags().Bool("project", false, "Install hooks in ./.claude/settings.json")
	return cmd
}

// NewUninstallCmd creates the hook uninstall command.
func NewUninstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove poka hooks from Claude Code settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			type result struct {
				Path    string   `json:"path"`
				Removed []string `json:"removed"`
			}

			projectScoped, _ := cmd.Flags().GetBool("project")
			path := resolveClaudeSettingsPath(projectScoped)

			settings, err := readSettings(path)
			if err != nil {
				return err
			}

			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				return output.PrintSuccess(result{Path: path, Removed: []string{}})
			}

			var removed []string
			for _, eventName := range pokaHookEventNames() {
				entries, ok := hooksObj[eventName].([]any)
				if !ok {
					continue
				}

				var kept []any
				for _, entry := range entries {
					entryObj, ok := entry.(map[string]any)
					if !ok || !entryHasPokaHook(entryObj) {
						kept = append(kept, entry)
					}
				}

				if len(kept) != len(entries) {
					removed = append(removed, eventName)
				}

				if len(kept) == 0 {
					delete(hooksObj, eventName)
				} else {
					hooksObj[eventName] = kept
				}
			}

			settings["hooks"] = hooksObj
			if err := writeSettings(path, settings); err != nil {
				return err
			}

			return output.PrintSuccess(result{Path: path, Removed: removed})
		},
	}

	cmd.Flags().Bool("project", false, "Uninstall hooks from ./.claude/settings.json")
	return cmd
}
