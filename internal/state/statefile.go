// Package state persists the bridge's cross-invocation records as JSON files
// under the project's .claude directory. Every reader tolerates absence or
// corruption by substituting a typed default; every writer is atomic
// (temp file + rename) and best-effort — bookkeeping must never block the
// primary workflow.
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// loadJSON reads path into v. Returns false (leaving v untouched) when the
// file is missing or corrupt; callers pre-populate v with the typed default.
func loadJSON(path string, v any) bool {
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixed project-relative state paths
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Default().Warn("state file corrupt, using default", "path", path, "error", err)
		return false
	}
	return true
}

// saveJSON writes v to path atomically. Errors are logged and swallowed.
func saveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Default().Warn("state marshal failed", "path", path, "error", err)
		return
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		slog.Default().Warn("state dir create failed", "path", path, "error", err)
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		slog.Default().Warn("state write failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		slog.Default().Warn("state rename failed", "path", path, "error", err)
	}
}

// removeFile deletes path, ignoring absence.
func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("state remove failed", "path", path, "error", err)
	}
}
