package bridge

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/poka/internal/store"
)

// wipUpdateInterval throttles work-in-progress mirroring. File edits arrive
// in bursts; one store write per interval is plenty.
const wipUpdateInterval = 5 * time.Second

// shouldUpdateWIP applies the throttle. Forced updates (commits) always
// pass without touching the throttle stamp, so an edit right after a
// commit is not penalized.
func (rt *Runtime) shouldUpdateWIP(force bool) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if force {
		return true
	}
	now := rt.Now()
	if now.Sub(rt.lastWIPUpdate) < wipUpdateInterval {
		return false
	}
	rt.lastWIPUpdate = now
	return true
}

// updateWIP mirrors a patch onto the active task's wip column, best-effort.
func (rt *Runtime) updateWIP(taskID string, patch map[string]any) {
	if rt.DB == nil {
		return
	}
	if err := store.UpdateTaskWIP(rt.DB, taskID, patch); err != nil {
		slog.Default().Warn("wip update failed", "task", taskID, "error", err)
	}
}

// handleFileChange accumulates modified file paths and mirrors them to the
// active task's WIP. Always a silent skip; file edits never produce context.
func (rt *Runtime) handleFileChange(env Envelope) *Result {
	taskID := currentTaskID()
	if taskID == "" {
		return skip("no active task")
	}

	var in struct {
		FilePath string `json:"file_path"`
	}
	decodeInto(env.ToolInput, &in)
	if in.FilePath == "" {
		return skip("no file path")
	}

	rt.mu.Lock()
	rt.trackedFiles[in.FilePath] = struct{}{}
	files := make([]string, 0, len(rt.trackedFiles))
	for f := range rt.trackedFiles {
		files = append(files, f)
	}
	rt.mu.Unlock()
	sort.Strings(files)

	if !rt.shouldUpdateWIP(false) {
		return skip("rate limited")
	}

	rt.updateWIP(taskID, map[string]any{
		"files_modified":      files,
		"uncommitted_changes": true,
	})
	return skip("wip updated silently")
}

// handleBashExecution captures test results, commits, and command errors
// from shell activity into the active task's WIP. Also always a silent skip.
func (rt *Runtime) handleBashExecution(env Envelope) *Result {
	taskID := currentTaskID()
	if taskID == "" {
		return skip("no active task")
	}

	var in struct {
		Command string `json:"command"`
	}
	decodeInto(env.ToolInput, &in)

	output := outputText(env.ToolResponse)
	code, hasCode := exitCode(env.ToolResponse)

	patch := map[string]any{}
	force := false

	if isTestCommand(in.Command) {
		patch["test_results"] = parseTestOutput(output)
	}

	if strings.Contains(in.Command, "git commit") {
		if hash := extractCommitHash(output); hash != "" {
			patch["last_commit"] = hash
			patch["uncommitted_changes"] = false
			rt.mu.Lock()
			rt.trackedFiles = make(map[string]struct{})
			rt.mu.Unlock()
			force = true
		}
	}

	if hasCode && code != 0 && !isTestCommand(in.Command) {
		if msg := strings.TrimSpace(output); msg != "" {
			patch["errors"] = []map[string]any{{
				"type":    "command_error",
				"command": truncate(in.Command, 200),
				"message": truncate(msg, 500),
			}}
		}
	}

	if len(patch) > 0 && rt.shouldUpdateWIP(force) {
		rt.updateWIP(taskID, patch)
	}
	return skip("wip updated silently")
}
