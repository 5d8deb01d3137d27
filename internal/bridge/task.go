package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/models"
	"github.com/dotcommander/poka/internal/state"
	"github.com/dotcommander/poka/internal/store"
)

// taskStatusInput is the update_task_status payload as the bridge reads it.
type taskStatusInput struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Notes  string `json:"notes"`
}

// taskStatusResponse carries the server's echo of the task plus boundary
// metadata computed on the transition.
type taskStatusResponse struct {
	Task struct {
		Title    string `json:"title"`
		TaskType string `json:"task_type"`
		Type     string `json:"type"`
		StoryID  string `json:"story_id"`
	} `json:"task"`
	Boundaries struct {
		StoryCompleted bool   `json:"story_completed"`
		EpicCompleted  bool   `json:"epic_completed"`
		StoryID        string `json:"story_id"`
		EpicID         string `json:"epic_id"`
	} `json:"boundaries"`
}

// handleTaskStatusChange routes a task status transition. Only the
// in-progress and terminal transitions carry hooks.
func (rt *Runtime) handleTaskStatusChange(env Envelope) *Result {
	var in taskStatusInput
	decodeInto(env.ToolInput, &in)

	status := models.TaskStatus(in.Status)
	switch {
	case status == models.TaskStatusInProgress:
		result := rt.handleTaskStart(env, in)
		rt.journal(models.EventKindPreTask, env, result)
		return result
	case status.IsTerminal():
		result := rt.handleTaskComplete(env, in)
		rt.journal(models.EventKindPostTask, env, result)
		return result
	default:
		return skip(fmt.Sprintf("status is %s, no hooks for this transition", in.Status))
	}
}

// handleTaskStart runs the pre-task actions. The setup-worktree action
// reports its placement decision as KEY=value lines on stdout.
func (rt *Runtime) handleTaskStart(env Envelope, in taskStatusInput) *Result {
	var resp taskStatusResponse
	decodeInto(env.ToolResponse, &resp)

	taskID := in.TaskID
	if taskID == "" {
		taskID = "unknown"
	}
	title := resp.Task.Title
	if title == "" {
		title = in.Title
	}
	taskType := resp.Task.TaskType
	if taskType == "" {
		taskType = resp.Task.Type
	}
	if taskType == "" {
		taskType = in.Type
	}
	if taskType == "" {
		taskType = "feature"
	}

	actionEnv := map[string]string{
		"TASK_ID":        taskID,
		"TASK_TITLE":     title,
		"TASK_TYPE":      taskType,
		"STORY_ID":       resp.Task.StoryID,
		"FORCE_WORKTREE": envOrDefault(app.EnvForceWorktree, "false"),
		"FORCE_INPLACE":  envOrDefault(app.EnvForceInplace, "false"),
	}

	var results []models.ActionOutcome
	results = append(results, rt.Runner.Run("check-blockers", nil, actionEnv))
	results = append(results, rt.Runner.Run("suggest-skills", nil, actionEnv))
	worktreeOutcome := rt.Runner.Run("setup-worktree", nil, actionEnv)
	results = append(results, worktreeOutcome)

	worktree := map[string]string{}
	if worktreeOutcome.Status == models.ActionSuccess {
		worktree = parseKeyValueLines(worktreeOutcome.Output)
	}

	return &Result{
		HooksRun: []string{"pre-task"},
		TaskID:   taskID,
		Worktree: worktree,
		Results:  results,
		Summary:  summarize(results),
	}
}

// handleTaskComplete runs the post-task actions, then the story and epic
// boundary actions when the transition closed one, and advances the chain
// record's completion count.
func (rt *Runtime) handleTaskComplete(env Envelope, in taskStatusInput) *Result {
	var resp taskStatusResponse
	decodeInto(env.ToolResponse, &resp)

	taskID := in.TaskID
	if taskID == "" {
		taskID = "unknown"
	}
	title := resp.Task.Title
	if title == "" {
		title = in.Title
	}
	taskType := resp.Task.Type
	if taskType == "" {
		taskType = in.Type
	}

	b := resp.Boundaries
	actionEnv := map[string]string{
		"TASK_ID":         taskID,
		"TASK_TITLE":      title,
		"TASK_TYPE":       taskType,
		"TASK_NOTES":      in.Notes,
		"STORY_ID":        b.StoryID,
		"EPIC_ID":         b.EpicID,
		"STORY_COMPLETED": strconv.FormatBool(b.StoryCompleted),
		"EPIC_COMPLETED":  strconv.FormatBool(b.EpicCompleted),
	}

	hooksRun := []string{"post-task"}
	var results []models.ActionOutcome
	results = append(results, rt.Runner.Run("sync", nil, actionEnv))
	results = append(results, rt.Runner.Run("commit", nil, actionEnv))
	results = append(results, rt.Runner.Run("detect-spike", nil, actionEnv))
	results = append(results, rt.Runner.Run("capture-knowledge", nil, actionEnv))

	if taskType == "spike" {
		if err := rt.Notes.AppendSpikeResult(taskID, title, in.Notes, rt.Now()); err != nil {
			slog.Default().Warn("spike result write failed", "task", taskID, "error", err)
		}
	}

	if b.StoryCompleted {
		hooksRun = append(hooksRun, "post-story")
		results = append(results, rt.Runner.Run("test", nil, actionEnv))
		results = append(results, rt.Runner.Run("audit-gate", nil, withEnv(actionEnv, "BOUNDARY_TYPE", "story")))

		// Memory decay: future sessions inherit one digest per story.
		if b.StoryID != "" && rt.DB != nil {
			if _, err := store.CompactStoryHandoffs(rt.DB, b.StoryID); err != nil {
				slog.Default().Warn("handoff compaction failed", "story", b.StoryID, "error", err)
			}
		}
	}

	if b.EpicCompleted {
		hooksRun = append(hooksRun, "post-epic")
		results = append(results, rt.Runner.Run("audit-gate", nil, withEnv(actionEnv, "BOUNDARY_TYPE", "epic")))

		if b.EpicID != "" && rt.DB != nil {
			if _, err := store.DeleteEpicHandoffs(rt.DB, b.EpicID); err != nil {
				slog.Default().Warn("handoff deletion failed", "epic", b.EpicID, "error", err)
			}
		}
	}

	chainPath := app.ChainStatePath(rt.ProjectDir)
	if chain := state.LoadChain(chainPath); chain.Active() {
		chain.TasksCompleted++
		state.SaveChain(chainPath, chain)
	}

	return &Result{
		HooksRun: hooksRun,
		TaskID:   taskID,
		Boundaries: &Boundaries{
			StoryCompleted: b.StoryCompleted,
			EpicCompleted:  b.EpicCompleted,
			StoryID:        b.StoryID,
			EpicID:         b.EpicID,
		},
		Results: results,
		Summary: summarize(results),
	}
}

// handleSetBlocker surfaces a new blocker. Notification only; the status
// change itself already happened in the task server.
func (rt *Runtime) handleSetBlocker(env Envelope) *Result {
	var in struct {
		TaskID string `json:"task_id"`
		Reason string `json:"reason"`
	}
	decodeInto(env.ToolInput, &in)
	if in.TaskID == "" {
		in.TaskID = "unknown"
	}

	fmt.Fprintf(os.Stderr, "blocker on %s: %s\n", in.TaskID, in.Reason)

	return &Result{
		HooksRun:      []string{"on-blocker"},
		TaskID:        in.TaskID,
		BlockerReason: in.Reason,
		Suggestion:    "Consider working on a different task while this is blocked.",
	}
}

// parseKeyValueLines reads KEY=value pairs, one per line. Lines without
// an equals sign are ignored.
func parseKeyValueLines(output string) map[string]string {
	kv := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return kv
}

func withEnv(base map[string]string, key, value string) map[string]string {
	merged := make(map[string]string, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
