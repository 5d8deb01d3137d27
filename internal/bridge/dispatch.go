package bridge

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/failure"
	"github.com/dotcommander/poka/internal/memory"
	"github.com/dotcommander/poka/internal/models"
	"github.com/dotcommander/poka/internal/state"
	"github.com/dotcommander/poka/internal/store"
)

// Boundaries reports story/epic completion detected on a task transition.
type Boundaries struct {
	StoryCompleted bool   `json:"story_completed"`
	EpicCompleted  bool   `json:"epic_completed"`
	StoryID        string `json:"story_id,omitempty"`
	EpicID         string `json:"epic_id,omitempty"`
}

// Result is a handler's structured outcome, later rendered to markdown
// context for the agent. Skip results produce an empty response.
type Result struct {
	Skip       bool
	SkipReason string

	HooksRun   []string
	TaskID     string
	Worktree   map[string]string
	Boundaries *Boundaries
	Results    []models.ActionOutcome
	Summary    string

	BlockerReason string
	Suggestion    string

	Chain  map[string]any
	Tokens *state.TokenLedger

	Block  bool
	Reason string

	ReviewType        string
	KaizenAction      string
	FixTask           map[string]any
	KaizenMessage     string
	RecurringFailures []string
}

func skip(reason string) *Result {
	return &Result{Skip: true, SkipReason: reason}
}

// Runtime holds everything one hook invocation needs: project paths, the
// action runner, the optional task store handle, and the in-process WIP
// tracking state.
type Runtime struct {
	ProjectDir string
	Runner     *Runner
	DB         *sql.DB
	Tracking   app.TrackingSettings
	Notes      memory.Notes
	Now        func() time.Time

	mu            sync.Mutex
	trackedFiles  map[string]struct{}
	lastWIPUpdate time.Time
}

// NewRuntime wires a runtime for the project. db may be nil; store-backed
// features (crash detection, WIP mirroring, handoff decay, the journal)
// silently disable themselves without it.
func NewRuntime(projectDir string, db *sql.DB) *Runtime {
	return &Runtime{
		ProjectDir:   projectDir,
		Runner:       NewRunner(app.ActionsDir(projectDir), projectDir),
		DB:           db,
		Tracking:     app.EffectiveTrackingSettings(),
		Notes:        memory.New(projectDir),
		Now:          time.Now,
		trackedFiles: make(map[string]struct{}),
	}
}

// tracker builds the review-failure tracker with rule graduation wired to
// the graduate-rules action.
func (rt *Runtime) tracker() failure.Tracker {
	return failure.Tracker{
		Path:       app.FailureTrackingPath(rt.ProjectDir),
		Threshold:  rt.Tracking.FailureThreshold,
		MaxEntries: rt.Tracking.FailureMaxEntries,
		Notes:      rt.Notes,
		Graduate: func(category, description, affectedPaths string, count int) {
			rt.Runner.Run("graduate-rules", nil, map[string]string{
				"CATEGORY":            category,
				"PATTERN_DESCRIPTION": description,
				"AFFECTED_PATHS":      affectedPaths,
				"FAILURE_COUNT":       fmt.Sprintf("%d", count),
			})
		},
	}
}

// Dispatch routes one envelope to its handler. Routing is by hook event
// first, then tool name; anything unmatched is a silent skip so unknown
// events never disturb the session.
func (rt *Runtime) Dispatch(env Envelope) *Result {
	var result *Result

	switch {
	case env.HookEventName == "SessionStart":
		result = rt.handleSessionStart()
		rt.journal(models.EventKindPreSession, env, result)

	case env.HookEventName == "SessionEnd":
		result = rt.handleSessionEnd()
		rt.journal(models.EventKindPostSession, env, result)

	case env.ToolName == "mcp__poka__update_task_status":
		result = rt.handleTaskStatusChange(env)

	case env.ToolName == "mcp__poka__set_blocker":
		result = rt.handleSetBlocker(env)
		rt.journal(models.EventKindBlocker, env, result)

	case env.ToolName == "Bash" && env.HookEventName == "PreToolUse":
		result = rt.handlePreCommit(env)
		rt.journal(models.EventKindPreCommit, env, result)

	case env.ToolName == "Skill" && env.HookEventName == "PostToolUse":
		result = rt.handleSkillComplete(env)
		rt.journal(models.EventKindPostCommand, env, result)

	case env.ToolName == "Task" && env.HookEventName == "PostToolUse":
		rt.recordAgentTokens(env)
		result = rt.handleReviewComplete(env)
		rt.journal(models.EventKindReviewFail, env, result)

	case (env.ToolName == "Edit" || env.ToolName == "Write") && env.HookEventName == "PostToolUse":
		result = rt.handleFileChange(env)

	case env.ToolName == "Bash" && env.HookEventName == "PostToolUse":
		result = rt.handleBashExecution(env)

	default:
		result = skip(fmt.Sprintf("unhandled event: %s/%s", env.HookEventName, env.ToolName))
	}

	return result
}

// journal appends an invocation record to the events table, best-effort.
// Skipped dispatches are not journaled.
func (rt *Runtime) journal(kind string, env Envelope, result *Result) {
	if rt.DB == nil || result == nil || result.Skip {
		return
	}
	meta, err := json.Marshal(map[string]any{
		"hooks_run": result.HooksRun,
		"actions":   len(result.Results),
		"block":     result.Block,
	})
	if err != nil {
		meta = []byte("{}")
	}
	if _, err := store.AppendEvent(rt.DB, kind, env.HookEventName, env.ToolName, result.TaskID, result.Summary, string(meta)); err != nil {
		slog.Default().Warn("event journal write failed", "kind", kind, "error", err)
	}
}

// currentTaskID reads the active task id exported by the coordinator.
func currentTaskID() string {
	id := os.Getenv(app.EnvCurrentTask)
	if id == "" || id == "unknown" {
		return ""
	}
	return id
}

// summarize counts passes and warnings the way every handler reports them.
func summarize(results []models.ActionOutcome) string {
	success, warning := 0, 0
	for _, r := range results {
		switch r.Status {
		case models.ActionSuccess:
			success++
		case models.ActionWarning:
			warning++
		}
	}
	return fmt.Sprintf("%d passed, %d warnings", success, warning)
}
