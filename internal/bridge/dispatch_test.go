package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/poka/internal/app"
	"github.com/dotcommander/poka/internal/memory"
	"github.com/dotcommander/poka/internal/state"
)

func newTestRuntime(t *testing.T) (*Runtime, string, string) {
	t.Helper()
	projectDir := t.TempDir()
	actionsDir := filepath.Join(projectDir, "actions")
	require.NoError(t, os.MkdirAll(actionsDir, 0o755))

	rt := &Runtime{
		ProjectDir:   projectDir,
		Runner:       NewRunner(actionsDir, projectDir),
		Tracking:     app.TrackingSettings{FailureThreshold: 3, FailureMaxEntries: 50, LearningMaxEntries: 100},
		Notes:        memory.Notes{Dir: filepath.Join(projectDir, "memory")},
		Now:          time.Now,
		trackedFiles: make(map[string]struct{}),
	}
	return rt, projectDir, actionsDir
}

func envelope(t *testing.T, hookEvent, toolName string, toolInput, toolResponse any) Envelope {
	t.Helper()
	env := Envelope{HookEventName: hookEvent, ToolName: toolName}
	if toolInput != nil {
		data, err := json.Marshal(toolInput)
		require.NoError(t, err)
		env.ToolInput = data
	}
	if toolResponse != nil {
		data, err := json.Marshal(toolResponse)
		require.NoError(t, err)
		env.ToolResponse = data
	}
	return env
}

func TestDispatch_UnrecognizedEventSkips(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "Notification", "", nil, nil))
	require.True(t, result.Skip)
	require.Contains(t, result.SkipReason, "unhandled event")
}

func TestDispatch_SessionStartWithoutChain(t *testing.T) {
	rt, projectDir, actionsDir := newTestRuntime(t)
	writeScript(t, actionsDir, "verify-clean", "echo clean")

	// A stale ledger from the previous session must be cleared.
	state.RecordAgentUsage(app.TokenUsagePath(projectDir), state.AgentUsage{Type: "old", TotalTokens: 99})

	result := rt.Dispatch(envelope(t, "SessionStart", "", nil, nil))
	require.False(t, result.Skip)
	require.Equal(t, []string{"pre-session"}, result.HooksRun)
	require.Len(t, result.Results, 1)
	require.Equal(t, "verify-clean", result.Results[0].Action)
	require.Equal(t, "1 passed, 0 warnings", result.Summary)

	require.Zero(t, state.LoadTokenLedger(app.TokenUsagePath(projectDir)).TotalAgents)
}

func TestDispatch_SessionStartUnattendedRunsPreflight(t *testing.T) {
	rt, _, actionsDir := newTestRuntime(t)
	writeScript(t, actionsDir, "verify-clean", "echo clean")
	writeScript(t, actionsDir, "pre-flight", `echo "mode=$WORK_MODE"`)
	t.Setenv(app.EnvWorkMode, app.WorkModeUnattended)

	result := rt.Dispatch(envelope(t, "SessionStart", "", nil, nil))
	require.Len(t, result.Results, 2)
	require.Equal(t, "pre-flight", result.Results[1].Action)
	require.Equal(t, "mode=unattended", result.Results[1].Output)
}

func TestDispatch_TaskStartRunsPreTaskActions(t *testing.T) {
	rt, _, actionsDir := newTestRuntime(t)
	writeScript(t, actionsDir, "check-blockers", "echo none")
	writeScript(t, actionsDir, "suggest-skills", "echo poka:test")
	writeScript(t, actionsDir, "setup-worktree", "echo MODE=in-place\necho REASON=small task")

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__update_task_status",
		map[string]any{"task_id": "T-1", "status": "in_progress", "title": "Add login", "type": "feature"}, nil))

	require.False(t, result.Skip)
	require.Equal(t, []string{"pre-task"}, result.HooksRun)
	require.Equal(t, "T-1", result.TaskID)
	require.Equal(t, "in-place", result.Worktree["MODE"])
	require.Equal(t, "small task", result.Worktree["REASON"])
	require.Len(t, result.Results, 3)
}

func TestDispatch_TaskStatusWithoutHooksSkips(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__update_task_status",
		map[string]any{"task_id": "T-1", "status": "blocked"}, nil))
	require.True(t, result.Skip)
	require.Contains(t, result.SkipReason, "blocked")
}

func TestDispatch_TaskCompleteStoryBoundary(t *testing.T) {
	rt, projectDir, _ := newTestRuntime(t)

	state.SaveChain(app.ChainStatePath(projectDir), state.Chain{
		ChainID: "chain-1", ChainIndex: 2, ScopeType: "story", ScopeID: "S1", TasksCompleted: 4,
	})

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__update_task_status",
		map[string]any{"task_id": "T-9", "status": "done"},
		map[string]any{
			"task":       map[string]any{"title": "Wire sessions", "type": "feature"},
			"boundaries": map[string]any{"story_completed": true, "story_id": "S1"},
		}))

	require.False(t, result.Skip)
	require.Equal(t, []string{"post-task", "post-story"}, result.HooksRun)
	require.NotNil(t, result.Boundaries)
	require.True(t, result.Boundaries.StoryCompleted)
	require.Equal(t, "S1", result.Boundaries.StoryID)
	require.False(t, result.Boundaries.EpicCompleted)

	// post-task actions plus the story-boundary test and audit-gate runs.
	var actions []string
	for _, r := range result.Results {
		actions = append(actions, r.Action)
	}
	require.Equal(t, []string{"sync", "commit", "detect-spike", "capture-knowledge", "test", "audit-gate"}, actions)

	chain := state.LoadChain(app.ChainStatePath(projectDir))
	require.Equal(t, 5, chain.TasksCompleted)
}

func TestDispatch_TaskCompleteEpicBoundary(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__update_task_status",
		map[string]any{"task_id": "T-9", "status": "archived"},
		map[string]any{
			"boundaries": map[string]any{"epic_completed": true, "epic_id": "E2"},
		}))

	require.Equal(t, []string{"post-task", "post-epic"}, result.HooksRun)
	require.True(t, result.Boundaries.EpicCompleted)
	require.Equal(t, "E2", result.Boundaries.EpicID)
}

func TestDispatch_SpikeCompletionWritesMemory(t *testing.T) {
	rt, projectDir, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__update_task_status",
		map[string]any{"task_id": "T-7", "status": "done", "type": "spike", "title": "Evaluate cache", "notes": "NO-GO: latency too high"},
		nil))
	require.False(t, result.Skip)

	data, err := os.ReadFile(filepath.Join(projectDir, "memory", "spike-results.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Evaluate cache")
	require.Contains(t, string(data), "**Result**: NO-GO")
}

func TestDispatch_SetBlocker(t *testing.T) {
	rt, _, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "PostToolUse", "mcp__poka__set_blocker",
		map[string]any{"task_id": "T-3", "reason": "waiting on API keys"}, nil))

	require.Equal(t, []string{"on-blocker"}, result.HooksRun)
	require.Equal(t, "T-3", result.TaskID)
	require.Equal(t, "waiting on API keys", result.BlockerReason)
	require.NotEmpty(t, result.Suggestion)
}

func TestDispatch_BashPostToolUseWithoutTaskSkips(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	t.Setenv(app.EnvCurrentTask, "")

	result := rt.Dispatch(envelope(t, "PostToolUse", "Bash",
		map[string]any{"command": "ls -la"},
		map[string]any{"exit_code": 0}))
	require.True(t, result.Skip)
	require.Equal(t, "no active task", result.SkipReason)
}

func TestDispatch_BashPostToolUseWithTaskStillSilent(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	t.Setenv(app.EnvCurrentTask, "T-5")

	result := rt.Dispatch(envelope(t, "PostToolUse", "Bash",
		map[string]any{"command": "go test ./..."},
		map[string]any{"exit_code": 0, "content": "ok  \t12 passed"}))
	require.True(t, result.Skip)
	require.Equal(t, "wip updated silently", result.SkipReason)
}

func TestDispatch_CommitClearsTrackedFiles(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	t.Setenv(app.EnvCurrentTask, "T-5")

	rt.Dispatch(envelope(t, "PostToolUse", "Edit",
		map[string]any{"file_path": "/src/a.go"}, nil))
	require.Len(t, rt.trackedFiles, 1)

	rt.Dispatch(envelope(t, "PostToolUse", "Bash",
		map[string]any{"command": "git commit -m 'save'"},
		map[string]any{"exit_code": 0, "content": "[main abc1234] save"}))
	require.Empty(t, rt.trackedFiles)
}

func TestDispatch_ForcedCommitDoesNotResetThrottle(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	t.Setenv(app.EnvCurrentTask, "T-5")

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rt.Now = func() time.Time { return now }

	result := rt.Dispatch(envelope(t, "PostToolUse", "Edit",
		map[string]any{"file_path": "/src/a.go"}, nil))
	require.Equal(t, "wip updated silently", result.SkipReason)

	now = now.Add(time.Second)
	result = rt.Dispatch(envelope(t, "PostToolUse", "Edit",
		map[string]any{"file_path": "/src/b.go"}, nil))
	require.Equal(t, "rate limited", result.SkipReason)

	// A commit forces through without restamping the throttle clock.
	rt.Dispatch(envelope(t, "PostToolUse", "Bash",
		map[string]any{"command": "git commit -m 'save'"},
		map[string]any{"exit_code": 0, "content": "[main abc1234] save"}))

	// One interval after the first edit (not after the commit) the next
	// edit passes again.
	now = now.Add(4 * time.Second)
	result = rt.Dispatch(envelope(t, "PostToolUse", "Edit",
		map[string]any{"file_path": "/src/c.go"}, nil))
	require.Equal(t, "wip updated silently", result.SkipReason)
}

func TestDispatch_FileChangeWithoutPathSkips(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	t.Setenv(app.EnvCurrentTask, "T-5")

	result := rt.Dispatch(envelope(t, "PostToolUse", "Write", map[string]any{}, nil))
	require.True(t, result.Skip)
	require.Equal(t, "no file path", result.SkipReason)
}

func TestDispatch_TaskCompletionRecordsTokens(t *testing.T) {
	rt, projectDir, _ := newTestRuntime(t)

	result := rt.Dispatch(envelope(t, "PostToolUse", "Task",
		map[string]any{"subagent_type": "implementer", "description": "Build parser"},
		map[string]any{"result": `done. total_tokens: 4521 tool_uses: 17 duration_ms: 93000`}))
	require.True(t, result.Skip, "non-review subagents produce no context")

	ledger := state.LoadTokenLedger(app.TokenUsagePath(projectDir))
	require.Equal(t, 1, ledger.TotalAgents)
	require.Equal(t, 4521, ledger.TotalTokens)
	require.Equal(t, 17, ledger.Agents[0].ToolUses)
}
