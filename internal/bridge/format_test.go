package bridge

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/poka/internal/models"
	"github.com/dotcommander/poka/internal/state"
)

func TestFormatContext_ResultsTable(t *testing.T) {
	result := &Result{
		HooksRun: []string{"pre-session"},
		Results: []models.ActionOutcome{
			{Action: "verify-clean", Status: models.ActionSuccess, Output: "clean"},
			{Action: "lint", Status: models.ActionWarning, Output: "2 findings"},
			{Action: "recover", Status: models.ActionSkipped, Reason: "script not found"},
		},
		Summary: "1 passed, 1 warnings",
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "## Hooks executed: pre-session")
	require.Contains(t, ctx, "| Action | Status | Output |")
	require.Contains(t, ctx, "| verify-clean | ✓ | clean |")
	require.Contains(t, ctx, "| lint | ⚠️ | 2 findings |")
	require.Contains(t, ctx, "| recover | ⏭️ | script not found |")
	require.Contains(t, ctx, "**Summary:** 1 passed, 1 warnings")
}

func TestFormatContext_TruncatesLongOutput(t *testing.T) {
	result := &Result{
		Results: []models.ActionOutcome{
			{Action: "test", Status: models.ActionSuccess, Output: strings.Repeat("x", 200)},
		},
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "| test | ✓ | "+strings.Repeat("x", 50)+" |")
	require.NotContains(t, ctx, strings.Repeat("x", 51))
}

func TestFormatContext_Boundaries(t *testing.T) {
	result := &Result{
		HooksRun:   []string{"post-task", "post-epic"},
		Boundaries: &Boundaries{StoryCompleted: true, StoryID: "S3", EpicCompleted: true, EpicID: "E1"},
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "✅ Story S3 completed!")
	require.Contains(t, ctx, "🎉 Epic E1 completed!")
}

func TestFormatContext_WorktreeCreated(t *testing.T) {
	result := &Result{
		Worktree: map[string]string{
			"MODE":             "worktree",
			"WORKTREE_CREATED": "true",
			"WORKTREE_BRANCH":  "task/T-1",
			"WORKTREE_PATH":    "/tmp/wt/T-1",
		},
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "## Worktree Setup")
	require.Contains(t, ctx, "Branch created: task/T-1")
	require.Contains(t, ctx, "Based on: main")
	require.Contains(t, ctx, "**IMPORTANT**: Work in `/tmp/wt/T-1` for this task.")
}

func TestFormatContext_WorktreeInPlace(t *testing.T) {
	result := &Result{Worktree: map[string]string{"MODE": "in-place", "REASON": "small task"}}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "## Working In-Place")
	require.Contains(t, ctx, "(small task)")
}

func TestFormatContext_ChainContinue(t *testing.T) {
	var chain map[string]any
	require.NoError(t, json.Unmarshal([]byte(
		`{"action":"continue","chain_id":"chain-1","chain_index":3,"max_chains":10,"tasks_completed":7,"tasks_remaining":2,"continue_command":"claude -p work"}`,
	), &chain))

	ctx := FormatContext(&Result{Chain: chain})
	require.Contains(t, ctx, "## Session Chain: Continuing")
	require.Contains(t, ctx, "Chain chain-1 session 3/10")
	require.Contains(t, ctx, "Tasks completed so far: 7")
	require.Contains(t, ctx, "Next: `claude -p work`")
}

func TestFormatContext_ChainComplete(t *testing.T) {
	var chain map[string]any
	require.NoError(t, json.Unmarshal([]byte(
		`{"action":"complete","tasks_completed":9,"report_path":"/tmp/report.md"}`,
	), &chain))

	ctx := FormatContext(&Result{Chain: chain})
	require.Contains(t, ctx, "## Session Chain: Complete")
	require.Contains(t, ctx, "(9 total)")
	require.Contains(t, ctx, "Report: /tmp/report.md")
}

func TestFormatContext_TokenUsage(t *testing.T) {
	result := &Result{
		Tokens: &state.TokenLedger{TotalAgents: 3, TotalTokens: 1234567},
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "## Token Usage")
	require.Contains(t, ctx, "1,234,567 tokens across 3 subagents")
}

func TestFormatContext_KaizenSuggest(t *testing.T) {
	result := &Result{
		KaizenAction: "SUGGEST",
		FixTask:      map[string]any{"title": "Add tests", "type": "bug", "estimate": float64(3)},
	}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "## Kaizen Review Failure Analysis")
	require.Contains(t, ctx, "**Action:** SUGGEST")
	require.Contains(t, ctx, "- Title: Add tests")
	require.Contains(t, ctx, "- Estimate: 3h")
	require.Contains(t, ctx, "Create this fix task?")
}

func TestFormatContext_KaizenLogged(t *testing.T) {
	result := &Result{KaizenAction: "LOGGED", KaizenMessage: "coverage gap"}

	ctx := FormatContext(result)
	require.Contains(t, ctx, "**Message:** coverage gap")
	require.Contains(t, ctx, "max 3 cycles")
}

func TestWriteResponse_SkipEmitsEmptyObject(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, "PostToolUse", &Result{Skip: true, SkipReason: "nothing to do"}))
	require.Equal(t, "{}\n", buf.String())
}

func TestWriteResponse_SessionEndEmitsEmptyObject(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, "SessionEnd", &Result{HooksRun: []string{"post-session"}}))
	require.Equal(t, "{}\n", buf.String())
}

func TestWriteResponse_ContextPayload(t *testing.T) {
	var buf bytes.Buffer
	result := &Result{HooksRun: []string{"pre-task"}, Summary: "1 passed, 0 warnings"}
	require.NoError(t, WriteResponse(&buf, "PostToolUse", result))

	var resp struct {
		HookSpecificOutput struct {
			HookEventName     string `json:"hookEventName"`
			AdditionalContext string `json:"additionalContext"`
		} `json:"hookSpecificOutput"`
		Decision string `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "PostToolUse", resp.HookSpecificOutput.HookEventName)
	require.Contains(t, resp.HookSpecificOutput.AdditionalContext, "## Hooks executed: pre-task")
	require.Empty(t, resp.Decision)
}

func TestWriteResponse_BlockDecision(t *testing.T) {
	var buf bytes.Buffer
	result := &Result{HooksRun: []string{"pre-commit"}, Block: true, Reason: "lint failed"}
	require.NoError(t, WriteResponse(&buf, "PreToolUse", result))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "block", resp["decision"])
	require.Equal(t, "lint failed", resp["reason"])
}

func TestWriteResponse_BlockDefaultReason(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, "PreToolUse", &Result{Block: true}))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "Hook check failed", resp["reason"])
}
