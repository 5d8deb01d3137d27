package bridge

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dotcommander/poka/internal/models"
)

var statusIcons = map[models.ActionStatus]string{
	models.ActionSuccess:     "✓",
	models.ActionWarning:     "⚠️",
	models.ActionError:       "❌",
	models.ActionSkipped:     "⏭️",
	models.ActionBlocked:     "🚫",
	models.ActionRateLimited: "⏳",
	models.ActionTimeout:     "⏰",
}

// FormatContext renders a handler result as the markdown context injected
// into the agent's conversation.
func FormatContext(result *Result) string {
	var lines []string

	if len(result.HooksRun) > 0 {
		lines = append(lines, "## Hooks executed: "+strings.Join(result.HooksRun, ", "), "")
	}

	if b := result.Boundaries; b != nil {
		if b.StoryCompleted {
			lines = append(lines, fmt.Sprintf("✅ Story %s completed!", orUnknown(b.StoryID)))
		}
		if b.EpicCompleted {
			lines = append(lines, fmt.Sprintf("🎉 Epic %s completed!", orUnknown(b.EpicID)))
		}
	}

	if len(result.Results) > 0 {
		lines = append(lines, "", "| Action | Status | Output |", "|--------|--------|--------|")
		for _, r := range result.Results {
			icon, ok := statusIcons[r.Status]
			if !ok {
				icon = "?"
			}
			out := r.Output
			if out == "" {
				out = r.Reason
			}
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |", r.Action, icon, truncate(out, 50)))
		}
	}

	if result.Summary != "" {
		lines = append(lines, "", "**Summary:** "+result.Summary)
	}

	lines = append(lines, formatWorktree(result.Worktree)...)

	if result.BlockerReason != "" {
		lines = append(lines, "", "**Blocker:** "+result.BlockerReason)
	}
	if result.Suggestion != "" {
		lines = append(lines, "**Suggestion:** "+result.Suggestion)
	}

	lines = append(lines, formatChain(result.Chain)...)

	if t := result.Tokens; t != nil {
		lines = append(lines, "", "## Token Usage",
			fmt.Sprintf("%s tokens across %d subagents", humanize.Comma(int64(t.TotalTokens)), t.TotalAgents))
	}

	lines = append(lines, formatKaizen(result)...)

	return strings.Join(lines, "\n")
}

func formatWorktree(worktree map[string]string) []string {
	if len(worktree) == 0 {
		return nil
	}

	var lines []string
	switch worktree["MODE"] {
	case "worktree":
		switch {
		case worktree["WORKTREE_CREATED"] == "true":
			lines = append(lines, "", "## Worktree Setup",
				"  ✓ Branch created: "+orUnknown(worktree["WORKTREE_BRANCH"]),
				"  ✓ Path: "+orUnknown(worktree["WORKTREE_PATH"]),
				"  ✓ Based on: "+orDefault(worktree["BASE_BRANCH"], "main"),
				"",
				fmt.Sprintf("**IMPORTANT**: Work in `%s` for this task.", worktree["WORKTREE_PATH"]))
		case worktree["WORKTREE_REUSED"] == "true":
			lines = append(lines, "", "## Worktree Reused",
				"  ✓ Using existing worktree: "+orUnknown(worktree["WORKTREE_PATH"]),
				"",
				fmt.Sprintf("**IMPORTANT**: Work in `%s` for this task.", worktree["WORKTREE_PATH"]))
		}
	case "in-place":
		reason := orDefault(worktree["REASON"], "smart default")
		lines = append(lines, "", "## Working In-Place",
			fmt.Sprintf("  Working directly on current branch (%s).", reason))
	}
	return lines
}

func formatChain(chain map[string]any) []string {
	if len(chain) == 0 {
		return nil
	}

	action, _ := chain["action"].(string)
	var lines []string
	switch action {
	case "continue":
		lines = append(lines, "", "## Session Chain: Continuing",
			fmt.Sprintf("Chain %v session %v/%v", chainField(chain, "chain_id", "?"), chainField(chain, "chain_index", "?"), chainField(chain, "max_chains", "?")),
			fmt.Sprintf("Tasks completed so far: %v", chainField(chain, "tasks_completed", 0)),
			fmt.Sprintf("Tasks remaining: %v", chainField(chain, "tasks_remaining", 0)),
			fmt.Sprintf("Next: `%v`", chainField(chain, "continue_command", "")))
	case "complete":
		lines = append(lines, "", "## Session Chain: Complete",
			fmt.Sprintf("All tasks in scope completed! (%v total)", chainField(chain, "tasks_completed", 0)))
		if report, _ := chain["report_path"].(string); report != "" {
			lines = append(lines, "Report: "+report)
		}
	case "limit_reached":
		lines = append(lines, "", "## Session Chain: Limit Reached",
			fmt.Sprintf("Max chains (%v) reached.", chainField(chain, "max_chains", 10)),
			fmt.Sprintf("Completed: %v, Remaining: %v", chainField(chain, "tasks_completed", 0), chainField(chain, "tasks_remaining", 0)))
		if report, _ := chain["report_path"].(string); report != "" {
			lines = append(lines, "Report: "+report)
		}
	}
	return lines
}

func formatKaizen(result *Result) []string {
	if result.KaizenAction == "" {
		return nil
	}

	lines := []string{"", "## Kaizen Review Failure Analysis", "**Action:** " + result.KaizenAction}

	switch result.KaizenAction {
	case "AUTO":
		lines = append(lines, "", "**Auto-creating fix task:**")
		lines = append(lines, fixTaskLines(result.FixTask)...)
		lines = append(lines, "", "Create this task, block the current task, then continue with next task.")
	case "SUGGEST":
		lines = append(lines, "", "**Suggested fix task (needs confirmation):**")
		lines = append(lines, fixTaskLines(result.FixTask)...)
		lines = append(lines, "", "Ask user: Create this fix task? (yes/no/customize)")
	case "LOGGED":
		if result.KaizenMessage != "" {
			lines = append(lines, "**Message:** "+result.KaizenMessage)
		}
		lines = append(lines, "", "Failure logged. Continue with re-dispatch behavior (max 3 cycles).")
	}
	return lines
}

func fixTaskLines(fixTask map[string]any) []string {
	return []string{
		fmt.Sprintf("- Title: %v", chainField(fixTask, "title", "Unknown")),
		fmt.Sprintf("- Type: %v", chainField(fixTask, "type", "bug")),
		fmt.Sprintf("- Estimate: %vh", chainField(fixTask, "estimate", 2)),
	}
}

func chainField(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok && v != nil && v != "" {
		if f, isFloat := v.(float64); isFloat && f == float64(int64(f)) {
			return int64(f)
		}
		return v
	}
	return fallback
}

func orUnknown(s string) string {
	return orDefault(s, "unknown")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
